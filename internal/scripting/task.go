package scripting

import (
	"fmt"

	"github.com/l1jgo/coreloop/internal/core/tick"
)

// ScriptTask is one scheduled instance of a script. It implements every
// phase interface; only phases the script defines get valid settings.
type ScriptTask struct {
	engine *Engine
	def    *Definition
	name   string
	index  int

	fixed tick.Settings
	upd   tick.Settings
	late  tick.Settings

	calls [3]uint64
}

// NewTask creates instance index of def. Settings start from the script's
// defaults and may be adjusted before the task is registered.
func (e *Engine) NewTask(name string, index int, def *Definition) *ScriptTask {
	t := &ScriptTask{engine: e, def: def, name: name, index: index}
	for _, phase := range tick.Phases {
		if def.Has(phase) {
			*t.Settings(phase) = tick.NewSettings(def.Order(phase), def.Eligible)
		}
	}
	return t
}

func (t *ScriptTask) String() string { return fmt.Sprintf("%s#%d", t.name, t.index) }

func (t *ScriptTask) Name() string             { return t.name }
func (t *ScriptTask) Definition() *Definition { return t.def }

// Settings returns the task's record for phase.
func (t *ScriptTask) Settings(phase tick.Phase) *tick.Settings {
	switch phase {
	case tick.PhaseFixedUpdate:
		return &t.fixed
	case tick.PhaseUpdate:
		return &t.upd
	case tick.PhaseLateUpdate:
		return &t.late
	}
	return nil
}

// Calls returns how many times the phase callback ran.
func (t *ScriptTask) Calls(phase tick.Phase) uint64 { return t.calls[phase] }

func (t *ScriptTask) run(phase tick.Phase) error {
	t.calls[phase]++
	fn := t.def.fns[phase]
	if fn == nil {
		return fmt.Errorf("script %s defines no %s", t.def.Name, phase)
	}
	return t.engine.call(fn, t.index)
}

func (t *ScriptTask) FixedUpdateSettings() *tick.Settings { return &t.fixed }
func (t *ScriptTask) FixedUpdate() error                  { return t.run(tick.PhaseFixedUpdate) }
func (t *ScriptTask) UpdateSettings() *tick.Settings      { return &t.upd }
func (t *ScriptTask) Update() error                       { return t.run(tick.PhaseUpdate) }
func (t *ScriptTask) LateUpdateSettings() *tick.Settings  { return &t.late }
func (t *ScriptTask) LateUpdate() error                   { return t.run(tick.PhaseLateUpdate) }
