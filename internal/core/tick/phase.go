package tick

import "fmt"

// Phase identifies one per-frame moment at which scheduled callbacks run.
type Phase int

const (
	PhaseFixedUpdate Phase = iota // 0: fixed-step simulation, may run 0..n times per frame
	PhaseUpdate                   // 1: regular per-frame logic
	PhaseLateUpdate               // 2: after all regular updates
	phaseCount
)

// Phases lists every phase in host invocation order.
var Phases = [...]Phase{PhaseFixedUpdate, PhaseUpdate, PhaseLateUpdate}

func (p Phase) String() string {
	switch p {
	case PhaseFixedUpdate:
		return "fixed_update"
	case PhaseUpdate:
		return "update"
	case PhaseLateUpdate:
		return "late_update"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Updatable receives the regular per-frame callback.
type Updatable interface {
	UpdateSettings() *Settings
	Update() error
}

// LateUpdatable receives the callback that runs after every Update of the frame.
type LateUpdatable interface {
	LateUpdateSettings() *Settings
	LateUpdate() error
}

// FixedUpdatable receives the fixed-step callback.
type FixedUpdatable interface {
	FixedUpdateSettings() *Settings
	FixedUpdate() error
}
