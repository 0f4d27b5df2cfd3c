package scripting

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/l1jgo/coreloop/internal/core/tick"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM running scripted tasks.
// Single-goroutine access only (frame loop).
type Engine struct {
	vm    *lua.LState
	log   *zap.Logger
	frame uint64
}

// NewEngine creates a Lua VM with the task API installed.
func NewEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	e := &Engine{vm: vm, log: log}

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	vm.SetGlobal("frame", vm.NewFunction(e.luaFrame))
	return e
}

func (e *Engine) Close() {
	e.vm.Close()
}

// SetFrame sets the frame number passed to callbacks.
func (e *Engine) SetFrame(n uint64) { e.frame = n }

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

func (e *Engine) luaFrame(L *lua.LState) int {
	L.Push(lua.LNumber(e.frame))
	return 1
}

// Definition is what a task script returns: its callbacks and defaults.
//
//	return {
//	  order = 0, late_order = 0, fixed_order = 0, eligible = true,
//	  update = function(index, frame) end,
//	  late_update = function(index, frame) end,
//	  fixed_update = function(index, frame) end,
//	}
type Definition struct {
	Name     string
	Path     string
	Eligible bool

	orders [3]int
	fns    [3]*lua.LFunction
}

// Has reports whether the script defines a callback for phase.
func (d *Definition) Has(phase tick.Phase) bool {
	return d.fns[phase] != nil
}

// Order returns the script's default order key for phase.
func (d *Definition) Order(phase tick.Phase) int {
	return d.orders[phase]
}

var (
	fnKeys    = [3]string{tick.PhaseFixedUpdate: "fixed_update", tick.PhaseUpdate: "update", tick.PhaseLateUpdate: "late_update"}
	orderKeys = [3]string{tick.PhaseFixedUpdate: "fixed_order", tick.PhaseUpdate: "order", tick.PhaseLateUpdate: "late_order"}
)

// Load runs a task script and returns its definition. Loading the same
// file again yields a fresh definition with its own upvalues.
func (e *Engine) Load(path string) (*Definition, error) {
	top := e.vm.GetTop()
	defer e.vm.SetTop(top)
	if err := e.vm.DoFile(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	tbl, ok := e.vm.Get(-1).(*lua.LTable)
	if e.vm.GetTop() == top || !ok {
		return nil, fmt.Errorf("load %s: script must return a table", path)
	}

	def := &Definition{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:     path,
		Eligible: true,
	}
	for _, phase := range tick.Phases {
		if fn, ok := tbl.RawGetString(fnKeys[phase]).(*lua.LFunction); ok {
			def.fns[phase] = fn
		}
		if n, ok := tbl.RawGetString(orderKeys[phase]).(lua.LNumber); ok {
			def.orders[phase] = int(n)
		}
	}
	if b, ok := tbl.RawGetString("eligible").(lua.LBool); ok {
		def.Eligible = bool(b)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return def, nil
}

func (e *Engine) call(fn *lua.LFunction, index int) error {
	return e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(index), lua.LNumber(e.frame))
}
