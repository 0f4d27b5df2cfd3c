// Package host runs the frame loop: it owns the scheduler, one driver per
// phase, the script engine and the scene's task instances.
package host

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/coreloop/internal/config"
	"github.com/l1jgo/coreloop/internal/core/tick"
	"github.com/l1jgo/coreloop/internal/debugsrv"
	"github.com/l1jgo/coreloop/internal/persist"
	"github.com/l1jgo/coreloop/internal/scene"
	"github.com/l1jgo/coreloop/internal/scripting"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Host struct {
	cfg     *config.Config
	log     *zap.Logger
	session uuid.UUID

	sched  *tick.Scheduler
	fixed  *tick.Driver
	update *tick.Driver
	late   *tick.Driver

	engine *scripting.Engine
	scene  *scene.Scene
	tasks  map[string][]*scripting.ScriptTask // by script file

	journal *persist.Journal
	debug   *debugsrv.Server
	reloads chan string

	frame  uint64
	accum  time.Duration
	totals Totals
}

// Option configures optional Host collaborators.
type Option func(*Host)

// WithJournal records faults and buffer growth in j. The journal's writer
// goroutine is started by Run.
func WithJournal(j *persist.Journal) Option {
	return func(h *Host) { h.journal = j }
}

// WithDebugServer publishes queue snapshots to s and serves it from Run.
func WithDebugServer(s *debugsrv.Server) Option {
	return func(h *Host) { h.debug = s }
}

// WithSession sets the id reported by the debug server.
func WithSession(id uuid.UUID) Option {
	return func(h *Host) { h.session = id }
}

func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Host, error) {
	h := &Host{
		cfg:     cfg,
		log:     log,
		session: uuid.New(),
		tasks:   make(map[string][]*scripting.ScriptTask),
		reloads: make(chan string, 16),
	}
	for _, opt := range opts {
		opt(h)
	}

	modes := [3]string{
		tick.PhaseFixedUpdate: cfg.Loop.FixedHousekeeping,
		tick.PhaseUpdate:      cfg.Loop.UpdateHousekeeping,
		tick.PhaseLateUpdate:  cfg.Loop.LateHousekeeping,
	}
	var parsed [3]tick.HousekeepMode
	for _, phase := range tick.Phases {
		m, err := tick.ParseHousekeepMode(modes[phase])
		if err != nil {
			return nil, fmt.Errorf("%s housekeeping: %w", phase, err)
		}
		parsed[phase] = m
	}

	schedOpts := []tick.Option{
		tick.WithLogger(log),
		tick.WithCapacity(cfg.Scheduler.QueueCapacity, cfg.Scheduler.PendingCapacity),
		tick.WithStrict(cfg.Scheduler.Strict),
	}
	if h.journal != nil {
		schedOpts = append(schedOpts,
			tick.WithFaultReporter(tick.Reporters(tick.LogReporter(log), h.journal)),
			tick.WithGrowthObserver(h.journal),
		)
	}
	h.sched = tick.NewScheduler(schedOpts...)
	h.fixed = tick.NewDriver(h.sched, tick.PhaseFixedUpdate, parsed[tick.PhaseFixedUpdate])
	h.update = tick.NewDriver(h.sched, tick.PhaseUpdate, parsed[tick.PhaseUpdate])
	h.late = tick.NewDriver(h.sched, tick.PhaseLateUpdate, parsed[tick.PhaseLateUpdate])
	h.engine = scripting.NewEngine(log)
	return h, nil
}

func (h *Host) Scheduler() *tick.Scheduler { return h.sched }
func (h *Host) Session() uuid.UUID         { return h.session }
func (h *Host) Frame() uint64              { return h.frame }
func (h *Host) Totals() Totals             { return h.totals }

// Tasks returns the live instances spawned from script.
func (h *Host) Tasks(script string) []*scripting.ScriptTask { return h.tasks[script] }

// Close releases the script VM. Call it after Run or RunFrames returns.
func (h *Host) Close() { h.engine.Close() }

// Spawn loads every script sc references and schedules its instances for
// registration. It returns the number of instances scheduled.
func (h *Host) Spawn(sc *scene.Scene) (int, error) {
	h.scene = sc
	defs := make(map[string]*scripting.Definition)
	n := 0
	for i := range sc.Entries {
		e := &sc.Entries[i]
		def, ok := defs[e.Script]
		if !ok {
			var err error
			def, err = h.engine.Load(h.scriptPath(e.Script))
			if err != nil {
				return n, fmt.Errorf("scene entry %q: %w", e.Name, err)
			}
			defs[e.Script] = def
		}
		n += h.spawnEntry(e, def)
	}
	h.log.Info("scene spawned",
		zap.Int("entries", len(sc.Entries)),
		zap.Int("tasks", n),
	)
	return n, nil
}

func (h *Host) spawnEntry(e *scene.Entry, def *scripting.Definition) int {
	for i := 0; i < e.Count; i++ {
		t := h.engine.NewTask(e.Name, i, def)
		for _, phase := range tick.Phases {
			e.Override(phase).Apply(t.Settings(phase))
		}
		h.sched.ScheduleRegister(t)
		h.tasks[e.Script] = append(h.tasks[e.Script], t)
	}
	return e.Count
}

func (h *Host) scriptPath(script string) string {
	return filepath.Join(h.cfg.Scripts.Dir, script)
}

// SetScriptEnabled flips eligibility of every auto-managed instance of
// script and returns how many instances were visited.
func (h *Host) SetScriptEnabled(script string, enabled bool) int {
	ts := h.tasks[script]
	for _, t := range ts {
		h.sched.SetEnabled(t, enabled)
	}
	return len(ts)
}

// RequestReload queues script for reload at the start of the next frame.
// Safe from any goroutine; a full queue drops the request.
func (h *Host) RequestReload(script string) bool {
	select {
	case h.reloads <- script:
		return true
	default:
		return false
	}
}

// reload swaps the instances of script for fresh ones built from the file
// on disk. The old instances keep running until the next housekeeping pass.
// A script that fails to load keeps its old instances.
func (h *Host) reload(script string) {
	if h.scene == nil {
		return
	}
	entries := h.scene.ForScript(script)
	if len(entries) == 0 {
		h.log.Debug("changed script not in scene", zap.String("script", script))
		return
	}
	def, err := h.engine.Load(h.scriptPath(script))
	if err != nil {
		h.log.Warn("script reload failed, keeping old tasks",
			zap.String("script", script),
			zap.Error(err),
		)
		return
	}
	old := h.tasks[script]
	for _, t := range old {
		h.sched.ScheduleRemoval(t)
	}
	h.tasks[script] = nil
	n := 0
	for _, e := range entries {
		n += h.spawnEntry(e, def)
	}
	h.log.Info("script reloaded",
		zap.String("script", script),
		zap.Int("removed", len(old)),
		zap.Int("spawned", n),
	)
}

func (h *Host) drainReloads() {
	for {
		select {
		case script := <-h.reloads:
			h.reload(script)
		default:
			return
		}
	}
}

// Run drives frames until ctx is cancelled, together with the debug server,
// journal writer and script watcher when they are configured.
func (h *Host) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if h.debug != nil {
		g.Go(func() error { return h.debug.Serve(gctx) })
	}
	if h.journal != nil {
		g.Go(func() error { return h.journal.Run(gctx) })
	}
	if h.cfg.Scripts.Watch {
		w, err := newWatcher(h.cfg.Scripts.Dir, h.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.run(gctx, h.RequestReload) })
	}

	g.Go(func() error {
		if h.journal != nil {
			defer h.journal.Close()
		}
		return h.loop(gctx)
	})
	return g.Wait()
}

func (h *Host) loop(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Loop.FrameRate)
	defer ticker.Stop()

	h.log.Info("frame loop started",
		zap.Duration("frame_rate", h.cfg.Loop.FrameRate),
		zap.Duration("fixed_step", h.cfg.Loop.FixedStep),
	)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("frame loop stopped", zap.Uint64("frames", h.frame))
			return nil
		case now := <-ticker.C:
			h.Step(now.Sub(last))
			last = now
		}
	}
}

// RunFrames steps n frames of exactly one frame_rate each, without
// wall-clock waits.
func (h *Host) RunFrames(n int) Totals {
	for i := 0; i < n; i++ {
		h.Step(h.cfg.Loop.FrameRate)
	}
	return h.totals
}
