package tick

import (
	"fmt"

	"go.uber.org/zap"
)

// PhaseQueue is the phase-agnostic view of a Queue the scheduler keeps in
// its registry.
type PhaseQueue interface {
	Phase() Phase
	Len() int
	Cap() int
	LowerBound() int
	UpperBound() int
	NeedsSort() bool
	NeedsRemovals() bool
	Housekeep()
	Dispatch() DispatchResult
	Wipe()
	Stats() Stats
	Snapshot() QueueSnapshot

	accept(task any) bool
	rearm(task any)
	markRemoval(task any)
	setEnabled(task any, enabled bool)
}

// Scheduler owns one queue per phase and the shared registration buffer.
// All methods must be called from the frame goroutine; registration and
// removal are safe from inside a running callback.
type Scheduler struct {
	log    *zap.Logger
	strict bool

	fixed  *Queue[FixedUpdatable]
	update *Queue[Updatable]
	late   *Queue[LateUpdatable]
	queues [phaseCount]PhaseQueue

	pending   []any
	sweeping  int
	housework uint64
}

type options struct {
	log             *zap.Logger
	capacity        int
	pendingCapacity int
	faults          FaultReporter
	growth          GrowthObserver
	strict          bool
}

// Option configures a Scheduler.
type Option func(*options)

// WithLogger sets the logger used for growth, configuration and fault logs.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithCapacity sets the initial storage and pending capacity of every queue.
func WithCapacity(capacity, pendingCapacity int) Option {
	return func(o *options) {
		o.capacity = capacity
		o.pendingCapacity = pendingCapacity
	}
}

// WithFaultReporter replaces the default logging fault reporter.
func WithFaultReporter(r FaultReporter) Option {
	return func(o *options) { o.faults = r }
}

// WithGrowthObserver registers an observer for buffer reallocations.
func WithGrowthObserver(g GrowthObserver) Option {
	return func(o *options) { o.growth = g }
}

// WithStrict makes a capability without settings panic instead of being
// skipped.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

func NewScheduler(opts ...Option) *Scheduler {
	o := options{
		log:             zap.NewNop(),
		capacity:        DefaultQueueCapacity,
		pendingCapacity: DefaultPendingCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.faults == nil {
		o.faults = logReporter{log: o.log}
	}

	s := &Scheduler{
		log:    o.log,
		strict: o.strict,
		fixed: NewQueue(PhaseFixedUpdate, o.capacity, o.pendingCapacity,
			FixedUpdatable.FixedUpdateSettings, FixedUpdatable.FixedUpdate),
		update: NewQueue(PhaseUpdate, o.capacity, o.pendingCapacity,
			Updatable.UpdateSettings, Updatable.Update),
		late: NewQueue(PhaseLateUpdate, o.capacity, o.pendingCapacity,
			LateUpdatable.LateUpdateSettings, LateUpdatable.LateUpdate),
		pending: make([]any, 0, o.pendingCapacity),
	}
	s.queues[PhaseFixedUpdate] = s.fixed
	s.queues[PhaseUpdate] = s.update
	s.queues[PhaseLateUpdate] = s.late
	configure(s.fixed, o)
	configure(s.update, o)
	configure(s.late, o)
	return s
}

func configure[T any](q *Queue[T], o options) {
	q.log = o.log
	q.faults = o.faults
	q.growth = o.growth
	q.strict = o.strict
}

// Queue returns the queue of phase.
func (s *Scheduler) Queue(phase Phase) PhaseQueue {
	if phase < 0 || phase >= phaseCount {
		panic(fmt.Sprintf("tick: no queue for %s", phase))
	}
	return s.queues[phase]
}

func (s *Scheduler) UpdateQueue() *Queue[Updatable]           { return s.update }
func (s *Scheduler) LateUpdateQueue() *Queue[LateUpdatable]   { return s.late }
func (s *Scheduler) FixedUpdateQueue() *Queue[FixedUpdatable] { return s.fixed }

// PendingLen is the number of registrations waiting for housekeeping.
func (s *Scheduler) PendingLen() int { return len(s.pending) }

// ScheduleRegister queues task for every phase it declares on the next
// housekeeping pass. A task scheduled for removal earlier in the same frame
// is kept instead.
func (s *Scheduler) ScheduleRegister(task any) {
	for _, q := range s.queues {
		q.rearm(task)
	}
	s.pending = append(s.pending, task)
}

// ScheduleRemoval marks task for removal from every phase it takes part in.
// The task keeps being dispatched until the next housekeeping pass.
func (s *Scheduler) ScheduleRemoval(task any) {
	for _, q := range s.queues {
		q.markRemoval(task)
	}
}

// SetEnabled is the enable/disable routine: it flips Eligible on every phase
// settings of task that has AutoManage set. The task stays resident.
func (s *Scheduler) SetEnabled(task any, enabled bool) {
	for _, q := range s.queues {
		q.setEnabled(task, enabled)
	}
}

// RunHousekeeping routes pending registrations to their phase queues, then
// applies removals, additions and the owed sort on every queue.
func (s *Scheduler) RunHousekeeping() {
	if s.sweeping > 0 {
		s.log.Warn("housekeeping requested during dispatch, ignored")
		return
	}
	for i, task := range s.pending {
		routed := false
		for _, q := range s.queues {
			if q.accept(task) {
				routed = true
			}
		}
		if !routed {
			s.log.Debug("registered task declares no phase",
				zap.String("task", fmt.Sprintf("%T", task)))
		}
		s.pending[i] = nil
	}
	s.pending = s.pending[:0]

	for _, q := range s.queues {
		q.Housekeep()
	}
	s.housework++
}

// Dispatch runs one sweep over the queue of phase.
func (s *Scheduler) Dispatch(phase Phase) DispatchResult {
	q := s.Queue(phase)
	s.sweeping++
	defer func() { s.sweeping-- }()
	return q.Dispatch()
}

// Stats returns the counters of every queue in phase order.
func (s *Scheduler) Stats() []Stats {
	out := make([]Stats, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q.Stats())
	}
	return out
}

// Snapshot is the read-only debug view of every queue.
type Snapshot struct {
	Housekeeping uint64          `json:"housekeeping"`
	Pending      int             `json:"pending"`
	Queues       []QueueSnapshot `json:"queues"`
}

func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Housekeeping: s.housework,
		Pending:      len(s.pending),
		Queues:       make([]QueueSnapshot, 0, len(s.queues)),
	}
	for _, q := range s.queues {
		snap.Queues = append(snap.Queues, q.Snapshot())
	}
	return snap
}

// Reset tears the session down: every queue and buffer is emptied and all
// counters restart. Capacities are kept.
func (s *Scheduler) Reset() {
	for i := range s.pending {
		s.pending[i] = nil
	}
	s.pending = s.pending[:0]
	for _, q := range s.queues {
		q.Wipe()
	}
	s.housework = 0
}
