package tick

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	DefaultQueueCapacity   = 512
	DefaultPendingCapacity = 512

	minCapacity = 4
)

// Queue holds the tasks scheduled for one phase in a dense slice with two
// cursors. Live tasks occupy storage[lowerBound+1 : upperBound]; the slots
// below lowerBound+1 are kept free for cheap prepends and the slots from
// upperBound on for cheap appends.
//
// A Queue is owned by a single goroutine. Tasks enter only through the
// pending buffer and leave only through RemoveMarked, so a running Dispatch
// never sees the range it iterates change.
type Queue[T any] struct {
	phase    Phase
	settings func(T) *Settings
	invoke   func(T) error

	storage    []T
	lowerBound int
	upperBound int
	lowerOrder int
	upperOrder int
	hasEntries bool

	needsSort     bool
	needsRemovals bool

	pending      []T
	pendingCount int

	log    *zap.Logger
	faults FaultReporter
	growth GrowthObserver
	strict bool

	stats Stats
}

// NewQueue creates an empty queue for phase. settings returns the task's
// record for this phase; invoke runs the task's callback for this phase.
func NewQueue[T any](phase Phase, capacity, pendingCapacity int, settings func(T) *Settings, invoke func(T) error) *Queue[T] {
	capacity = max(capacity, minCapacity)
	pendingCapacity = max(pendingCapacity, minCapacity)
	log := zap.NewNop()
	return &Queue[T]{
		phase:      phase,
		settings:   settings,
		invoke:     invoke,
		storage:    make([]T, capacity),
		lowerBound: -1,
		upperBound: 0,
		pending:    make([]T, pendingCapacity),
		log:        log,
		faults:     logReporter{log: log},
	}
}

func (q *Queue[T]) Phase() Phase { return q.phase }

// LowerBound is the highest free slot below the occupied range, or -1.
func (q *Queue[T]) LowerBound() int { return q.lowerBound }

// UpperBound is the lowest free slot above the occupied range.
func (q *Queue[T]) UpperBound() int { return q.upperBound }

// OrderBounds returns the cached lowest and highest order keys.
func (q *Queue[T]) OrderBounds() (lower, upper int) { return q.lowerOrder, q.upperOrder }

func (q *Queue[T]) NeedsSort() bool     { return q.needsSort }
func (q *Queue[T]) NeedsRemovals() bool { return q.needsRemovals }
func (q *Queue[T]) Len() int            { return q.upperBound - q.lowerBound - 1 }
func (q *Queue[T]) Cap() int            { return len(q.storage) }
func (q *Queue[T]) PendingLen() int     { return q.pendingCount }
func (q *Queue[T]) PendingCap() int     { return len(q.pending) }

// Tasks returns a copy of the occupied range in dispatch order.
func (q *Queue[T]) Tasks() []T {
	out := make([]T, q.Len())
	copy(out, q.storage[q.lowerBound+1:q.upperBound])
	return out
}

// EnqueuePending buffers t for the next DrainPending. Tasks without valid
// settings for this phase, tasks already pending or resident and tasks
// marked for removal are ignored. It reports whether t was buffered.
func (q *Queue[T]) EnqueuePending(t T) bool {
	s := q.settingsOf(t)
	if s == nil || !s.live() || s.queued {
		return false
	}
	if q.pendingCount == len(q.pending) {
		q.pending = q.regrow(q.pending, 0, q.pendingCount, 0, "pending")
	}
	q.pending[q.pendingCount] = t
	q.pendingCount++
	s.queued = true
	return true
}

// DrainPending inserts every buffered task in buffer order and clears the
// buffer. Only Housekeep may call it while a frame is running.
func (q *Queue[T]) DrainPending() {
	if q.pendingCount == 0 {
		return
	}
	var zero T
	for i := 0; i < q.pendingCount; i++ {
		q.insert(q.pending[i])
		q.pending[i] = zero
	}
	q.pendingCount = 0
}

func (q *Queue[T]) insert(t T) {
	s := q.settingsOf(t)
	if s == nil {
		return
	}
	if !s.live() {
		s.queued = false
		return
	}

	if q.upperBound == len(q.storage) {
		q.grow(false)
	}

	order := s.Order
	switch {
	case !q.hasEntries:
		// Anchor a quarter in so the first descending keys have room below.
		anchor := len(q.storage) / 4
		q.storage[anchor] = t
		q.lowerBound = anchor - 1
		q.upperBound = anchor + 1
		q.lowerOrder = order
		q.upperOrder = order
		q.hasEntries = true
	case q.needsSort:
		q.append(t)
	case order >= q.upperOrder:
		q.append(t)
		q.upperOrder = order
	case order < q.lowerOrder:
		// Ties with the lowest key go to the interior branch so that equal
		// keys keep their registration order after the stable sort.
		if q.lowerBound < 0 {
			q.grow(true)
		}
		q.storage[q.lowerBound] = t
		q.lowerBound--
		q.lowerOrder = order
	default:
		q.append(t)
		q.needsSort = true
	}
}

func (q *Queue[T]) append(t T) {
	q.storage[q.upperBound] = t
	q.upperBound++
}

// grow doubles storage. Growing at the front shifts the occupied range up by
// the added capacity, leaving the new slots below it.
func (q *Queue[T]) grow(front bool) {
	lo, hi := q.lowerBound+1, q.upperBound
	shift := 0
	if front {
		shift = len(q.storage)
	}
	q.storage = q.regrow(q.storage, lo, hi, shift, "storage")
	q.lowerBound += shift
	q.upperBound += shift
}

func (q *Queue[T]) regrow(buf []T, lo, hi, shift int, name string) []T {
	oldCap := len(buf)
	next := make([]T, oldCap*2)
	copy(next[lo+shift:], buf[lo:hi])
	q.stats.Growths++
	q.log.Debug("tick queue grown",
		zap.Stringer("phase", q.phase),
		zap.String("buffer", name),
		zap.Int("old_cap", oldCap),
		zap.Int("new_cap", len(next)),
	)
	if q.growth != nil {
		q.growth.ObserveGrowth(q.phase, name, oldCap, len(next))
	}
	return next
}

// Sort orders the occupied range by ascending order key with a stable
// insertion sort. It is a no-op unless an insertion landed out of order.
func (q *Queue[T]) Sort() {
	if !q.needsSort {
		return
	}
	lo, hi := q.lowerBound+1, q.upperBound
	for i := lo + 1; i < hi; i++ {
		t := q.storage[i]
		key := q.orderOf(t)
		j := i - 1
		for j >= lo && q.orderOf(q.storage[j]) > key {
			q.storage[j+1] = q.storage[j]
			j--
		}
		q.storage[j+1] = t
	}
	if hi > lo {
		q.lowerOrder = q.orderOf(q.storage[lo])
		q.upperOrder = q.orderOf(q.storage[hi-1])
	}
	q.needsSort = false
	q.stats.Sorts++
}

func (q *Queue[T]) orderOf(t T) int {
	if s := q.settings(t); s != nil {
		return s.Order
	}
	return 0
}

// RemoveMarked drops every resident task whose settings are no longer valid
// and registered, compacting the survivors toward the lower end.
func (q *Queue[T]) RemoveMarked() {
	if !q.needsRemovals {
		return
	}
	q.needsRemovals = false
	if !q.hasEntries {
		return
	}

	var zero T
	lo, hi := q.lowerBound+1, q.upperBound
	w := lo
	for i := lo; i < hi; i++ {
		t := q.storage[i]
		s := q.settings(t)
		if s != nil && s.live() {
			q.storage[w] = t
			w++
			continue
		}
		if s != nil {
			s.queued = false
		}
		q.stats.Removed++
	}
	for i := w; i < hi; i++ {
		q.storage[i] = zero
	}
	q.upperBound = w

	if w == lo {
		q.reset()
		return
	}
	// Scan for the true extremes: the survivors are not guaranteed sorted
	// if a sort is still owed, and duplicates make neighbours unreliable.
	q.lowerOrder = q.orderOf(q.storage[lo])
	q.upperOrder = q.lowerOrder
	for i := lo + 1; i < w; i++ {
		k := q.orderOf(q.storage[i])
		q.lowerOrder = min(q.lowerOrder, k)
		q.upperOrder = max(q.upperOrder, k)
	}
}

// Housekeep applies pending removals, then pending additions, then the owed
// sort. This is the only supported order.
func (q *Queue[T]) Housekeep() {
	q.RemoveMarked()
	q.DrainPending()
	q.Sort()
}

// DispatchResult summarizes one sweep.
type DispatchResult struct {
	Invoked int
	Faults  int
}

// Dispatch invokes the callback of every eligible resident task in order.
// A failing or panicking callback is reported and the sweep continues.
func (q *Queue[T]) Dispatch() DispatchResult {
	var res DispatchResult
	q.stats.Dispatches++
	if !q.hasEntries {
		return res
	}
	storage := q.storage
	for i, hi := q.lowerBound+1, q.upperBound; i < hi; i++ {
		t := storage[i]
		s := q.settingsOf(t)
		if s == nil || !s.Eligible {
			continue
		}
		res.Invoked++
		panicked, err := invokeGuarded(q.invoke, t)
		if err == nil {
			continue
		}
		res.Faults++
		q.faults.ReportFault(&TaskFault{
			Phase:    q.phase,
			Order:    s.Order,
			Task:     t,
			Err:      err,
			Panicked: panicked,
		})
	}
	q.stats.Invocations += uint64(res.Invoked)
	q.stats.Faults += uint64(res.Faults)
	return res
}

// Wipe drops every resident and pending task and restores the empty state.
// Capacity is kept.
func (q *Queue[T]) Wipe() {
	var zero T
	for i := q.lowerBound + 1; i < q.upperBound; i++ {
		if s := q.settings(q.storage[i]); s != nil {
			s.queued = false
		}
		q.storage[i] = zero
	}
	for i := 0; i < q.pendingCount; i++ {
		if s := q.settings(q.pending[i]); s != nil {
			s.queued = false
		}
		q.pending[i] = zero
	}
	q.pendingCount = 0
	q.needsSort = false
	q.needsRemovals = false
	q.stats = Stats{}
	q.reset()
}

func (q *Queue[T]) reset() {
	q.lowerBound = -1
	q.upperBound = 0
	q.lowerOrder = 0
	q.upperOrder = 0
	q.hasEntries = false
}

func (q *Queue[T]) settingsOf(t T) *Settings {
	s := q.settings(t)
	if s == nil {
		if q.strict {
			panic(fmt.Errorf("%w: %s %T", ErrInvalidConfiguration, q.phase, t))
		}
		q.log.Warn("task without settings skipped",
			zap.Stringer("phase", q.phase),
			zap.String("task", fmt.Sprintf("%T", t)),
		)
	}
	return s
}

// accept routes a task from the scheduler's shared buffer. It reports
// whether task implements this queue's capability.
func (q *Queue[T]) accept(task any) bool {
	t, ok := task.(T)
	if !ok {
		return false
	}
	q.EnqueuePending(t)
	return true
}

func (q *Queue[T]) rearm(task any) {
	if t, ok := task.(T); ok {
		if s := q.settings(t); s != nil && s.valid {
			s.ShouldBeRegistered = true
		}
	}
}

func (q *Queue[T]) markRemoval(task any) {
	t, ok := task.(T)
	if !ok {
		return
	}
	s := q.settings(t)
	if s == nil || !s.valid {
		return
	}
	s.ShouldBeRegistered = false
	q.needsRemovals = true
}

func (q *Queue[T]) setEnabled(task any, enabled bool) {
	if t, ok := task.(T); ok {
		if s := q.settings(t); s != nil {
			s.setEnabled(enabled)
		}
	}
}
