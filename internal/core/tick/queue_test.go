package tick

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probe is a task taking part in every phase whose settings are valid.
type probe struct {
	name  string
	upd   Settings
	late  Settings
	fixed Settings

	calls   *[]string
	err     error
	panicV  any
	onTick  func()
	invoked int
}

func newProbe(name string, order int, calls *[]string) *probe {
	return &probe{name: name, upd: NewSettings(order, true), calls: calls}
}

func (p *probe) String() string { return p.name }

func (p *probe) run() error {
	p.invoked++
	if p.calls != nil {
		*p.calls = append(*p.calls, p.name)
	}
	if p.onTick != nil {
		p.onTick()
	}
	if p.panicV != nil {
		panic(p.panicV)
	}
	return p.err
}

func (p *probe) UpdateSettings() *Settings      { return &p.upd }
func (p *probe) Update() error                  { return p.run() }
func (p *probe) LateUpdateSettings() *Settings  { return &p.late }
func (p *probe) LateUpdate() error              { return p.run() }
func (p *probe) FixedUpdateSettings() *Settings { return &p.fixed }
func (p *probe) FixedUpdate() error             { return p.run() }

// unsettled implements Updatable but has no settings record.
type unsettled struct{}

func (unsettled) UpdateSettings() *Settings { return nil }
func (unsettled) Update() error             { return nil }

type faultSink struct{ faults []*TaskFault }

func (f *faultSink) ReportFault(tf *TaskFault) { f.faults = append(f.faults, tf) }

type growthSink struct{ events []string }

func (g *growthSink) ObserveGrowth(_ Phase, buffer string, _, _ int) {
	g.events = append(g.events, buffer)
}

func newUpdateQueue(capacity int) *Queue[Updatable] {
	return NewQueue(PhaseUpdate, capacity, capacity, Updatable.UpdateSettings, Updatable.Update)
}

func add(q *Queue[Updatable], tasks ...*probe) {
	for _, t := range tasks {
		q.EnqueuePending(t)
	}
	q.Housekeep()
}

func orders(q *Queue[Updatable]) []int {
	var out []int
	for _, t := range q.Tasks() {
		out = append(out, t.UpdateSettings().Order)
	}
	return out
}

func names(q *Queue[Updatable]) []string {
	var out []string
	for _, t := range q.Tasks() {
		out = append(out, t.(*probe).name)
	}
	return out
}

func requireConsistent(t *testing.T, q *Queue[Updatable], live int) {
	t.Helper()
	assert.Equal(t, live, q.UpperBound()-q.LowerBound()-1)
	assert.False(t, q.NeedsSort())
	got := orders(q)
	assert.True(t, sort.IntsAreSorted(got), "occupied range not sorted: %v", got)
	for i, slot := range q.storage {
		inside := i > q.lowerBound && i < q.upperBound
		if inside {
			assert.NotNil(t, slot, "nil slot %d inside occupied range", i)
		} else {
			assert.Nil(t, slot, "stale slot %d outside occupied range", i)
		}
	}
	if live == 0 {
		assert.Equal(t, -1, q.LowerBound())
		assert.Equal(t, 0, q.UpperBound())
	}
}

func TestQueue_EmptySentinels(t *testing.T) {
	q := newUpdateQueue(16)
	assert.Equal(t, -1, q.LowerBound())
	assert.Equal(t, 0, q.UpperBound())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, DispatchResult{}, q.Dispatch())
}

func TestQueue_AscendingKeysNeverSort(t *testing.T) {
	q := newUpdateQueue(8)
	for i := 0; i < 50; i++ {
		q.EnqueuePending(newProbe("t", i/3, nil))
		q.DrainPending()
		require.False(t, q.NeedsSort(), "insert %d marked the queue dirty", i)
	}
	assert.Equal(t, uint64(0), q.Stats().Sorts)
	requireConsistent(t, q, 50)
}

func TestQueue_DescendingKeysUseLowerFastPath(t *testing.T) {
	q := newUpdateQueue(8)
	for i := 0; i < 50; i++ {
		q.EnqueuePending(newProbe("t", 100-i, nil))
		q.DrainPending()
		require.False(t, q.NeedsSort(), "insert %d marked the queue dirty", i)
	}
	assert.Equal(t, uint64(0), q.Stats().Sorts)
	requireConsistent(t, q, 50)
	lower, upper := q.OrderBounds()
	assert.Equal(t, 51, lower)
	assert.Equal(t, 100, upper)
}

func TestQueue_InterleavedKeysSortStably(t *testing.T) {
	var calls []string
	q := newUpdateQueue(64)
	add(q,
		newProbe("three", 3, &calls),
		newProbe("one-a", 1, &calls),
		newProbe("four", 4, &calls),
		newProbe("one-b", 1, &calls),
		newProbe("five", 5, &calls),
	)

	res := q.Dispatch()
	assert.Equal(t, 5, res.Invoked)
	assert.Equal(t, []string{"one-a", "one-b", "three", "four", "five"}, calls)
	requireConsistent(t, q, 5)
}

func TestQueue_GrowsToPowerOfTwo(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := newUpdateQueue(64)
	for i := 0; i < 200; i++ {
		q.EnqueuePending(newProbe("t", rng.Intn(40)-20, nil))
	}
	assert.Equal(t, 256, q.PendingCap())
	q.Housekeep()

	c := q.Cap()
	assert.GreaterOrEqual(t, c, 200)
	assert.Zero(t, c%64)
	assert.Zero(t, (c/64)&(c/64-1), "capacity %d is not 64 scaled by a power of two", c)
	requireConsistent(t, q, 200)
}

func TestQueue_GrowthIsObserved(t *testing.T) {
	sink := &growthSink{}
	q := newUpdateQueue(4)
	q.growth = sink
	for i := 0; i < 9; i++ {
		q.EnqueuePending(newProbe("t", i, nil))
	}
	q.Housekeep()
	assert.Contains(t, sink.events, "pending")
	assert.Contains(t, sink.events, "storage")
	assert.Equal(t, uint64(len(sink.events)), q.Stats().Growths)
}

func TestQueue_RemoveMarkedCompacts(t *testing.T) {
	q := newUpdateQueue(16)
	ps := []*probe{
		newProbe("a", 1, nil),
		newProbe("b", 2, nil),
		newProbe("c", 3, nil),
		newProbe("d", 4, nil),
	}
	add(q, ps...)

	ps[1].upd.ShouldBeRegistered = false
	ps[3].upd.ShouldBeRegistered = false
	q.needsRemovals = true
	q.RemoveMarked()

	assert.Equal(t, []string{"a", "c"}, names(q))
	assert.False(t, ps[1].upd.Queued())
	assert.Equal(t, uint64(2), q.Stats().Removed)
	requireConsistent(t, q, 2)
	_, upper := q.OrderBounds()
	assert.Equal(t, 3, upper)
}

func TestQueue_RemovingMaxRecomputesTrueExtremes(t *testing.T) {
	q := newUpdateQueue(16)
	low := newProbe("low", 1, nil)
	mid1 := newProbe("mid1", 5, nil)
	mid2 := newProbe("mid2", 5, nil)
	top := newProbe("top", 9, nil)
	add(q, low, mid1, mid2, top)

	top.upd.ShouldBeRegistered = false
	low.upd.ShouldBeRegistered = false
	q.needsRemovals = true
	q.RemoveMarked()

	lower, upper := q.OrderBounds()
	assert.Equal(t, 5, lower)
	assert.Equal(t, 5, upper)

	// 6 now belongs at the end; a stale upper bound of 9 would dirty the queue.
	q.EnqueuePending(newProbe("six", 6, nil))
	q.DrainPending()
	assert.False(t, q.NeedsSort())
	assert.Equal(t, []string{"mid1", "mid2", "six"}, names(q))
}

func TestQueue_RemoveAllResetsBounds(t *testing.T) {
	q := newUpdateQueue(16)
	a, b := newProbe("a", 2, nil), newProbe("b", 1, nil)
	add(q, a, b)
	a.upd.ShouldBeRegistered = false
	b.upd.ShouldBeRegistered = false
	q.needsRemovals = true
	q.Housekeep()
	requireConsistent(t, q, 0)

	add(q, newProbe("c", -4, nil))
	lower, upper := q.OrderBounds()
	assert.Equal(t, -4, lower)
	assert.Equal(t, -4, upper)
	requireConsistent(t, q, 1)
}

func TestQueue_EnqueueIgnoresDuplicatesAndInvalid(t *testing.T) {
	q := newUpdateQueue(16)
	p := newProbe("p", 1, nil)
	assert.True(t, q.EnqueuePending(p))
	assert.False(t, q.EnqueuePending(p))
	q.Housekeep()
	assert.False(t, q.EnqueuePending(p), "resident task enqueued twice")

	var zero probe
	assert.False(t, q.EnqueuePending(&zero), "zero settings declare no phase")
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DispatchIsolatesFaults(t *testing.T) {
	var calls []string
	sink := &faultSink{}
	q := newUpdateQueue(16)
	q.faults = sink

	bad := newProbe("bad", 1, &calls)
	bad.err = errors.New("boom")
	panicky := newProbe("panicky", 2, &calls)
	panicky.panicV = "kaboom"
	good := newProbe("good", 3, &calls)
	add(q, bad, panicky, good)

	res := q.Dispatch()
	assert.Equal(t, DispatchResult{Invoked: 3, Faults: 2}, res)
	assert.Equal(t, []string{"bad", "panicky", "good"}, calls)

	require.Len(t, sink.faults, 2)
	assert.Same(t, bad, sink.faults[0].Task)
	assert.EqualError(t, errors.Unwrap(sink.faults[0]), "boom")
	assert.False(t, sink.faults[0].Panicked)
	assert.True(t, sink.faults[1].Panicked)
	assert.ErrorIs(t, sink.faults[1], ErrTaskPanicked)
	assert.Equal(t, 2, sink.faults[1].Order)
	assert.Equal(t, uint64(2), q.Stats().Faults)
}

func TestQueue_PanicWithErrorKeepsChain(t *testing.T) {
	sink := &faultSink{}
	q := newUpdateQueue(16)
	q.faults = sink
	cause := errors.New("root cause")
	p := newProbe("p", 0, nil)
	p.panicV = cause
	add(q, p)

	q.Dispatch()
	require.Len(t, sink.faults, 1)
	assert.ErrorIs(t, sink.faults[0], cause)
	assert.ErrorIs(t, sink.faults[0], ErrTaskPanicked)
}

func TestQueue_IneligibleTasksStayResident(t *testing.T) {
	var calls []string
	q := newUpdateQueue(16)
	off := newProbe("off", 1, &calls)
	off.upd.Eligible = false
	add(q, off, newProbe("on", 2, &calls))

	res := q.Dispatch()
	assert.Equal(t, 1, res.Invoked)
	assert.Equal(t, []string{"on"}, calls)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_MissingSettings(t *testing.T) {
	q := newUpdateQueue(16)
	assert.False(t, q.EnqueuePending(unsettled{}))

	q.strict = true
	assert.PanicsWithError(t, "tick: task has no settings for phase: update tick.unsettled", func() {
		q.EnqueuePending(unsettled{})
	})
}

func TestQueue_WipeRestoresEmptyState(t *testing.T) {
	q := newUpdateQueue(4)
	ps := []*probe{newProbe("a", 3, nil), newProbe("b", 1, nil), newProbe("c", 2, nil)}
	add(q, ps...)
	pend := newProbe("pending", 0, nil)
	q.EnqueuePending(pend)

	q.Wipe()
	requireConsistent(t, q, 0)
	assert.Equal(t, 0, q.PendingLen())
	assert.Equal(t, Stats{Phase: "update", Capacity: q.Cap()}, q.Stats())
	for _, p := range append(ps, pend) {
		assert.False(t, p.upd.Queued())
	}
}

func TestQueue_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	q := newUpdateQueue(4)
	var resident []*probe

	for round := 0; round < 200; round++ {
		for n := rng.Intn(6); n > 0; n-- {
			p := newProbe("t", rng.Intn(21)-10, nil)
			q.EnqueuePending(p)
			resident = append(resident, p)
		}
		for n := rng.Intn(4); n > 0 && len(resident) > 0; n-- {
			i := rng.Intn(len(resident))
			resident[i].upd.ShouldBeRegistered = false
			q.needsRemovals = true
			resident = append(resident[:i], resident[i+1:]...)
		}
		q.Housekeep()
		requireConsistent(t, q, len(resident))
	}
}
