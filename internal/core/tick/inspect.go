package tick

import "fmt"

// Stats counts queue activity since creation or the last Reset.
type Stats struct {
	Phase       string `json:"phase"`
	Resident    int    `json:"resident"`
	Pending     int    `json:"pending"`
	Capacity    int    `json:"capacity"`
	Dispatches  uint64 `json:"dispatches"`
	Invocations uint64 `json:"invocations"`
	Faults      uint64 `json:"faults"`
	Growths     uint64 `json:"growths"`
	Sorts       uint64 `json:"sorts"`
	Removed     uint64 `json:"removed"`
}

// Slot describes one resident task.
type Slot struct {
	Index      int    `json:"index"`
	Task       string `json:"task"`
	Order      int    `json:"order"`
	Eligible   bool   `json:"eligible"`
	Registered bool   `json:"registered"`
}

// QueueSnapshot is a read-only copy of a queue's layout for debuggers.
type QueueSnapshot struct {
	Phase         string `json:"phase"`
	LowerBound    int    `json:"lower_bound"`
	UpperBound    int    `json:"upper_bound"`
	LowerOrder    int    `json:"lower_order"`
	UpperOrder    int    `json:"upper_order"`
	Capacity      int    `json:"capacity"`
	Pending       int    `json:"pending"`
	NeedsSort     bool   `json:"needs_sort"`
	NeedsRemovals bool   `json:"needs_removals"`
	Slots         []Slot `json:"slots"`
	Stats         Stats  `json:"stats"`
}

func (q *Queue[T]) Stats() Stats {
	st := q.stats
	st.Phase = q.phase.String()
	st.Resident = q.Len()
	st.Pending = q.pendingCount
	st.Capacity = len(q.storage)
	return st
}

func (q *Queue[T]) Snapshot() QueueSnapshot {
	snap := QueueSnapshot{
		Phase:         q.phase.String(),
		LowerBound:    q.lowerBound,
		UpperBound:    q.upperBound,
		LowerOrder:    q.lowerOrder,
		UpperOrder:    q.upperOrder,
		Capacity:      len(q.storage),
		Pending:       q.pendingCount,
		NeedsSort:     q.needsSort,
		NeedsRemovals: q.needsRemovals,
		Slots:         make([]Slot, 0, q.Len()),
		Stats:         q.Stats(),
	}
	for i := q.lowerBound + 1; i < q.upperBound; i++ {
		t := q.storage[i]
		slot := Slot{Index: i, Task: taskLabel(t)}
		if s := q.settings(t); s != nil {
			slot.Order = s.Order
			slot.Eligible = s.Eligible
			slot.Registered = s.live()
		}
		snap.Slots = append(snap.Slots, slot)
	}
	return snap
}

func taskLabel(t any) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", t)
}
