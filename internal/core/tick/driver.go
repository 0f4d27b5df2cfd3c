package tick

import "fmt"

// HousekeepMode selects on which side of a sweep a Driver runs housekeeping.
type HousekeepMode int

const (
	HousekeepBoth   HousekeepMode = iota // before and after the sweep
	HousekeepBefore                      // before only
	HousekeepAfter                       // after only
)

func (m HousekeepMode) String() string {
	switch m {
	case HousekeepBoth:
		return "both"
	case HousekeepBefore:
		return "before"
	case HousekeepAfter:
		return "after"
	}
	return fmt.Sprintf("housekeep(%d)", int(m))
}

// ParseHousekeepMode accepts "both", "before" and "after". Empty means both.
func ParseHousekeepMode(s string) (HousekeepMode, error) {
	switch s {
	case "", "both":
		return HousekeepBoth, nil
	case "before":
		return HousekeepBefore, nil
	case "after":
		return HousekeepAfter, nil
	}
	return 0, fmt.Errorf("unknown housekeeping mode %q", s)
}

// Driver is the per-phase entry point the host calls once per frame.
type Driver struct {
	sched *Scheduler
	phase Phase
	mode  HousekeepMode
}

func NewDriver(s *Scheduler, phase Phase, mode HousekeepMode) *Driver {
	return &Driver{sched: s, phase: phase, mode: mode}
}

func (d *Driver) Phase() Phase { return d.phase }

// Tick runs housekeeping and one sweep of the driver's phase.
func (d *Driver) Tick() DispatchResult {
	if d.mode != HousekeepAfter {
		d.sched.RunHousekeeping()
	}
	res := d.sched.Dispatch(d.phase)
	if d.mode != HousekeepBefore {
		d.sched.RunHousekeeping()
	}
	return res
}
