package tick

// Settings is the per-phase scheduling record a task owns. Queues hold a
// pointer to it and never copy it.
//
// The zero value is not Valid: a task that implements a phase interface but
// never initialized its settings for that phase does not take part in it.
type Settings struct {
	// Order sorts tasks within a phase, lower first. May be negative.
	Order int

	// Eligible tasks are invoked during dispatch. Ineligible tasks stay
	// resident and are skipped.
	Eligible bool

	// ShouldBeRegistered is cleared to have the task dropped on the next
	// housekeeping pass.
	ShouldBeRegistered bool

	// AutoManage lets Scheduler.SetEnabled drive Eligible.
	AutoManage bool

	valid  bool
	queued bool // pending or resident in the phase queue
}

// NewSettings returns valid settings registered for the given order.
func NewSettings(order int, eligible bool) Settings {
	return Settings{
		Order:              order,
		Eligible:           eligible,
		ShouldBeRegistered: true,
		AutoManage:         true,
		valid:              true,
	}
}

// Valid reports whether the settings were created through NewSettings.
func (s *Settings) Valid() bool { return s.valid }

// Queued reports whether the task is pending for or resident in its queue.
func (s *Settings) Queued() bool { return s.queued }

func (s *Settings) live() bool { return s.valid && s.ShouldBeRegistered }

// setEnabled is the enable/disable routine driven by host lifecycle events.
func (s *Settings) setEnabled(enabled bool) {
	if s.valid && s.AutoManage {
		s.Eligible = enabled
	}
}
