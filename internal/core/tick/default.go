package tick

// defaultScheduler is created on first use. Like every Scheduler it belongs
// to the frame goroutine.
var defaultScheduler *Scheduler

// Default returns the process-wide scheduler, creating it on first call.
func Default() *Scheduler {
	if defaultScheduler == nil {
		defaultScheduler = NewScheduler()
	}
	return defaultScheduler
}

// SetDefault installs s as the process-wide scheduler.
func SetDefault(s *Scheduler) { defaultScheduler = s }

// Register schedules task on the default scheduler.
func Register(task any) { Default().ScheduleRegister(task) }

// Unregister schedules the removal of task from the default scheduler.
func Unregister(task any) { Default().ScheduleRemoval(task) }

// ResetDefault tears down the default scheduler's session state. The next
// Default call returns a fresh scheduler.
func ResetDefault() {
	if defaultScheduler != nil {
		defaultScheduler.Reset()
	}
	defaultScheduler = nil
}
