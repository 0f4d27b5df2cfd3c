package tick

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrTaskPanicked wraps a value recovered from a panicking callback.
	ErrTaskPanicked = errors.New("tick: task callback panicked")

	// ErrInvalidConfiguration reports a capability implementation without a
	// settings record.
	ErrInvalidConfiguration = errors.New("tick: task has no settings for phase")
)

// TaskFault is a failure raised by one task's callback during dispatch.
type TaskFault struct {
	Phase    Phase
	Order    int
	Task     any
	Err      error
	Panicked bool
}

func (f *TaskFault) Error() string {
	return fmt.Sprintf("tick: %s task %T (order %d): %v", f.Phase, f.Task, f.Order, f.Err)
}

func (f *TaskFault) Unwrap() error { return f.Err }

// FaultReporter receives every isolated callback failure.
type FaultReporter interface {
	ReportFault(f *TaskFault)
}

// GrowthObserver is told whenever a queue reallocates a buffer.
type GrowthObserver interface {
	ObserveGrowth(phase Phase, buffer string, oldCap, newCap int)
}

// logReporter is the default FaultReporter.
type logReporter struct {
	log *zap.Logger
}

func (r logReporter) ReportFault(f *TaskFault) {
	r.log.Error("task callback fault",
		zap.Stringer("phase", f.Phase),
		zap.Int("order", f.Order),
		zap.String("task", fmt.Sprintf("%T", f.Task)),
		zap.Bool("panicked", f.Panicked),
		zap.Error(f.Err),
	)
}

// LogReporter returns the reporter a Scheduler uses when none is given.
func LogReporter(log *zap.Logger) FaultReporter { return logReporter{log: log} }

// Reporters fans each fault out to every non-nil reporter in rs.
func Reporters(rs ...FaultReporter) FaultReporter {
	out := make(multiReporter, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiReporter []FaultReporter

func (m multiReporter) ReportFault(f *TaskFault) {
	for _, r := range m {
		r.ReportFault(f)
	}
}

// invokeGuarded runs fn(t), converting a panic into an error.
func invokeGuarded[T any](fn func(T) error, t T) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", ErrTaskPanicked, e)
			} else {
				err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
			panicked = true
		}
	}()
	return false, fn(t)
}
