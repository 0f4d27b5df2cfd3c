package host

import (
	"time"

	"github.com/l1jgo/coreloop/internal/core/tick"
	"github.com/l1jgo/coreloop/internal/debugsrv"
	"go.uber.org/zap"
)

// FrameResult is what one Step did.
type FrameResult struct {
	Frame      uint64
	FixedSteps int
	Invoked    int
	Faults     int
}

// Totals accumulates FrameResults.
type Totals struct {
	Frames     uint64
	FixedSteps uint64
	Invoked    uint64
	Faults     uint64
	Dropped    uint64 // fixed-step backlog discarded after hitting max_fixed_steps
}

func (t *Totals) add(r FrameResult) {
	t.Frames++
	t.FixedSteps += uint64(r.FixedSteps)
	t.Invoked += uint64(r.Invoked)
	t.Faults += uint64(r.Faults)
}

// Step advances one frame of length dt: pending reloads, 0..max_fixed_steps
// fixed updates, one update and one late update.
func (h *Host) Step(dt time.Duration) FrameResult {
	h.frame++
	h.engine.SetFrame(h.frame)
	if h.journal != nil {
		h.journal.SetFrame(h.frame)
	}
	h.drainReloads()

	res := FrameResult{Frame: h.frame}
	collect := func(r tick.DispatchResult) {
		res.Invoked += r.Invoked
		res.Faults += r.Faults
	}

	step := h.cfg.Loop.FixedStep
	h.accum += dt
	for h.accum >= step && res.FixedSteps < h.cfg.Loop.MaxFixedSteps {
		collect(h.fixed.Tick())
		h.accum -= step
		res.FixedSteps++
	}
	if h.accum >= step {
		h.totals.Dropped++
		h.log.Debug("fixed-step backlog dropped",
			zap.Uint64("frame", h.frame),
			zap.Duration("backlog", h.accum),
		)
		h.accum = 0
	}

	collect(h.update.Tick())
	collect(h.late.Tick())
	h.totals.add(res)

	if h.debug != nil && every(h.frame, h.cfg.Loop.SnapshotEvery) {
		h.publish()
	}
	if h.journal != nil && every(h.frame, h.cfg.Journal.FlushEvery) {
		h.journal.Flush()
	}
	return res
}

func (h *Host) publish() {
	h.debug.Publish(&debugsrv.View{
		Frame:    h.frame,
		Session:  h.session.String(),
		Taken:    time.Now(),
		Snapshot: h.sched.Snapshot(),
	})
}

func every(frame uint64, n int) bool {
	return n > 0 && frame%uint64(n) == 0
}
