package persist

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/coreloop/internal/core/tick"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// BatchWriter stores journal batches. *JournalRepo is the production one.
type BatchWriter interface {
	WriteBatch(ctx context.Context, session uuid.UUID, b Batch) error
}

// Journal collects scheduler faults and buffer growths on the frame
// goroutine and hands full batches to a writer goroutine. The frame loop
// never waits on the database: a batch that finds the hand-off channel full
// is dropped and counted.
type Journal struct {
	session uuid.UUID
	writer  BatchWriter
	log     *zap.Logger

	frame   uint64
	cur     Batch
	out     chan Batch
	dropped uint64

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewJournal(session uuid.UUID, writer BatchWriter, queueSize int, log *zap.Logger) *Journal {
	return &Journal{
		session: session,
		writer:  writer,
		log:     log,
		out:     make(chan Batch, max(queueSize, 1)),
	}
}

func (j *Journal) Session() uuid.UUID { return j.session }

// SetFrame stamps subsequent records with frame.
func (j *Journal) SetFrame(frame uint64) { j.frame = frame }

func (j *Journal) ReportFault(f *tick.TaskFault) {
	j.cur.Faults = append(j.cur.Faults, FaultRecord{
		Frame:    j.frame,
		Phase:    f.Phase.String(),
		Task:     fmt.Sprint(f.Task),
		Order:    f.Order,
		Panicked: f.Panicked,
		Message:  f.Err.Error(),
	})
}

func (j *Journal) ObserveGrowth(phase tick.Phase, buffer string, oldCap, newCap int) {
	j.cur.Growths = append(j.cur.Growths, GrowthRecord{
		Frame:  j.frame,
		Phase:  phase.String(),
		Buffer: buffer,
		OldCap: oldCap,
		NewCap: newCap,
	})
}

// Flush hands the current batch to the writer without blocking. It reports
// whether the batch was accepted; empty batches are not sent.
func (j *Journal) Flush() bool {
	if j.cur.Empty() {
		return true
	}
	select {
	case j.out <- j.cur:
		j.cur = Batch{}
		return true
	default:
		j.dropped++
		j.log.Warn("journal batch dropped, writer is behind",
			zap.Int("faults", len(j.cur.Faults)),
			zap.Int("growths", len(j.cur.Growths)),
		)
		j.cur = Batch{}
		return false
	}
}

// Close flushes what is left and stops the writer once it has drained.
// Call it from the frame goroutine after the last frame.
func (j *Journal) Close() {
	if !j.cur.Empty() {
		select {
		case j.out <- j.cur:
		default:
			j.dropped++
		}
		j.cur = Batch{}
	}
	close(j.out)
}

// Run writes batches until Close. Writes outlive ctx cancellation so the
// final batches of a shutdown still land.
func (j *Journal) Run(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	for b := range j.out {
		wctx, cancel := context.WithTimeout(base, writeTimeout)
		err := j.writer.WriteBatch(wctx, j.session, b)
		cancel()
		if err != nil {
			j.failed.Add(1)
			j.log.Error("journal write failed", zap.Error(err))
			continue
		}
		j.written.Add(1)
	}
	return nil
}

// Dropped is read on the frame goroutine.
func (j *Journal) Dropped() uint64 { return j.dropped }
func (j *Journal) Written() uint64 { return j.written.Load() }
func (j *Journal) Failed() uint64  { return j.failed.Load() }
