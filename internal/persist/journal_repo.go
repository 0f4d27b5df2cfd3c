package persist

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// FaultRecord is one isolated callback failure.
type FaultRecord struct {
	Frame    uint64
	Phase    string
	Task     string
	Order    int
	Panicked bool
	Message  string
}

// GrowthRecord is one queue buffer reallocation.
type GrowthRecord struct {
	Frame  uint64
	Phase  string
	Buffer string
	OldCap int
	NewCap int
}

// Batch is the unit handed to the writer.
type Batch struct {
	Faults  []FaultRecord
	Growths []GrowthRecord
}

func (b *Batch) Empty() bool { return len(b.Faults) == 0 && len(b.Growths) == 0 }

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// StartSession inserts the session row every record references.
func (r *JournalRepo) StartSession(ctx context.Context, session uuid.UUID) error {
	host, _ := os.Hostname()
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO loop_session (id, host) VALUES ($1, $2)`,
		session, host,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// WriteBatch writes a batch in a single transaction.
func (r *JournalRepo) WriteBatch(ctx context.Context, session uuid.UUID, b Batch) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range b.Faults {
		if _, err := tx.Exec(ctx,
			`INSERT INTO task_fault (session_id, frame, phase, task, sort_order, panicked, message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			session, int64(f.Frame), f.Phase, f.Task, f.Order, f.Panicked, f.Message,
		); err != nil {
			return fmt.Errorf("insert fault: %w", err)
		}
	}
	for _, g := range b.Growths {
		if _, err := tx.Exec(ctx,
			`INSERT INTO queue_growth (session_id, frame, phase, buffer, old_cap, new_cap)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			session, int64(g.Frame), g.Phase, g.Buffer, g.OldCap, g.NewCap,
		); err != nil {
			return fmt.Errorf("insert growth: %w", err)
		}
	}

	return tx.Commit(ctx)
}
