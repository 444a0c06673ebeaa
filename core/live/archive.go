package live

import (
	"context"
	"time"
)

// ArchivedSnapshot is one reconciled snapshot as recorded in the audit trail.
type ArchivedSnapshot struct {
	ID          int       `json:"id"`
	ProcessID   int       `json:"process_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Snapshot    *Snapshot `json:"snapshot"`
	CreatedAt   time.Time `json:"created_at"`
}

// Archive records reconciled snapshots for later inspection. Writes happen
// behind the feed; a failing archive must never disturb it.
type Archive interface {
	SaveSnapshot(ctx context.Context, processID int, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, processID int) (*ArchivedSnapshot, error)
	SnapshotHistory(ctx context.Context, processID int, from, to time.Time, limit int) ([]ArchivedSnapshot, error)
}
