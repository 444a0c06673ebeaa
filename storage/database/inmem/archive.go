// Package inmem provides an in-memory snapshot archive for tests and
// database-less runs.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/victorpuello/kampus-sub004/core/live"
)

type SnapshotArchive struct {
	mu     sync.Mutex
	nextID int
	rows   []live.ArchivedSnapshot
}

var _ live.Archive = (*SnapshotArchive)(nil)

func NewSnapshotArchive() *SnapshotArchive {
	return &SnapshotArchive{}
}

func (repo *SnapshotArchive) SaveSnapshot(_ context.Context, processID int, snap *live.Snapshot) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.nextID++
	repo.rows = append(repo.rows, live.ArchivedSnapshot{
		ID:          repo.nextID,
		ProcessID:   processID,
		GeneratedAt: snap.GeneratedAt,
		Snapshot:    snap,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (repo *SnapshotArchive) LatestSnapshot(_ context.Context, processID int) (*live.ArchivedSnapshot, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var latest *live.ArchivedSnapshot
	for i := range repo.rows {
		row := repo.rows[i]
		if row.ProcessID != processID {
			continue
		}
		if latest == nil || row.GeneratedAt.After(latest.GeneratedAt) ||
			(row.GeneratedAt.Equal(latest.GeneratedAt) && row.ID > latest.ID) {
			latest = &row
		}
	}
	return latest, nil
}

func (repo *SnapshotArchive) SnapshotHistory(_ context.Context, processID int, from, to time.Time, limit int) ([]live.ArchivedSnapshot, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if limit <= 0 {
		limit = 100
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	var out []live.ArchivedSnapshot
	for _, row := range repo.rows {
		if row.ProcessID != processID {
			continue
		}
		if row.GeneratedAt.Before(from) || row.GeneratedAt.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
