package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/victorpuello/kampus-sub004/core/live"
)

type archivedRow struct {
	ID          int       `db:"id"`
	ProcessID   int       `db:"process_id"`
	GeneratedAt time.Time `db:"generated_at"`
	Data        []byte    `db:"data"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r archivedRow) toArchived() (live.ArchivedSnapshot, error) {
	snap := new(live.Snapshot)
	if err := json.Unmarshal(r.Data, snap); err != nil {
		return live.ArchivedSnapshot{}, errors.Wrap(err, "decoding archived snapshot")
	}
	return live.ArchivedSnapshot{
		ID:          r.ID,
		ProcessID:   r.ProcessID,
		GeneratedAt: r.GeneratedAt,
		Snapshot:    snap,
		CreatedAt:   r.CreatedAt,
	}, nil
}

type snapshotArchive struct {
	db *sqlx.DB
}

var _ live.Archive = (*snapshotArchive)(nil)

func NewSnapshotArchive(db *sql.DB) *snapshotArchive {
	return &snapshotArchive{db: sqlx.NewDb(db, "postgres")}
}

func (repo *snapshotArchive) SaveSnapshot(ctx context.Context, processID int, snap *live.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO snapshot_archive (process_id, generated_at, data) VALUES ($1, $2, $3)`,
		processID, snap.GeneratedAt, data,
	)
	return errors.Wrap(err, "saving snapshot")
}

func (repo *snapshotArchive) LatestSnapshot(ctx context.Context, processID int) (*live.ArchivedSnapshot, error) {
	var row archivedRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, process_id, generated_at, data, created_at
		   FROM snapshot_archive
		  WHERE process_id = $1
		  ORDER BY generated_at DESC, id DESC
		  LIMIT 1`,
		processID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying latest snapshot")
	}

	arch, err := row.toArchived()
	if err != nil {
		return nil, err
	}
	return &arch, nil
}

func (repo *snapshotArchive) SnapshotHistory(ctx context.Context, processID int, from, to time.Time, limit int) ([]live.ArchivedSnapshot, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []archivedRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, process_id, generated_at, data, created_at
		   FROM snapshot_archive
		  WHERE process_id = $1 AND generated_at >= $2 AND generated_at <= $3
		  ORDER BY generated_at ASC, id ASC
		  LIMIT $4`,
		processID, from, to, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying snapshot history")
	}

	out := make([]live.ArchivedSnapshot, 0, len(rows))
	for _, row := range rows {
		arch, err := row.toArchived()
		if err != nil {
			return nil, err
		}
		out = append(out, arch)
	}
	return out, nil
}
