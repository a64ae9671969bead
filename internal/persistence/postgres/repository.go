package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/observability"
)

// ErrInvalidSnapshot is returned for a snapshot missing its identifying fields.
var ErrInvalidSnapshot = errors.New("snapshot requires id and instance id")

// SnapshotRepository appends workout count snapshots to Postgres. Rows are never read back
// into instance state.
type SnapshotRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// RecordSnapshot inserts snapshot. Re-recording an id is a no-op.
func (r *SnapshotRepository) RecordSnapshot(ctx context.Context, snapshot domain.WorkoutCountSnapshot) error {
	if snapshot.ID == "" || snapshot.InstanceID == "" {
		return ErrInvalidSnapshot
	}

	counts := snapshot.Counts
	if counts == nil {
		counts = []domain.WorkoutCategoryCount{}
	}
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}

	const query = `INSERT INTO workout_count_snapshots (snapshot_id, instance_id, user_id, counts, total_count, fetched_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (snapshot_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, snapshot.ID, snapshot.InstanceID, snapshot.UserID, payload, total, snapshot.FetchedAt); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	observability.RecordSnapshotArchived(r.now())
	return nil
}
