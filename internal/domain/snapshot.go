package domain

import (
	"context"
	"time"
)

// WorkoutCountSnapshot records the raw workout counts seen by one successful profile fetch.
type WorkoutCountSnapshot struct {
	ID         string
	InstanceID string
	UserID     string
	Counts     []WorkoutCategoryCount
	FetchedAt  time.Time
}

// SnapshotRecorder archives workout count snapshots. Snapshots are never read back into
// instance state.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snapshot WorkoutCountSnapshot) error
}
