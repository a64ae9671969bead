package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/pelotonbridge/internal/domain"
)

func TestRecordSnapshotRequiresIdentity(t *testing.T) {
	repo := NewSnapshotRepository(nil)

	err := repo.RecordSnapshot(context.Background(), domain.WorkoutCountSnapshot{InstanceID: "w1"})
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	err = repo.RecordSnapshot(context.Background(), domain.WorkoutCountSnapshot{ID: "abc"})
	require.ErrorIs(t, err, ErrInvalidSnapshot)
}
