package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

func newScan(userID string, at time.Time, overall float64) scan.NewScan {
	return scan.NewScan{UserID: userID, CreatedAt: at, Scores: scan.Scores{Overall: overall}}
}

func TestScanRepository_InsertAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()
	t0 := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	a, err := repo.Insert(ctx, newScan("u1", t0, 70))
	require.NoError(t, err)
	b, err := repo.Insert(ctx, newScan("u2", t0, 80))
	require.NoError(t, err)
	c, err := repo.Insert(ctx, newScan("u1", t0.Add(time.Hour), 90))
	require.NoError(t, err)

	assert.Less(t, a.ID, b.ID)
	assert.Less(t, b.ID, c.ID)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestScanRepository_RejectsMissingUserAndMalformed(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()

	_, err := repo.Insert(ctx, newScan("", time.Now(), 70))
	assert.ErrorIs(t, err, shared.ErrMissingUserID)

	_, err = repo.Insert(ctx, newScan("u1", time.Now(), 140))
	assert.ErrorIs(t, err, shared.ErrMalformedInput)

	_, err = repo.ListByUser(ctx, "")
	assert.ErrorIs(t, err, shared.ErrMissingUserID)
}

func TestScanRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()

	rec, err := repo.Insert(ctx, newScan("u1", time.Now(), 70))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, "u2", rec.ID), shared.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "u1", rec.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "u1", rec.ID), shared.ErrNotFound)

	_, err = repo.Insert(ctx, newScan("u1", time.Now(), 70))
	require.NoError(t, err)
	require.NoError(t, repo.DeleteAllByUser(ctx, "u1"))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScanRepository_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanRepository().Insert(ctx, newScan("u1", time.Now(), 70))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAchievementRepository_OnePerUserAndType(t *testing.T) {
	ctx := context.Background()
	repo := NewAchievementRepository()
	t0 := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	first := achievement.Record{ID: "a", UserID: "u1", Type: achievement.FirstScan, UnlockedAt: t0}
	require.NoError(t, repo.Insert(ctx, first))

	dup := first
	dup.ID = "b"
	assert.ErrorIs(t, repo.Insert(ctx, dup), shared.ErrAlreadyExists)

	require.NoError(t, repo.Insert(ctx, achievement.Record{
		ID: "c", UserID: "u1", Type: achievement.Expert, UnlockedAt: t0.Add(time.Hour),
	}))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, achievement.Expert, list[0].Type)
	assert.Equal(t, "a", list[1].ID)
}

func TestAchievementRepository_RejectsInvalidType(t *testing.T) {
	err := NewAchievementRepository().Insert(context.Background(), achievement.Record{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrMalformedInput)
}
