// Package memory provides in-process implementations of the record store
// repositories. They back local runs and tests and honour the same
// contracts as the PostgreSQL adapters.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCANS
// ══════════════════════════════════════════════════════════════════════════════

// ScanRepository stores scans per user with a global increasing id.
type ScanRepository struct {
	mu     sync.RWMutex
	nextID int64
	byUser map[string][]scan.Record
}

// NewScanRepository creates an empty repository.
func NewScanRepository() *ScanRepository {
	return &ScanRepository{byUser: make(map[string][]scan.Record)}
}

// Insert implements scan.Repository.
func (r *ScanRepository) Insert(ctx context.Context, n scan.NewScan) (scan.Record, error) {
	if err := ctx.Err(); err != nil {
		return scan.Record{}, err
	}
	if err := n.Validate(); err != nil {
		return scan.Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	rec := n.Record(r.nextID)
	r.byUser[n.UserID] = append(r.byUser[n.UserID], rec)
	return rec, nil
}

// ListByUser implements scan.Repository.
func (r *ScanRepository) ListByUser(ctx context.Context, userID string) ([]scan.Record, error) {
	if err := shared.RequireUserID("scan_repo", "ListByUser", userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]scan.Record, len(r.byUser[userID]))
	copy(out, r.byUser[userID])
	r.mu.RUnlock()

	scan.SortNewestFirst(out)
	return out, nil
}

// Delete implements scan.Repository.
func (r *ScanRepository) Delete(ctx context.Context, userID string, id int64) error {
	if err := shared.RequireUserID("scan_repo", "Delete", userID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.byUser[userID]
	for i, rec := range records {
		if rec.ID == id {
			r.byUser[userID] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return shared.NewDomainError("scan_repo", "Delete", shared.ErrNotFound,
		fmt.Sprintf("scan %d not found", id))
}

// DeleteAllByUser implements scan.Repository.
func (r *ScanRepository) DeleteAllByUser(ctx context.Context, userID string) error {
	if err := shared.RequireUserID("scan_repo", "DeleteAllByUser", userID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.byUser, userID)
	r.mu.Unlock()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository stores unlocks keyed by (user, type).
type AchievementRepository struct {
	mu     sync.RWMutex
	byUser map[string]map[achievement.Type]achievement.Record
}

// NewAchievementRepository creates an empty repository.
func NewAchievementRepository() *AchievementRepository {
	return &AchievementRepository{byUser: make(map[string]map[achievement.Type]achievement.Record)}
}

// Insert implements achievement.Repository. A duplicate (user, type) returns
// ErrAlreadyExists and leaves the stored record untouched.
func (r *AchievementRepository) Insert(ctx context.Context, rec achievement.Record) error {
	if err := shared.RequireUserID("achievement_repo", "Insert", rec.UserID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.Type.Valid() {
		return shared.NewDomainError("achievement_repo", "Insert", shared.ErrMalformedInput,
			"invalid achievement type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unlocked, ok := r.byUser[rec.UserID]
	if !ok {
		unlocked = make(map[achievement.Type]achievement.Record)
		r.byUser[rec.UserID] = unlocked
	}
	if _, exists := unlocked[rec.Type]; exists {
		return shared.NewDomainError("achievement_repo", "Insert", shared.ErrAlreadyExists,
			fmt.Sprintf("%s already unlocked", rec.Type))
	}
	unlocked[rec.Type] = rec
	return nil
}

// ListByUser implements achievement.Repository.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Record, error) {
	if err := shared.RequireUserID("achievement_repo", "ListByUser", userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]achievement.Record, 0, len(r.byUser[userID]))
	for _, rec := range r.byUser[userID] {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.After(out[j].UnlockedAt)
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}
