// Package history keeps the ordered in-memory view of one user's scans,
// synchronised from the record store.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
)

// Store is the scan history cache of a single user. The list is always
// ordered newest-first and is replaced wholesale, so readers never observe a
// half-updated view.
type Store struct {
	userID   string
	repo     scan.Repository
	log      *logger.Logger
	recorder shared.Recorder
	timeout  time.Duration

	mu      sync.RWMutex
	records []scan.Record
	loaded  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r shared.Recorder) Option {
	return func(s *Store) { s.recorder = shared.RecorderOrNop(r) }
}

// WithTimeout bounds every Reload call. Zero leaves the caller's deadline alone.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates an empty store for userID.
func New(userID string, repo scan.Repository, opts ...Option) (*Store, error) {
	if err := shared.RequireUserID("history", "New", userID); err != nil {
		return nil, err
	}
	s := &Store{
		userID:   userID,
		repo:     repo,
		log:      logger.Nop(),
		recorder: shared.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("history"), logger.UserID(userID))
	return s, nil
}

// UserID returns the owner of the history.
func (s *Store) UserID() string {
	return s.userID
}

// Reload replaces the cache with the store's current list. On failure the
// previous cache is kept and ErrStoreUnavailable is returned.
func (s *Store) Reload(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	records, err := s.repo.ListByUser(ctx, s.userID)
	if err != nil {
		s.recorder.HistoryReloadFailed()
		s.log.Warn("history reload failed", logger.Err(err))
		if errors.Is(err, shared.ErrMissingUserID) {
			return err
		}
		return shared.WrapError("history", "Reload", shared.ErrStoreUnavailable, "list scans", err)
	}

	fresh := make([]scan.Record, len(records))
	copy(fresh, records)
	scan.SortNewestFirst(fresh)

	s.mu.Lock()
	s.records = fresh
	s.loaded = true
	s.mu.Unlock()

	s.log.Debug("history reloaded", logger.Int("count", len(fresh)))
	return nil
}

// Append inserts a freshly persisted record. A record whose id is already
// cached is ignored, so Append followed by Reload converges to the same list.
func (s *Store) Append(rec scan.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == rec.ID {
			return
		}
	}

	next := make([]scan.Record, 0, len(s.records)+1)
	next = append(next, rec)
	next = append(next, s.records...)
	scan.SortNewestFirst(next)
	s.records = next
}

// Remove drops the record with id from the cache.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]scan.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.ID != id {
			next = append(next, r)
		}
	}
	s.records = next
}

// Clear empties the cache.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}

// Latest returns the newest record.
func (s *Store) Latest() (scan.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return scan.Record{}, false
	}
	return s.records[0], true
}

// Recent returns up to n newest records.
func (s *Store) Recent(n int) []scan.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]scan.Record, n)
	copy(out, s.records[:n])
	return out
}

// All returns a copy of the whole history, newest first.
func (s *Store) All() []scan.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]scan.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Count returns the number of cached records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Loaded reports whether at least one Reload succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
