package saga

import (
	"context"
	"sync"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// Guard admits at most one ingest per user at a time.
type Guard interface {
	// Acquire claims the user's slot. It returns shared.ErrIngestInProgress
	// when the slot is already held, and a release func otherwise.
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// LocalGuard is an in-process Guard backed by an in-flight set.
type LocalGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewLocalGuard creates an empty guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{inFlight: make(map[string]struct{})}
}

// Acquire implements Guard.
func (g *LocalGuard) Acquire(_ context.Context, userID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[userID]; busy {
		return nil, shared.NewDomainError("saga", "Acquire", shared.ErrIngestInProgress,
			"an ingest is already running for this user")
	}
	g.inFlight[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, userID)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether userID currently holds the slot.
func (g *LocalGuard) InFlight(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[userID]
	return ok
}
