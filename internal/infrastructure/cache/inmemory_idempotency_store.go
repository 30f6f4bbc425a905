package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lendsaas/backend/internal/domain/shared"
)

const sweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps markers in process memory. Markers are not
// shared between instances, so each node may act on the same key once.
// Expired markers are swept on write at most once per sweepInterval.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// MarkProcessed sets a marker for key unless a live one exists.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)
	if until, ok := s.expiry[key]; ok && now.Before(until) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.expiry[key]
	return ok && s.now().Before(until), nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expiry, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op; the store holds no background resources.
func (s *InMemoryIdempotencyStore) Close() error { return nil }

// Len returns the number of markers held, expired ones included.
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

// caller holds mu
func (s *InMemoryIdempotencyStore) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, key)
		}
	}
}
