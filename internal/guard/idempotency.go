package guard

import (
	"context"
	"sync"
	"time"

	"github.com/habitquest/platform/internal/domain"
)

// IdempotencyGuard deduplicates inbound events by idempotency key.
// Keys are forgotten after ttl; a zero ttl keeps them forever.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates a new in-memory idempotency guard.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check returns whether the given key has already been processed.
// The first check of a key records it.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if at, ok := ig.seen[key]; ok && (ig.ttl == 0 || now.Sub(at) < ig.ttl) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate event: idempotency key already processed",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Remove forgets a key so a failed event can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// Sweep drops expired keys.
func (ig *IdempotencyGuard) Sweep() int {
	if ig.ttl == 0 {
		return 0
	}
	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	removed := 0
	for key, at := range ig.seen {
		if now.Sub(at) >= ig.ttl {
			delete(ig.seen, key)
			removed++
		}
	}
	return removed
}
