package providers

import (
	"sync"
	"time"
)

const DefaultDegradationTTL = 30 * time.Minute

// HealthTracker keeps a time-boxed degradation mark per provider.
// Marks are set on rate-limit/timeout signals and expire lazily: an
// expired entry is evicted the next time it is consulted, so no
// background sweeper is needed. Safe for concurrent use.
type HealthTracker struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	degraded map[string]time.Time
}

func NewHealthTracker(ttl time.Duration) *HealthTracker {
	if ttl <= 0 {
		ttl = DefaultDegradationTTL
	}
	return &HealthTracker{
		ttl:      ttl,
		now:      time.Now,
		degraded: make(map[string]time.Time),
	}
}

func (t *HealthTracker) MarkDegraded(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.degraded[provider] = t.now().Add(t.ttl)
}

func (t *HealthTracker) IsDegraded(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.degraded[provider]
	if !ok {
		return false
	}
	if t.now().After(until) {
		delete(t.degraded, provider)
		return false
	}
	return true
}
