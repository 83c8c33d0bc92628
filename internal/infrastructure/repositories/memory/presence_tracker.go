package memory

import (
	"context"
	"sync"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
)

// PresenceTracker records the last-activity timestamp per identity. An
// identity is live while its record is younger than the activity timeout.
type PresenceTracker struct {
	lastSeen map[domain.Identity]time.Time
	timeout  time.Duration
	mu       sync.RWMutex
}

func NewPresenceTracker(activityTimeout time.Duration) ports.PresenceTracker {
	return &PresenceTracker{
		lastSeen: make(map[domain.Identity]time.Time),
		timeout:  activityTimeout,
	}
}

func (p *PresenceTracker) Touch(ctx context.Context, id domain.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[id] = time.Now()
}

func (p *PresenceTracker) IsLive(ctx context.Context, id domain.Identity) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen, exists := p.lastSeen[id]
	if !exists {
		return false
	}
	return time.Since(seen) <= p.timeout
}

func (p *PresenceTracker) Live(ctx context.Context) []domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := time.Now()
	live := make([]domain.Identity, 0, len(p.lastSeen))
	for id, seen := range p.lastSeen {
		if now.Sub(seen) <= p.timeout {
			live = append(live, id)
		}
	}
	return live
}

// EvictStale removes every record older than the activity timeout under a
// single lock, so an identity touched concurrently is never evicted with a
// fresh timestamp.
func (p *PresenceTracker) EvictStale(ctx context.Context) []domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var stale []domain.Identity
	for id, seen := range p.lastSeen {
		if now.Sub(seen) > p.timeout {
			delete(p.lastSeen, id)
			stale = append(stale, id)
		}
	}
	return stale
}

func (p *PresenceTracker) Remove(ctx context.Context, id domain.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastSeen, id)
}
