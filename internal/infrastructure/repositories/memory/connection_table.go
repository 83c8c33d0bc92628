package memory

import (
	"context"
	"sync"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
)

// ConnectionTable keeps the symmetric pairing relation in memory. Both
// directions of a pairing are written and removed under one critical
// section, so no caller can observe a half-written pairing.
type ConnectionTable struct {
	peers map[domain.Identity]domain.Identity
	mu    sync.RWMutex
}

func NewConnectionTable() ports.ConnectionTable {
	return &ConnectionTable{
		peers: make(map[domain.Identity]domain.Identity),
	}
}

func (t *ConnectionTable) Pair(ctx context.Context, a, b domain.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a == b {
		return domain.ErrPeerBusy
	}
	if _, exists := t.peers[a]; exists {
		return domain.ErrPeerBusy
	}
	if _, exists := t.peers[b]; exists {
		return domain.ErrPeerBusy
	}

	t.peers[a] = b
	t.peers[b] = a
	return nil
}

func (t *ConnectionTable) Unpair(ctx context.Context, a domain.Identity) (domain.Identity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.unpairLocked(a)
}

func (t *ConnectionTable) unpairLocked(a domain.Identity) (domain.Identity, error) {
	peer, exists := t.peers[a]
	if !exists {
		return "", domain.ErrNotConnected
	}

	delete(t.peers, a)
	delete(t.peers, peer)
	return peer, nil
}

func (t *ConnectionTable) PeerOf(ctx context.Context, a domain.Identity) (domain.Identity, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peer, exists := t.peers[a]
	if !exists {
		return "", domain.ErrNotConnected
	}
	return peer, nil
}

func (t *ConnectionTable) ForcePair(ctx context.Context, a, b domain.Identity) ([]domain.Eviction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a == b {
		return nil, domain.ErrPeerBusy
	}

	// Already paired with each other: nothing to evict.
	if peer, exists := t.peers[a]; exists && peer == b {
		return nil, nil
	}

	var evicted []domain.Eviction
	if peer, err := t.unpairLocked(a); err == nil {
		evicted = append(evicted, domain.Eviction{Identity: peer, FormerPeer: a})
	}
	if peer, err := t.unpairLocked(b); err == nil {
		evicted = append(evicted, domain.Eviction{Identity: peer, FormerPeer: b})
	}

	t.peers[a] = b
	t.peers[b] = a
	return evicted, nil
}

func (t *ConnectionTable) Snapshot(ctx context.Context) (map[domain.Identity]domain.Identity, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make(map[domain.Identity]domain.Identity, len(t.peers))
	for a, b := range t.peers {
		snapshot[a] = b
	}
	return snapshot, nil
}
