package ports

import (
	"context"

	"pairlink/internal/core/domain"
)

// SessionRegistry maps pending session codes to the identity that created
// them. A code is single-use: it is removed by Consume or by TTL expiry,
// whichever happens first.
type SessionRegistry interface {
	// Create inserts a pending code. It fails with domain.ErrDuplicateCode
	// when the code is already pending for another creator. A creator holds
	// at most one pending code: any earlier code by the same creator is
	// cancelled and replaced.
	Create(ctx context.Context, code domain.SessionCode, creator domain.Identity) error
	Resolve(ctx context.Context, code domain.SessionCode) (domain.Identity, error)
	// Consume atomically resolves and removes the code so it cannot be
	// joined twice concurrently.
	Consume(ctx context.Context, code domain.SessionCode) (domain.Identity, error)
	Snapshot(ctx context.Context) (map[domain.SessionCode]domain.Identity, error)
}

// ConnectionTable is the single source of truth for who is paired with whom.
// Every pairing is stored as two symmetric directed entries written and
// removed under one critical section.
type ConnectionTable interface {
	// Pair links a and b. Fails with domain.ErrPeerBusy when either side
	// already has a peer.
	Pair(ctx context.Context, a, b domain.Identity) error
	// Unpair removes both directions of a's pairing and returns the former
	// peer, or domain.ErrNotConnected.
	Unpair(ctx context.Context, a domain.Identity) (domain.Identity, error)
	PeerOf(ctx context.Context, a domain.Identity) (domain.Identity, error)
	// ForcePair evicts any existing peers of a and b, then pairs a and b,
	// all as one atomic sequence. Returns the evicted former peers together
	// with the side of the new pairing they were evicted from.
	ForcePair(ctx context.Context, a, b domain.Identity) ([]domain.Eviction, error)
	Snapshot(ctx context.Context) (map[domain.Identity]domain.Identity, error)
}

// PresenceTracker records last-activity timestamps and answers liveness
// queries against a fixed activity timeout.
type PresenceTracker interface {
	Touch(ctx context.Context, id domain.Identity)
	IsLive(ctx context.Context, id domain.Identity) bool
	Live(ctx context.Context) []domain.Identity
	// EvictStale removes every record older than the activity timeout and
	// returns the evicted identities. Removal is compare-and-delete: an
	// entry refreshed concurrently is kept.
	EvictStale(ctx context.Context) []domain.Identity
	Remove(ctx context.Context, id domain.Identity)
}
