package ports

import (
	"context"

	"pairlink/internal/core/domain"
)

// Notifier delivers outbound events and media payloads to a single
// identity's private channel. Delivery is fire-and-forget from the broker's
// point of view: a failed publish never rolls back state.
type Notifier interface {
	PublishEvent(ctx context.Context, to domain.Identity, event domain.Event) error
	PublishMedia(ctx context.Context, to domain.Identity, from domain.Identity, channel domain.MediaChannel, payload []byte) error
}

// BrokerService is the public API of the session broker. Every call carries
// the already-authenticated caller identity; privileged calls also carry the
// caller's role set.
type BrokerService interface {
	CreateSession(ctx context.Context, creator domain.Identity, code domain.SessionCode, req domain.MediaRequest) (domain.Capabilities, error)
	JoinSession(ctx context.Context, joiner domain.Identity, code domain.SessionCode, req domain.MediaRequest) error
	PrivilegedConnect(ctx context.Context, caller domain.Identity, roles []domain.Role, target domain.Identity, req domain.MediaRequest) error
	EndSession(ctx context.Context, caller domain.Identity) error
	ToggleAudio(ctx context.Context, caller domain.Identity) error
	ForwardFrame(ctx context.Context, sender domain.Identity, channel domain.MediaChannel, payload []byte) error
	Heartbeat(ctx context.Context, caller domain.Identity)
	ListLiveUsers(ctx context.Context, caller domain.Identity, roles []domain.Role) ([]domain.Identity, error)

	// Diagnostic snapshots of the registry and connection table.
	SessionSnapshot(ctx context.Context) (map[domain.SessionCode]domain.Identity, error)
	PairingSnapshot(ctx context.Context) (map[domain.Identity]domain.Identity, error)

	// EvictInactive runs one sweep pass: stale identities lose their
	// presence record, their pairing is torn down and the peer is notified.
	// Returns the number of evicted identities.
	EvictInactive(ctx context.Context) int

	// ExpireSession releases the creator-side state recorded at create time
	// once the pending code has expired unjoined. A creator that has since
	// paired keeps its state.
	ExpireSession(ctx context.Context, creator domain.Identity)
}

// MetricsRecorder receives broker-level measurements. Implemented by the
// prometheus collector; a no-op recorder is substituted when nil.
type MetricsRecorder interface {
	SetPendingSessions(n int)
	SetActivePairings(n int)
	SetLiveIdentities(n int)
	RecordFrameForwarded(channel domain.MediaChannel, bytes int)
	RecordFrameDropped(channel domain.MediaChannel, reason string)
	RecordEventPublished(eventType domain.EventType)
	RecordSweepEvictions(n int)
	RecordCodeExpired()
}
