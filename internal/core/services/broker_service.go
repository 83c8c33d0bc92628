package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"

	"go.uber.org/zap"
)

// brokerService composes the registry, connection table, presence tracker
// and notifier into the public broker API. It owns the per-identity
// capability and audio-participation state; no other component mutates it.
type brokerService struct {
	registry ports.SessionRegistry
	table    ports.ConnectionTable
	presence ports.PresenceTracker
	notifier ports.Notifier
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	mu           sync.Mutex
	capabilities map[domain.Identity]domain.Capabilities
	audioOn      map[domain.Identity]bool
}

func NewBrokerService(
	registry ports.SessionRegistry,
	table ports.ConnectionTable,
	presence ports.PresenceTracker,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) ports.BrokerService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &brokerService{
		registry:     registry,
		table:        table,
		presence:     presence,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		capabilities: make(map[domain.Identity]domain.Capabilities),
		audioOn:      make(map[domain.Identity]bool),
	}
}

func (b *brokerService) CreateSession(ctx context.Context, creator domain.Identity, code domain.SessionCode, req domain.MediaRequest) (domain.Capabilities, error) {
	// An identity cannot open a new rendezvous while paired.
	if _, err := b.table.PeerOf(ctx, creator); err == nil {
		return domain.Capabilities{}, domain.ErrPeerBusy
	}

	if err := b.registry.Create(ctx, code, creator); err != nil {
		return domain.Capabilities{}, err
	}

	caps := domain.Capabilities{Video: true, Audio: req.Audio}
	b.mu.Lock()
	b.capabilities[creator] = caps
	b.mu.Unlock()

	b.logger.Infow("session created", "creator", creator, "code", code, "audio_requested", req.Audio)
	b.publishEvent(ctx, creator, domain.CreatedEvent{Code: code, Capabilities: caps})
	b.updateGauges(ctx)
	return caps, nil
}

func (b *brokerService) JoinSession(ctx context.Context, joiner domain.Identity, code domain.SessionCode, req domain.MediaRequest) error {
	creator, err := b.registry.Consume(ctx, code)
	if err != nil {
		return err
	}
	if creator == joiner {
		return domain.ErrPeerBusy
	}

	// The creator's audio request was captured at creation time; the
	// joiner's request is ANDed against it.
	b.mu.Lock()
	creatorCaps, recorded := b.capabilities[creator]
	b.mu.Unlock()
	if !recorded {
		creatorCaps = domain.Capabilities{Video: true}
	}
	negotiated := NegotiateCapabilities(req, domain.MediaRequest{Audio: creatorCaps.Audio})

	if err := b.table.Pair(ctx, creator, joiner); err != nil {
		return err
	}

	b.mu.Lock()
	b.capabilities[creator] = negotiated
	b.capabilities[joiner] = negotiated
	b.audioOn[creator] = negotiated.Audio
	b.audioOn[joiner] = negotiated.Audio
	b.mu.Unlock()

	b.logger.Infow("session joined",
		"creator", creator,
		"joiner", joiner,
		"code", code,
		"audio", negotiated.Audio,
	)

	b.publishEvent(ctx, creator, domain.ConnectedEvent{Peer: joiner, Capabilities: negotiated})
	b.publishEvent(ctx, joiner, domain.ConnectedEvent{Peer: creator, Capabilities: negotiated})
	b.updateGauges(ctx)
	return nil
}

func (b *brokerService) PrivilegedConnect(ctx context.Context, caller domain.Identity, roles []domain.Role, target domain.Identity, req domain.MediaRequest) error {
	if err := RequireRole(roles, domain.RoleSuperuser); err != nil {
		return err
	}
	if caller == target {
		return domain.ErrPeerBusy
	}
	if !b.presence.IsLive(ctx, target) {
		return domain.ErrTargetNotLive
	}

	evicted, err := b.table.ForcePair(ctx, caller, target)
	if err != nil {
		return err
	}

	// The target takes no part in this negotiation: it implicitly accepts
	// whatever the caller requested.
	negotiated := NegotiateCapabilities(req, domain.MediaRequest{Audio: true})

	b.mu.Lock()
	for _, e := range evicted {
		delete(b.capabilities, e.Identity)
		delete(b.audioOn, e.Identity)
	}
	b.capabilities[caller] = negotiated
	b.capabilities[target] = negotiated
	b.audioOn[caller] = negotiated.Audio
	b.audioOn[target] = negotiated.Audio
	b.mu.Unlock()

	b.logger.Infow("privileged connect",
		"caller", caller,
		"target", target,
		"evicted", len(evicted),
		"audio", negotiated.Audio,
	)

	for _, e := range evicted {
		b.publishEvent(ctx, e.Identity, domain.DisconnectedEvent{Peer: e.FormerPeer, Reason: domain.ReasonPreempted})
	}
	b.publishEvent(ctx, caller, domain.ConnectedEvent{Peer: target, Capabilities: negotiated})
	b.publishEvent(ctx, target, domain.ConnectedEvent{Peer: caller, Capabilities: negotiated})
	b.updateGauges(ctx)
	return nil
}

func (b *brokerService) EndSession(ctx context.Context, caller domain.Identity) error {
	peer, err := b.table.Unpair(ctx, caller)
	if err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			// Ending without a peer is a no-op, not an error.
			return nil
		}
		return err
	}

	b.clearPairState(caller, peer)

	b.logger.Infow("session ended", "caller", caller, "peer", peer)
	b.publishEvent(ctx, peer, domain.DisconnectedEvent{Peer: caller, Reason: domain.ReasonEnded})
	b.updateGauges(ctx)
	return nil
}

func (b *brokerService) ToggleAudio(ctx context.Context, caller domain.Identity) error {
	peer, err := b.table.PeerOf(ctx, caller)
	if err != nil {
		return domain.ErrNoActiveSession
	}

	b.mu.Lock()
	caps := b.capabilities[caller]
	if !caps.Audio {
		b.mu.Unlock()
		return domain.ErrAudioUnavailable
	}
	b.audioOn[caller] = !b.audioOn[caller]
	enabled := b.audioOn[caller]
	b.mu.Unlock()

	b.logger.Infow("audio toggled", "caller", caller, "enabled", enabled)

	event := domain.AudioStateChangedEvent{Peer: caller, AudioEnabled: enabled}
	b.publishEvent(ctx, caller, event)
	b.publishEvent(ctx, peer, event)
	return nil
}

func (b *brokerService) ForwardFrame(ctx context.Context, sender domain.Identity, channel domain.MediaChannel, payload []byte) error {
	b.presence.Touch(ctx, sender)

	peer, err := b.table.PeerOf(ctx, sender)
	if err != nil {
		// Frames racing a not-yet or no-longer established pairing are
		// dropped without surfacing an error.
		b.metrics.RecordFrameDropped(channel, "no_peer")
		return nil
	}

	if channel == domain.ChannelAudio {
		b.mu.Lock()
		allowed := b.audioOn[sender] && b.audioOn[peer]
		b.mu.Unlock()
		if !allowed {
			b.metrics.RecordFrameDropped(channel, "audio_off")
			return nil
		}
	}

	if err := b.notifier.PublishMedia(ctx, peer, sender, channel, payload); err != nil {
		b.logger.Debugw("media publish failed", "to", peer, "channel", channel, "error", err)
		b.metrics.RecordFrameDropped(channel, "publish_failed")
		return nil
	}

	b.metrics.RecordFrameForwarded(channel, len(payload))
	return nil
}

func (b *brokerService) Heartbeat(ctx context.Context, caller domain.Identity) {
	b.presence.Touch(ctx, caller)
}

func (b *brokerService) ListLiveUsers(ctx context.Context, caller domain.Identity, roles []domain.Role) ([]domain.Identity, error) {
	if err := RequireRole(roles, domain.RoleSuperuser); err != nil {
		return nil, err
	}

	live := b.presence.Live(ctx)
	users := make([]domain.Identity, 0, len(live))
	for _, id := range live {
		if id != caller {
			users = append(users, id)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	b.publishEvent(ctx, caller, domain.ActiveUsersEvent{Users: users})
	return users, nil
}

func (b *brokerService) SessionSnapshot(ctx context.Context) (map[domain.SessionCode]domain.Identity, error) {
	return b.registry.Snapshot(ctx)
}

func (b *brokerService) PairingSnapshot(ctx context.Context) (map[domain.Identity]domain.Identity, error) {
	return b.table.Snapshot(ctx)
}

func (b *brokerService) EvictInactive(ctx context.Context) int {
	stale := b.presence.EvictStale(ctx)

	for _, id := range stale {
		peer, err := b.table.Unpair(ctx, id)
		if err != nil {
			// Not paired: only drop the lingering local state.
			b.mu.Lock()
			delete(b.capabilities, id)
			delete(b.audioOn, id)
			b.mu.Unlock()
			continue
		}

		// Table mutation is committed before the notification is attempted,
		// so a failed publish cannot leave a half-unpaired table.
		b.clearPairState(id, peer)
		b.logger.Infow("evicted inactive identity", "identity", id, "peer", peer)
		b.publishEvent(ctx, peer, domain.DisconnectedEvent{Peer: id, Reason: domain.ReasonInactive})
	}

	if len(stale) > 0 {
		b.metrics.RecordSweepEvictions(len(stale))
	}
	b.updateGauges(ctx)
	return len(stale)
}

func (b *brokerService) ExpireSession(ctx context.Context, creator domain.Identity) {
	// A creator that paired after creating the now-expired code keeps its
	// negotiated state; only rendezvous state with no pairing is released.
	if _, err := b.table.PeerOf(ctx, creator); err == nil {
		return
	}

	b.mu.Lock()
	delete(b.capabilities, creator)
	delete(b.audioOn, creator)
	b.mu.Unlock()

	b.logger.Debugw("released state for expired session", "creator", creator)
	b.updateGauges(ctx)
}

func (b *brokerService) clearPairState(a, peer domain.Identity) {
	b.mu.Lock()
	delete(b.capabilities, a)
	delete(b.capabilities, peer)
	delete(b.audioOn, a)
	delete(b.audioOn, peer)
	b.mu.Unlock()
}

// publishEvent delivers an event to a single identity. Delivery failures are
// logged and never propagate: local state is already committed.
func (b *brokerService) publishEvent(ctx context.Context, to domain.Identity, event domain.Event) {
	if err := b.notifier.PublishEvent(ctx, to, event); err != nil {
		b.logger.Debugw("event publish failed", "to", to, "type", event.EventType(), "error", err)
		return
	}
	b.metrics.RecordEventPublished(event.EventType())
}

func (b *brokerService) updateGauges(ctx context.Context) {
	if sessions, err := b.registry.Snapshot(ctx); err == nil {
		b.metrics.SetPendingSessions(len(sessions))
	}
	if pairings, err := b.table.Snapshot(ctx); err == nil {
		b.metrics.SetActivePairings(len(pairings) / 2)
	}
	b.metrics.SetLiveIdentities(len(b.presence.Live(ctx)))
}

type noopMetrics struct{}

func (noopMetrics) SetPendingSessions(int)                             {}
func (noopMetrics) SetActivePairings(int)                              {}
func (noopMetrics) SetLiveIdentities(int)                              {}
func (noopMetrics) RecordFrameForwarded(domain.MediaChannel, int)      {}
func (noopMetrics) RecordFrameDropped(domain.MediaChannel, string)     {}
func (noopMetrics) RecordEventPublished(domain.EventType)              {}
func (noopMetrics) RecordSweepEvictions(int)                           {}
func (noopMetrics) RecordCodeExpired()                                 {}
