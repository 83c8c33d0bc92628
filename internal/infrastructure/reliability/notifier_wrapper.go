package reliability

import (
	"context"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/infrastructure/distributed"
	"pairlink/pkg/circuitbreaker"
	"pairlink/pkg/retry"

	"go.uber.org/zap"
)

// MirroringNotifier delivers through the primary notifier (the signal hub)
// and additionally mirrors events to redis through a retry + circuit breaker
// guard. The mirror is best-effort: its failure never affects the primary
// delivery or the broker's state.
type MirroringNotifier struct {
	primary ports.Notifier
	mirror  *distributed.EventBus
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewMirroringNotifier(
	primary ports.Notifier,
	mirror *distributed.EventBus,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *MirroringNotifier {
	n := &MirroringNotifier{
		primary:        primary,
		mirror:         mirror,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	n.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("event mirror circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return n
}

func (n *MirroringNotifier) PublishEvent(ctx context.Context, to domain.Identity, event domain.Event) error {
	err := n.primary.PublishEvent(ctx, to, event)

	// Mirror regardless of primary outcome: the recipient may be connected
	// to an external consumer even when its socket is gone.
	if mirrorErr := retry.Retry(ctx, n.retryConfig, func() error {
		return n.circuitBreaker.Execute(ctx, func() error {
			return n.mirror.Publish(ctx, to, event)
		})
	}); mirrorErr != nil {
		n.logger.Debugw("event mirror publish failed",
			"to", to,
			"type", event.EventType(),
			"error", mirrorErr,
		)
	}

	return err
}

// PublishMedia forwards media through the primary only: frame volume makes
// mirroring every payload to redis pointless.
func (n *MirroringNotifier) PublishMedia(ctx context.Context, to domain.Identity, from domain.Identity, channel domain.MediaChannel, payload []byte) error {
	return n.primary.PublishMedia(ctx, to, from, channel, payload)
}
