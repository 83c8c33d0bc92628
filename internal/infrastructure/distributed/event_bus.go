package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pairlink/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannelPrefix = "pairlink:events:"

// Envelope is the wire form of a mirrored broker event.
type Envelope struct {
	Type       domain.EventType `json:"type"`
	To         domain.Identity  `json:"to"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus mirrors outbound broker events onto per-identity redis channels
// so external consumers (dashboards, audit) can observe them. It is never on
// the primary delivery path: mirror failure does not affect the socket send.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish mirrors one event to the recipient identity's channel.
func (eb *EventBus) Publish(ctx context.Context, to domain.Identity, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	envelope := Envelope{
		Type:       event.EventType(),
		To:         to,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		Payload:    payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	channel := eventChannelPrefix + string(to)
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("mirrored event",
		"type", envelope.Type,
		"to", to,
	)
	return nil
}

// Subscribe consumes mirrored events for the given identity, calling the
// handler for each. It blocks until the context is cancelled.
func (eb *EventBus) Subscribe(ctx context.Context, identity domain.Identity, handler func(*Envelope) error) error {
	pubsub := eb.client.Subscribe(ctx, eventChannelPrefix+string(identity))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				eb.logger.Warnw("failed to unmarshal envelope", "error", err, "payload", msg.Payload)
				continue
			}
			if err := handler(&envelope); err != nil {
				eb.logger.Warnw("error handling envelope", "type", envelope.Type, "error", err)
			}
		}
	}
}

// Ping reports broker-to-redis connectivity for health checks.
func (eb *EventBus) Ping(ctx context.Context) error {
	return eb.client.Ping(ctx).Err()
}
