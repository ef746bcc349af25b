package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/buzzline/buzzline/go/internal/buzzer"
)

// RelayConfig holds configuration for the NATS event relay.
type RelayConfig struct {
	URL           string
	SubjectPrefix string // e.g. "buzzer.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultRelayConfig returns default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "buzzer.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventRelay decorates a Broadcaster so every room broadcast is also
// published to NATS under <prefix>.<roomId>, letting external observers
// (scoreboards, projectors) follow sessions without a websocket. Unicasts
// are not relayed.
type EventRelay struct {
	inner  buzzer.Broadcaster
	nc     *nats.Conn
	config RelayConfig
}

// NewEventRelay connects to NATS and wraps the given broadcaster.
func NewEventRelay(inner buzzer.Broadcaster, config RelayConfig) (*EventRelay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().
		Str("url", config.URL).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("NATS event relay connected")

	return &EventRelay{inner: inner, nc: nc, config: config}, nil
}

// JoinRoom delegates to the wrapped broadcaster.
func (r *EventRelay) JoinRoom(connectionID, roomID string) {
	r.inner.JoinRoom(connectionID, roomID)
}

// CloseRoom delegates to the wrapped broadcaster.
func (r *EventRelay) CloseRoom(roomID string) {
	r.inner.CloseRoom(roomID)
}

// BroadcastToRoom fans out through the wrapped broadcaster and publishes a
// copy to NATS. Publish failures are logged and never surfaced to the core.
func (r *EventRelay) BroadcastToRoom(roomID string, event *buzzer.Event) {
	r.inner.BroadcastToRoom(roomID, event)

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for relay")
		return
	}
	subject := fmt.Sprintf("%s.%s", r.config.SubjectPrefix, roomID)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish event to NATS")
	}
}

// SendToConnection delegates to the wrapped broadcaster.
func (r *EventRelay) SendToConnection(connectionID string, event *buzzer.Event) {
	r.inner.SendToConnection(connectionID, event)
}

// Close drains the NATS connection.
func (r *EventRelay) Close() {
	if err := r.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
