package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/buzzline/buzzline/go/internal/buzzer"
)

// Service is the buzzer gateway: it owns the WebSocket connection manager,
// the session coordinator and the optional NATS relay.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	coordinator       *buzzer.SessionCoordinator
	relay             *EventRelay
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	Session          buzzer.Config

	// Relay is enabled when Relay.URL is non-empty.
	Relay RelayConfig
}

// DefaultConfig returns default configuration for the gateway. The relay is
// disabled by default.
func DefaultConfig() Config {
	relay := DefaultRelayConfig()
	relay.URL = ""
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Session:          buzzer.DefaultConfig(),
		Relay:            relay,
	}
}

// NewService wires the gateway together.
func NewService(config Config, clock clockwork.Clock) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	var bcast buzzer.Broadcaster = connectionManager
	var relay *EventRelay
	if config.Relay.URL != "" {
		var err error
		relay, err = NewEventRelay(connectionManager, config.Relay)
		if err != nil {
			return nil, err
		}
		bcast = relay
	}

	coordinator := buzzer.NewSessionCoordinator(bcast, clock, config.Session)
	wsHandler := NewWebSocketHandler(connectionManager, coordinator)
	connectionManager.SetCommandHandler(wsHandler)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		coordinator:       coordinator,
		relay:             relay,
	}, nil
}

// Start begins the gateway service and blocks until the context ends.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting buzzer gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("buzzer gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if s.relay != nil {
		s.relay.Close()
	}
	log.Info().Msg("buzzer gateway service stopped")
	return nil
}

// Coordinator exposes the session coordinator, mainly for tests and tools.
func (s *Service) Coordinator() *buzzer.SessionCoordinator {
	return s.coordinator
}

// RegisterRoutes registers the WebSocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("buzzer gateway routes registered")
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "buzzer_gateway"
	stats["status"] = "running"
	return stats
}
