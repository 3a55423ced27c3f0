package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/presence-gateway/internal/auth"
	"github.com/Tyrowin/presence-gateway/internal/presence"
)

// CredentialVerifier validates a bearer token and returns its claims.
type CredentialVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Gateway is the protocol-facing side of the service. It owns the upgrader,
// the connection registry and the hub, and drives every connection through
// Connecting -> Authenticated -> Closed.
type Gateway struct {
	cfg      *Config
	verifier CredentialVerifier
	registry *presence.Registry
	hub      *Hub
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   zerolog.Logger
	newID    func() string
}

// NewGateway wires a gateway with a fresh registry. Call Start before
// serving traffic.
func NewGateway(cfg *Config, verifier CredentialVerifier, resolver presence.IdentityResolver, logger zerolog.Logger) *Gateway {
	logger = logger.With().Str("component", "gateway").Logger()
	metrics := NewMetrics()
	registry := presence.NewRegistry(resolver)
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Gateway{
		cfg:      cfg,
		verifier: verifier,
		registry: registry,
		hub:      NewHub(registry, cfg.EmptyMessagePlaceholder, metrics, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		metrics: metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Start launches the hub event loop.
func (g *Gateway) Start() {
	go g.hub.Run()
	g.logger.Info().Msg("Hub started and ready to manage WebSocket connections")
}

// Shutdown closes every live connection and discards registry state.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	return g.hub.Shutdown(timeout)
}

// Registry exposes the connection registry for read-only use.
func (g *Gateway) Registry() *presence.Registry {
	return g.registry
}

// Metrics returns the gateway's collectors.
func (g *Gateway) Metrics() *Metrics {
	return g.metrics
}
