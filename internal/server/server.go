package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/newproject8/returnfeed-backend/internal/config"
	"github.com/newproject8/returnfeed-backend/internal/relay"
)

type Server struct {
	echo          *echo.Echo
	config        *config.Config
	hub           *relay.Hub
	verifier      relay.TokenVerifier // nil when AUTH_REQUIRED is off
	clock         clockwork.Clock
	upgrader      websocket.Upgrader
	globalLimiter *GlobalConnectionLimiter
	ipLimiter     *IPConnectionLimiter
	startTime     time.Time
}

// NewServer wires the HTTP layer around the hub. verifier must be nil (not a
// typed nil) when the authenticated variant is off.
func NewServer(cfg *config.Config, hub *relay.Hub, verifier relay.TokenVerifier, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:     e,
		config:   cfg,
		hub:      hub,
		verifier: verifier,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		globalLimiter: NewGlobalConnectionLimiter(cfg.MaxConnections),
		ipLimiter:     NewIPConnectionLimiter(cfg.MaxConnectionsPerIP),
		startTime:     clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
