// Package server wires the Guardian coordinator's routes and middleware.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/broadcast"
	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/claims"
	"github.com/auralis-ai/guardian/pkg/guardian/config"
	"github.com/auralis-ai/guardian/pkg/guardian/handlers"
	"github.com/auralis-ai/guardian/pkg/guardian/lifecycle"
	"github.com/auralis-ai/guardian/pkg/guardian/mediaroom"
	"github.com/auralis-ai/guardian/pkg/guardian/monitor"
	"github.com/auralis-ai/guardian/pkg/guardian/mw"
	"github.com/auralis-ai/guardian/pkg/guardian/ratelimit"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/takeover"
)

// Deps carries the server's injected collaborators. Every field is explicit
// so tests can substitute in-process implementations.
type Deps struct {
	Store store.Store
	Bus   bus.Bus
	// Claims is the worker room-claim registry.
	Claims *claims.Registry
	// Rooms is the media-room client; may be unconfigured.
	Rooms *mediaroom.Client
	// TakeoverLimiter bounds takeover attempts per operator.
	TakeoverLimiter takeover.Limiter
	// RedisPing verifies bus/claims connectivity for readiness. Optional.
	RedisPing handlers.Pinger
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps      Deps
	monitor   *monitor.Service
	takeover  *takeover.Orchestrator
	hub       *broadcast.Hub
	limiter   *ratelimit.Limiter
	lifecycle *lifecycle.Lifecycle
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                  cfg.LimitRPS,
			Burst:                cfg.LimitBurst,
			MaxConcurrentStreams: cfg.MaxStreamsPerCaller,
		}),
		lifecycle: &lifecycle.Lifecycle{},
	}

	s.monitor = monitor.NewService(deps.Store, deps.Bus, logger)
	s.takeover = takeover.NewOrchestrator(deps.Store, deps.Bus, roomSender(deps.Rooms), deps.TakeoverLimiter, logger)
	s.hub = broadcast.NewHub(deps.Store, deps.Bus, broadcast.Options{
		PollInterval:   cfg.StreamPollInterval,
		PingInterval:   cfg.SSEPingInterval,
		MaxDuration:    cfg.StreamMaxDuration,
		WSWriteTimeout: cfg.WSWriteTimeout,
	}, logger)

	s.routes()
	return s
}

// roomSender hides the typed-nil pitfall: an absent client must become a nil
// interface so the orchestrator falls back cleanly.
func roomSender(c *mediaroom.Client) takeover.RoomDataSender {
	if c == nil || !c.Configured() {
		return nil
	}
	return c
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Store:     s.deps.Store,
		Redis:     s.deps.RedisPing,
	})

	s.mux.Handle("/guardian/events", handlers.IngestHandler{
		Monitor: s.monitor,
		Logger:  s.logger,
	})
	s.mux.Handle("/worker/claim-room", handlers.ClaimHandler{
		Registry: s.deps.Claims,
	})

	s.mux.Handle("/admin/guardian/takeover/{sessionId}", handlers.TakeoverHandler{
		Orchestrator: s.takeover,
	})
	s.mux.Handle("/admin/guardian/token", handlers.TokenHandler{
		Rooms: s.deps.Rooms,
	})
	s.mux.Handle("/admin/guardian/events", handlers.EventsHandler{
		Store: s.deps.Store,
	})
	s.mux.Handle("/admin/guardian/stream", handlers.StreamHandler{
		Hub:       s.hub,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
	s.mux.Handle("/admin/guardian/ws", handlers.WSHandler{
		Hub:       s.hub,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness ahead of shutdown.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// DrainStreams warns open live streams, waits up to the grace period for
// clients to disconnect, then cancels stragglers.
func (s *Server) DrainStreams(ctx context.Context, grace time.Duration) {
	tracker := s.hub.Tracker()
	if n := tracker.Count(); n > 0 {
		s.logger.Info("draining live streams", "open", n)
		tracker.WarnAll("draining", "server is shutting down, reconnect elsewhere")
	}

	waitCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if !tracker.Wait(waitCtx) {
		s.logger.Warn("forcing stream shutdown", "remaining", tracker.Count())
		tracker.CancelAll()
		tracker.Wait(ctx)
	}
}
