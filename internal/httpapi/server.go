// Package httpapi implements the Frame Delivery Endpoint: the HTTP surface
// serving the latest annotated frame per camera, per-camera status, and
// aggregate tracking statistics, plus the additive live-stats websocket.
package httpapi

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/persontrack/internal/auth"
	"github.com/your-org/persontrack/internal/reid"
	"github.com/your-org/persontrack/internal/worker"
)

// Config wires the endpoint to the live infrastructure it serves from.
type Config struct {
	APIKey            string
	Registry          *reid.Registry
	Workers           map[string]*worker.Worker
	FreshnessBound    time.Duration
	StatusTTL         time.Duration
	StatusLockTimeout time.Duration
	Logger            *slog.Logger
}

// Server holds the endpoint's dependencies across requests.
type Server struct {
	registry          *reid.Registry
	workers           map[string]*worker.Worker
	freshnessBound    time.Duration
	statusLockTimeout time.Duration
	cache             *statusCache
	hub               *statsHub
	logger            *slog.Logger

	ready atomic.Bool
}

// NewServer builds the request-serving state (but not the gin router itself
// — see NewRouter) from cfg.
func NewServer(cfg Config) *Server {
	capacity := len(cfg.Workers) + 2
	if capacity < 4 {
		capacity = 4
	}
	return &Server{
		registry:          cfg.Registry,
		workers:           cfg.Workers,
		freshnessBound:    cfg.FreshnessBound,
		statusLockTimeout: cfg.StatusLockTimeout,
		cache:             newStatusCache(capacity, cfg.StatusTTL, cfg.StatusLockTimeout),
		hub:               newStatsHub(cfg.Logger),
		logger:            cfg.Logger,
	}
}

// SetReady marks the process ready for /readyz once every configured camera
// worker goroutine has been launched (not necessarily CONNECTED).
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// RunStatsTicker broadcasts a /people-count-shaped payload to every
// connected /ws/stats client once per second until ctx is cancelled, and
// drives the hub's own register/unregister/broadcast loop alongside it.
func (s *Server) RunStatsTicker(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	go s.hub.run(stop)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.tick(func() any {
				lockCtx, cancel := context.WithTimeout(ctx, s.statusLockTimeout)
				defer cancel()
				return s.buildPeopleCount(lockCtx)
			})
		}
	}
}

// NewRouter builds the gin engine serving the endpoint's full route set.
func NewRouter(s *Server, apiKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(s.logger))
	r.Use(cors.Default())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// /frame stays unauthenticated even when an API key is configured: it is
	// polled at high rate by the local UI, and freshness — not secrecy — is
	// the concern on this path.
	r.GET("/frame/:camera", s.handleFrame)

	authed := r.Group("/")
	authed.Use(auth.APIKeyMiddleware(apiKey, s.logger))
	authed.GET("/status", s.handleStatus)
	authed.GET("/people-count", s.handlePeopleCount)
	authed.GET("/tracking/stats", s.handleTrackingStats)
	authed.GET("/ws/stats", s.hub.handle)

	return r
}
