// Package api assembles the HTTP server: routes, middleware stack, and
// lifecycle.
package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/kirogate/kirogate/internal/api/handlers"
	"github.com/kirogate/kirogate/internal/api/middleware"
	"github.com/kirogate/kirogate/internal/catalog"
	"github.com/kirogate/kirogate/internal/config"
	"github.com/kirogate/kirogate/internal/gateway"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/logging"
	"github.com/kirogate/kirogate/internal/monitoring"
)

// Server hosts the gateway API. Config is swappable at runtime: the watcher
// calls ApplyConfig and auth picks up new keys on the next request.
type Server struct {
	cfg  atomic.Pointer[config.Config]
	http *http.Server
}

// Deps carries the wired components.
type Deps struct {
	Version string
	Session *kiro.Session
	Gateway *gateway.Orchestrator
	Catalog *catalog.Cache
	Metrics *monitoring.Metrics
}

func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{}
	s.cfg.Store(cfg)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		logging.GinRecovery(),
		middleware.RequestTracking(),
		logging.GinLogger(),
		middleware.Metrics(deps.Metrics),
	)

	chat := handlers.NewChat(deps.Gateway)
	models := handlers.NewModels(deps.Catalog)
	status := handlers.NewStatus(deps.Version, deps.Session, deps.Catalog, deps.Metrics)

	// Operational endpoints stay open; only the model API is keyed.
	engine.GET("/", status.Root)
	engine.GET("/health", status.Health)
	engine.GET("/metrics", status.MetricsJSON)
	engine.GET("/metrics/prometheus", status.MetricsPrometheus())

	v1 := engine.Group("/v1")
	v1.Use(middleware.APIKeyAuth(s.apiKeys))
	v1.Use(middleware.RateLimit(s.rateLimit))
	v1.GET("/models", models.List)
	v1.POST("/chat/completions", chat.Completions)
	v1.POST("/messages", chat.Messages)

	s.http = &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
		// Streams outlive any sane write timeout; rely on the stream idle
		// cutoff instead.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) apiKeys() []string {
	return s.cfg.Load().APIKeys
}

func (s *Server) rateLimit() middleware.RateLimitParams {
	rl := s.cfg.Load().RateLimit
	return middleware.RateLimitParams{Enabled: rl.Enabled, RPS: rl.RPS, Burst: rl.Burst}
}

// ApplyConfig swaps in a reloaded config. Listener address changes need a
// restart and are logged, not applied.
func (s *Server) ApplyConfig(cfg *config.Config) {
	old := s.cfg.Load()
	if old.Addr() != cfg.Addr() {
		log.Warnf("api: listen address changed %s -> %s, restart to apply", old.Addr(), cfg.Addr())
	}
	s.cfg.Store(cfg)
}

// Run serves until ctx is cancelled, then shuts down draining in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info("api: shutting down")
	return s.http.Shutdown(shutdownCtx)
}
