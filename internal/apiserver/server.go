// Package apiserver implements the gin-based read API: current fee
// snapshot, historical fee windows, congestion trend, insights detail,
// alert configuration, alert history, and a WebSocket feed of live
// snapshots and spikes.
package apiserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellar-fee-tracker/insights-service/internal/config"
	"github.com/stellar-fee-tracker/insights-service/internal/health"
	"github.com/stellar-fee-tracker/insights-service/internal/history"
	"github.com/stellar-fee-tracker/insights-service/internal/horizon"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/logging"
	"github.com/stellar-fee-tracker/insights-service/internal/metrics"
	"github.com/stellar-fee-tracker/insights-service/internal/ratelimit"
	"github.com/stellar-fee-tracker/insights-service/internal/realtime"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
	"github.com/stellar-fee-tracker/insights-service/internal/security"
	"github.com/stellar-fee-tracker/insights-service/internal/validation"
)

// FeeStatsFetcher is the upstream collaborator for /fees/current; satisfied
// by *horizon.Client.
type FeeStatsFetcher interface {
	FetchFeeStats(ctx context.Context) (horizon.FeeStats, error)
}

// Server wraps the gin router and every read-side dependency.
type Server struct {
	cfg       *config.Config
	store     *history.Store
	engine    *insights.Engine
	repo      repository.Repository
	feeStats  FeeStatsFetcher
	hub       *realtime.Hub
	rateLimit *ratelimit.Limiter
	db        *sql.DB // nil when running against MemoryStore
	logger    *slog.Logger

	router  *gin.Engine
	httpSrv *http.Server
	now     func() time.Time

	statsMu      sync.Mutex
	cachedStats  horizon.FeeStats
	statsFetched time.Time

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithNow overrides the Server's time source (tests only).
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds a Server. db may be nil when the repository is in-memory.
func New(cfg *config.Config, store *history.Store, engine *insights.Engine, repo repository.Repository, feeStats FeeStatsFetcher, hub *realtime.Hub, db *sql.DB, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		repo:     repo,
		feeStats: feeStats,
		hub:      hub,
		db:       db,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthy.Store(true)
	s.ready.Store(true)

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.rateLimit = ratelimit.New(ratelimit.DefaultConfig())
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.rateLimit.Middleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.timeoutMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		case status >= 400:
			logger.Warn("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		}
	}
}

func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") == "websocket" {
			c.Next()
			return
		}
		timeout := s.cfg.RequestTimeout
		if timeout <= 0 {
			timeout = config.DefaultRequestTimeout
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	fees := s.router.Group("/fees")
	fees.GET("/current", cacheControl(5, 10), s.feesCurrentHandler)
	fees.GET("/history", cacheControl(30, 60), s.feesHistoryHandler)
	fees.GET("/trend", s.feesTrendHandler)

	insightsGroup := s.router.Group("/insights")
	insightsGroup.GET("", s.insightsHandler)
	insightsGroup.GET("/averages", s.insightsAveragesHandler)
	insightsGroup.GET("/extremes", s.insightsExtremesHandler)
	insightsGroup.GET("/congestion", s.insightsCongestionHandler)
	insightsGroup.GET("/health", s.insightsHealthHandler)

	alerts := s.router.Group("/alerts")
	alerts.POST("/config", s.createAlertConfigHandler)
	alerts.GET("/config", s.listAlertConfigHandler)
	alerts.PATCH("/config/:id", s.updateAlertConfigHandler)
	alerts.DELETE("/config/:id", s.deleteAlertConfigHandler)
	alerts.GET("/history", s.alertHistoryHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	registry := health.NewRegistry()
	registry.Register("history_store", func(context.Context) health.Status {
		return health.Status{Name: "history_store", Healthy: !s.store.IsEmpty() || s.store.Capacity() > 0}
	})
	if s.db != nil {
		registry.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	healthy, statuses := registry.CheckAll(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": boolToStatus(healthy),
		"checks": statuses,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func boolToStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}

// Router exposes the underlying gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the HTTP server and blocks until a shutdown signal or ctx is
// cancelled, then calls Shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
		IdleTimeout:       s.cfg.HTTPIdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the HTTP server and background collaborators.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.rateLimit.Stop()
	s.logger.Info("api server stopped")
	return nil
}
