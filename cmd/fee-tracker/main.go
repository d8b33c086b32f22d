// Stellar fee tracker - tracks Stellar network transaction fees and
// surfaces congestion insights over a read API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/stellar-fee-tracker/insights-service/internal/alerts"
	"github.com/stellar-fee-tracker/insights-service/internal/apiserver"
	"github.com/stellar-fee-tracker/insights-service/internal/config"
	"github.com/stellar-fee-tracker/insights-service/internal/history"
	"github.com/stellar-fee-tracker/insights-service/internal/horizon"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/logging"
	"github.com/stellar-fee-tracker/insights-service/internal/realtime"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
	"github.com/stellar-fee-tracker/insights-service/internal/scheduler"
	"github.com/stellar-fee-tracker/insights-service/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "json")
	logger.Info("starting fee tracker", "version", Version, "commit", Commit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, "json")
	logger.Info("configuration loaded", "env", cfg.Env, "network", cfg.Network, "upstream_url", cfg.UpstreamURL)

	ctx := context.Background()

	tracerShutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("failed to initialize tracing", "error", err)
		tracerShutdown = func(context.Context) error { return nil }
	}
	defer func() { _ = tracerShutdown(ctx) }()

	var repo repository.Repository
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		dsn := appendDSNParams(cfg.DatabaseURL, cfg.DBConnectTimeout, cfg.DBStatementTimeout)
		pg, err := sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		pg.SetMaxOpenConns(cfg.DBMaxOpenConns)
		pg.SetMaxIdleConns(cfg.DBMaxIdleConns)
		pg.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		pg.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)
		if err := pg.Ping(); err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		db = pg
		repo = repository.NewPostgresStore(pg)
		logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		repo = repository.NewMemoryStore()
		logger.Info("using in-memory storage (no database_url configured)")
	}

	store := history.New(0)
	engineCfg := insights.DefaultEngineConfig()
	engineCfg.PollInterval = cfg.PollInterval
	engine := insights.NewEngine(engineCfg)
	hub := realtime.NewHub(logger)
	client := horizon.NewClient(cfg.UpstreamURL, 10*time.Second)
	dispatcher := alerts.NewDispatcher(repo, 10*time.Second)

	schedCfg := scheduler.Config{
		PollInterval:    cfg.PollInterval,
		MaxAttempts:     cfg.RetryAttempts,
		BaseRetryDelay:  cfg.BaseRetryDelay,
		RetentionPeriod: cfg.StorageRetention,
	}
	sched := scheduler.New(schedCfg, client, store, engine, repo, dispatcher, logger)
	sched.Rehydrate(ctx)
	sched.Start(ctx)
	defer sched.Stop()

	hubCtx, cancelHub := context.WithCancel(ctx)
	go hub.Run(hubCtx)
	defer cancelHub()

	srv := apiserver.New(cfg, store, engine, repo, client, hub, db, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// appendDSNParams adds connect_timeout and statement_timeout to a PostgreSQL
// DSN, in either URL or key-value form.
func appendDSNParams(dsn string, connectTimeout, statementTimeout int) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%sconnect_timeout=%d&statement_timeout=%d", dsn, sep, connectTimeout, statementTimeout)
	}
	return fmt.Sprintf("%s connect_timeout=%d statement_timeout=%d", dsn, connectTimeout, statementTimeout)
}

// maskDSN redacts credentials from a DSN before logging it.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
