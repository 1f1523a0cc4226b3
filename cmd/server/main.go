package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cryptomite-go/cryptomite/internal/api"
	"github.com/cryptomite-go/cryptomite/internal/api/cache"
	"github.com/cryptomite-go/cryptomite/internal/docindex"
	"github.com/cryptomite-go/cryptomite/internal/docindex/source"
	"github.com/cryptomite-go/cryptomite/internal/ledger"
	"github.com/cryptomite-go/cryptomite/pkg/config"
	"github.com/cryptomite-go/cryptomite/pkg/database"
	"github.com/cryptomite-go/cryptomite/pkg/health"
	"github.com/cryptomite-go/cryptomite/pkg/logger"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	"github.com/cryptomite-go/cryptomite/pkg/middleware"
	pkgredis "github.com/cryptomite-go/cryptomite/pkg/redis"
	"github.com/cryptomite-go/cryptomite/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting cryptomite api", "port", cfg.Server.Port, "index", cfg.Docs.IndexURI)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	src, err := source.NewFromConfig(ctx, cfg.Docs, cfg.Storage)
	if err != nil {
		slog.Error("failed to configure index source", "error", err)
		os.Exit(1)
	}
	loader := func(ctx context.Context) (*docindex.Index, error) {
		return src.Load(ctx, cfg.Docs.IndexURI)
	}
	idx, err := loader(ctx)
	if err != nil {
		slog.Warn("search index unavailable, docs endpoints will answer 503 until reloaded", "error", err)
	}

	var store cache.Store = cache.NewMemoryStore(cfg.Redis.LocalCacheSize, cfg.Redis.CacheTTL)
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process parameter cache", "error", err)
		} else {
			defer redisClient.Close()
			store = cache.RedisStore{Client: redisClient}
			slog.Info("parameter cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	params := cache.New(store, cfg.Redis.CacheTTL, m)

	h := api.New(idx, params, loader, api.Config{
		MaxInputBits:   cfg.Extractor.MaxInputBits,
		RazDetailed:    cfg.Extractor.RazDetailed,
		ExtractTimeout: cfg.Extractor.Timeout,
	}, m)

	var db *database.Client
	var runs *ledger.Store
	db, err = database.New(cfg.Database)
	if err != nil {
		slog.Warn("ledger database unavailable, run endpoints disabled", "driver", cfg.Database.Driver, "error", err)
	} else {
		defer db.Close()
		runs = ledger.NewStore(db, nil)
		if err := resilience.WithTimeout(ctx, 30*time.Second, "ledger migrate", runs.Migrate); err != nil {
			slog.Error("failed to migrate ledger", "error", err)
			os.Exit(1)
		}
		h.SetRuns(runs)
	}

	checker := health.NewChecker()
	checker.Register("docindex", func(ctx context.Context) health.ComponentHealth {
		if idx := h.Index(); idx != nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", idx.Len())}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "no index loaded"}
	})
	if redisClient != nil {
		checker.Register("redis", health.Optional(health.Ping(redisClient.Ping)))
	}
	if runs != nil {
		checker.Register("ledger", health.Optional(health.Ping(runs.Ping)))
	}

	opts := api.RouterOptions{
		Metrics: m,
		Timeout: cfg.Server.RequestTimeout,
	}
	corsCfg := middleware.DefaultCORSConfig()
	opts.CORS = &corsCfg
	if cfg.RateLimit.Enabled {
		opts.Limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, checker, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("cryptomite api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("cryptomite api stopped")
}
