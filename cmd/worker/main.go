package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cryptomite-go/cryptomite/internal/ledger"
	"github.com/cryptomite-go/cryptomite/internal/pipeline"
	"github.com/cryptomite-go/cryptomite/pkg/config"
	"github.com/cryptomite-go/cryptomite/pkg/database"
	"github.com/cryptomite-go/cryptomite/pkg/kafka"
	"github.com/cryptomite-go/cryptomite/pkg/logger"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
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
	slog.Info("starting extraction worker",
		"concurrency", cfg.Extractor.Concurrency,
		"topic", cfg.Kafka.Topics.ExtractionJobs,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to ledger database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	breaker := resilience.NewCircuitBreaker("ledger", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	runs := ledger.NewStore(db, breaker)
	if err := resilience.WithTimeout(ctx, 30*time.Second, "ledger migrate", runs.Migrate); err != nil {
		slog.Error("failed to migrate ledger", "error", err)
		os.Exit(1)
	}

	go watchLedger(ctx, runs, 15*time.Second)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExtractionResults)
	defer producer.Close()

	worker := pipeline.NewWorker(pipeline.Config{
		Concurrency:  cfg.Extractor.Concurrency,
		MaxInputBits: cfg.Extractor.MaxInputBits,
		Timeout:      cfg.Extractor.Timeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}, producer, runs, m)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ExtractionJobs, worker.Handler())
	slog.Info("extraction worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.ExtractionJobs,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("waiting for in-flight jobs")
	worker.Wait()
	slog.Info("extraction worker stopped")
}

// watchLedger pings the ledger database so a recovered database closes the
// write breaker before its reset timeout.
func watchLedger(ctx context.Context, runs *ledger.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := runs.Ping(pingCtx); err != nil {
				slog.Warn("ledger ping failed", "error", err)
			}
			cancel()
		}
	}
}
