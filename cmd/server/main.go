package main

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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/alert-feed/internal/adapter/api"
	"github.com/V4T54L/alert-feed/internal/adapter/metrics"
	"github.com/V4T54L/alert-feed/internal/adapter/pii"
	"github.com/V4T54L/alert-feed/internal/adapter/relay"
	mongorepo "github.com/V4T54L/alert-feed/internal/adapter/repository/mongo"
	"github.com/V4T54L/alert-feed/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/alert-feed/internal/adapter/repository/redis"
	"github.com/V4T54L/alert-feed/internal/adapter/repository/wal"
	"github.com/V4T54L/alert-feed/internal/adapter/vocabulary"
	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/pkg/config"
	"github.com/V4T54L/alert-feed/internal/pkg/logger"
	"github.com/V4T54L/alert-feed/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

// eventStore is what every backend provides.
type eventStore interface {
	domain.EventStore
	domain.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewFeedMetrics(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Event Store ---
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize event store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Optional NATS Relay ---
	var eventRelay usecase.Relay
	if cfg.NATSURL != "" {
		nc, err := relay.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		eventRelay = relay.NewNATSRelay(nc, cfg.NATSSubject, logger)
		logger.Info("relaying events to NATS", "subject", cfg.NATSSubject)
	}

	// --- Generator Vocabulary ---
	var vocab usecase.VocabularySource = usecase.StaticVocabulary(domain.DefaultVocabulary())
	if cfg.VocabularyPath != "" {
		loader, err := vocabulary.NewLoader(cfg.VocabularyPath, logger)
		if err != nil {
			logger.Error("failed to load generator vocabulary", "error", err)
			os.Exit(1)
		}
		loader.OnChange(func(v domain.Vocabulary) {
			m.VocabularyReloads.Inc()
			logger.Info("generator vocabulary updated", "types", v.Types, "actions", v.Actions, "severities", v.Severities)
		})
		stopWatch, err := loader.Watch()
		if err != nil {
			logger.Warn("vocabulary hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
		vocab = loader
	}

	// --- Use Cases ---
	registry := usecase.NewRegistry(logger, m)
	distributor := usecase.NewDistributor(store, registry, logger, usecase.DistributorOptions{
		SendTimeout:  cfg.BroadcastSendTimeout,
		StoreTimeout: cfg.StoreTimeout,
		Redactor:     pii.NewRedactor(cfg.RedactionFieldList(), logger),
		Relay:        eventRelay,
		Metrics:      m,
	})

	var wg sync.WaitGroup
	if cfg.SimulatorEnabled {
		sim, err := usecase.NewSimulator(distributor, vocab, logger, usecase.SimulatorOptions{
			MinInterval: cfg.SimulatorMinInterval,
			MaxInterval: cfg.SimulatorMaxInterval,
			Metrics:     m,
		})
		if err != nil {
			logger.Error("failed to create simulator", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Run(ctx)
		}()
	}

	// --- Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewAdminRouter(store, registry, vocab, prometheus.DefaultGatherer, logger),
	}
	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Public API Server ---
	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(ctx, cfg, logger, distributor, registry),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr, "store", cfg.StoreBackend)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Live feeds watch ctx and are already closing; Shutdown drains the rest.
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	wg.Wait()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventStore, func(), error) {
	setupCtx, cancel := context.WithTimeout(ctx, 3*cfg.StoreTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case "mongo":
		client, err := mongorepo.Connect(setupCtx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}
		repo := mongorepo.NewEventRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection), logger)
		if err := repo.EnsureIndexes(setupCtx); err != nil {
			logger.Warn("could not ensure mongo indexes", "error", err)
		}
		return repo, closeFn, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		repo := postgres.NewEventRepository(db, cfg.PostgresTable, logger)
		if err := repo.EnsureSchema(setupCtx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, func() { db.Close() }, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			opts = &redis.Options{Addr: cfg.RedisAddr}
		}
		client := redis.NewClient(opts)
		repo, err := redisrepo.NewEventRepository(setupCtx, client, logger, cfg.RedisStream, cfg.RedisStreamMaxLen)
		if err != nil && !errors.Is(err, redisrepo.ErrRedisNotAvailable) {
			client.Close()
			return nil, nil, err
		}
		if err != nil {
			logger.Warn("redis unreachable at startup, submissions will fail until it recovers", "error", err)
		}
		return repo, func() { client.Close() }, nil

	case "file":
		repo, err := wal.NewEventRepository(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
