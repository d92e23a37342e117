package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/TaskDealer/internal/adapter/mongo"
	cfnats "github.com/Strob0t/TaskDealer/internal/adapter/nats"
	"github.com/Strob0t/TaskDealer/internal/adapter/natskv"
	"github.com/Strob0t/TaskDealer/internal/adapter/postgres"
	"github.com/Strob0t/TaskDealer/internal/adapter/redis"
	"github.com/Strob0t/TaskDealer/internal/adapter/ristretto"
	"github.com/Strob0t/TaskDealer/internal/adapter/tiered"
	"github.com/Strob0t/TaskDealer/internal/config"
	"github.com/Strob0t/TaskDealer/internal/port/cache"
	"github.com/Strob0t/TaskDealer/internal/port/database"
	"github.com/Strob0t/TaskDealer/internal/resilience"
	"github.com/Strob0t/TaskDealer/internal/service"
	"github.com/Strob0t/TaskDealer/internal/upload"
)

const (
	redisKeyPrefix  = "taskdealer:"
	shutdownTimeout = 10 * time.Second
)

// app holds the infrastructure and services shared by the server and the
// admin commands.
type app struct {
	cfg   *config.Config
	store database.Store
	queue *cfnats.Queue // nil when NATS is disabled
	l1    *ristretto.Cache
	cache *tiered.Cache

	agents        *service.AgentService
	distributions *service.DistributionService

	closers []func()
}

type appOptions struct {
	migrate bool
}

// newApp connects storage, NATS and the cache tiers and builds the services.
// On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStorage(ctx, opts.migrate); err != nil {
		return nil, err
	}

	if cfg.NATS.URL != "" {
		q, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		})
	}

	if err := a.openCache(ctx); err != nil {
		return nil, err
	}

	stager, err := upload.NewStager(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("upload stager: %w", err)
	}

	a.distributions = service.NewDistributionService(a.store, a.store, stager)
	a.distributions.SetCache(snapshotCache(a.queue != nil, a.cache), cfg.Cache.L2TTL)
	a.agents = service.NewAgentService(a.store, 0)
	a.agents.SetSnapshotInvalidator(a.distributions)

	if a.queue != nil {
		breaker := resilience.NewBreaker("nats-publish", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		a.agents.SetQueue(a.queue, breaker)
		a.distributions.SetQueue(a.queue, breaker)
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, migrate bool) error {
	switch a.cfg.Storage.Driver {
	case config.DriverMongo:
		client, err := mongo.Connect(ctx, a.cfg.Mongo)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		db := client.Database(a.cfg.Mongo.Database)
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		a.store = mongo.NewStore(client, a.cfg.Mongo.Database, a.cfg.Mongo.Transactions)
		slog.Info("mongo connected", "database", a.cfg.Mongo.Database, "transactions", a.cfg.Mongo.Transactions)

	default:
		pool, err := postgres.NewPool(ctx, a.cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		slog.Info("postgres connected")

		if migrate {
			if err := postgres.RunMigrations(ctx, a.cfg.Postgres.DSN); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			slog.Info("migrations applied")
		}
		a.store = postgres.NewStore(pool)
	}
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	l1, err := ristretto.New(a.cfg.Cache.L1MaxSizeMB, a.cfg.Cache.L1TTL)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	a.l1 = l1
	a.closers = append(a.closers, l1.Close)

	var l2 cache.Cache
	switch a.cfg.Cache.L2Backend {
	case config.L2NATS:
		kv, err := natskv.Open(ctx, a.queue.JetStream(), a.cfg.Cache.L2Bucket, a.cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		l2 = kv
	case config.L2Redis:
		client, err := redis.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		l2 = redis.New(client, redisKeyPrefix, a.cfg.Cache.L2TTL)
	}

	a.cache = tiered.New(l1, l2, a.cfg.Cache.L1TTL)
	slog.Info("snapshot cache ready", "l2", a.cfg.Cache.L2Backend)
	return nil
}

// snapshotCache returns the cache for the listed snapshot. Without NATS no
// other process can announce a replacement, so every list reads the store.
func snapshotCache(queueEnabled bool, c *tiered.Cache) cache.Cache {
	if !queueEnabled || c == nil {
		return nil
	}
	return c
}

// idempotencyStore returns the cache for recorded upload responses. It is
// shared across instances when NATS is enabled.
func (a *app) idempotencyStore(ctx context.Context) (cache.Cache, error) {
	if a.queue == nil {
		return a.l1, nil
	}
	kv, err := natskv.Open(ctx, a.queue.JetStream(), a.cfg.Idempotency.Bucket, a.cfg.Idempotency.TTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	return kv, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
