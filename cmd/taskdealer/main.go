package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	tdhttp "github.com/Strob0t/TaskDealer/internal/adapter/http"
	tdotel "github.com/Strob0t/TaskDealer/internal/adapter/otel"
	"github.com/Strob0t/TaskDealer/internal/adapter/ws"
	"github.com/Strob0t/TaskDealer/internal/config"
	"github.com/Strob0t/TaskDealer/internal/logger"
	"github.com/Strob0t/TaskDealer/internal/middleware"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
)

const (
	rateCleanupInterval = time.Minute
	rateMaxIdle         = 10 * time.Minute
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"l2_cache", cfg.Cache.L2Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	shutdownOTEL, err := tdotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := tdotel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure and services ---
	a, err := newApp(ctx, cfg, appOptions{migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()

	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin)...)
	a.agents.SetBroadcaster(hub)
	a.distributions.SetBroadcaster(hub)
	a.distributions.SetMetrics(metrics)

	var queueConnected func() bool
	if a.queue != nil {
		queueConnected = a.queue.IsConnected
		cancelSubs, err := subscribeInvalidation(ctx, a)
		if err != nil {
			return err
		}
		defer cancelSubs()
	}

	idemStore, err := a.idempotencyStore(ctx)
	if err != nil {
		return err
	}

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	limiter.StartCleanup(ctx, rateCleanupInterval, rateMaxIdle)

	handlers := &tdhttp.Handlers{
		Agents:         a.agents,
		Distributions:  a.distributions,
		Storage:        a.store,
		Driver:         cfg.Storage.Driver,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		QueueConnected: queueConnected,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(tdhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(tdhttp.SecurityHeaders)
	r.Use(tdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tdotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(limiter.Handler)

	r.Get("/ws", hub.HandleWS)
	tdhttp.MountRoutes(r, handlers, middleware.Idempotency(idemStore, cfg.Idempotency.TTL))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// subscribeInvalidation drops the cached snapshot in both tiers whenever any
// instance replaces the snapshot or removes an agent, including fills this
// instance read before the change.
func subscribeInvalidation(ctx context.Context, a *app) (func(), error) {
	drop := func(ctx context.Context, subject string, _ []byte) error {
		slog.DebugContext(ctx, "dropping cached snapshot", "subject", subject)
		a.distributions.Invalidate(ctx)
		return nil
	}

	var cancels []func()
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, subject := range []string{messagequeue.SubjectDistributionsReplaced, messagequeue.SubjectAgentDeleted} {
		c, err := a.queue.Subscribe(ctx, subject, drop)
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, c)
	}
	return cancelAll, nil
}

// originPatterns turns the configured CORS origin into a WebSocket origin
// pattern, which matches on host only.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}
