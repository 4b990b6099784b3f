// Command api runs the ListBridge HTTP service: the Stripe webhook ingress
// that feeds MailerLite subscriptions, and the admin API that manages the
// credentials and product-to-group mappings driving it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listbridge/internal/api/handlers"
	"listbridge/internal/config"
	"listbridge/internal/core"
	"listbridge/internal/external"
	"listbridge/internal/settings"
	"listbridge/internal/subscribe"
)

// shutdownTimeout bounds graceful termination after SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Region for SSM is read before full config load; the loader itself
	// resolves _SSM_PARAM references through this provider.
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadConfig(config.NewSSMProvider(region))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("starting listbridge",
		slog.String("environment", cfg.Environment),
		slog.String("version", cfg.Build.Version),
		slog.String("commit", cfg.Build.Commit),
	)

	ctx := context.Background()

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := settings.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	credentials := settings.NewCredentials(store)
	resolver := settings.NewResolver(store)

	httpClient := &http.Client{Timeout: cfg.Outbound.Timeout}
	retryPolicy := external.DefaultRetryPolicy()

	stripeClient := external.NewStripeClient(
		external.NewBaseClient(httpClient, "stripe", retryPolicy, cfg.Outbound.UserAgent),
		credentials,
		logger,
	)
	mailerLiteClient := external.NewMailerLiteClient(
		external.NewBaseClient(httpClient, "mailerlite", retryPolicy, cfg.Outbound.UserAgent),
		credentials,
		logger,
	)

	dispatcher := subscribe.NewDispatcher(mailerLiteClient, logger)
	processor := subscribe.NewProcessor(stripeClient, resolver, dispatcher, logger)

	webhookHandler := handlers.NewStripeWebhookHandler(
		external.NewStripeVerifier(),
		credentials,
		processor,
		logger,
	)
	adminHandler := handlers.NewAdminHandler(
		store,
		stripeClient,
		mailerLiteClient,
		cfg.Security.AdminAPIKey,
		logger,
	)

	server, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	server.HealthProbes = []core.HealthProbe{&dbProbe{pool: pool}}
	server.V1RouteRegistrars = []func(chi.Router){adminHandler.RegisterRoutes}
	server.RootRouteRegistrars = []func(chi.Router){webhookHandler.RegisterRoutes}
	server.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process-wide structured logger. JSON output, level
// from config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(
		slog.String("service", cfg.Service),
		slog.String("env", cfg.Environment),
	)
}

// newDBPool builds the pgx connection pool from config and verifies
// connectivity with a ping.
func newDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// dbProbe reports database health for GET /health.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
