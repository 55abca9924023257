package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/payrollflow/internal/api"
	"github.com/nikhilbhutani/payrollflow/internal/app"
	"github.com/nikhilbhutani/payrollflow/internal/auth"
	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/database"
	"github.com/nikhilbhutani/payrollflow/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis connection (optional)
	var rdb redis.UniversalClient
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache, events or webhook delivery", "error", err)
		client.Close()
	} else {
		rdb = client
		defer client.Close()
	}

	svc := app.New(db, rdb, cfg)
	defer svc.Close()

	// the API only manages subscriptions; the worker delivers
	webhooks := webhook.NewService(db, nil)

	router := api.NewRouter(db, rdb, cfg, api.Services{
		Ledger:        svc.Ledger,
		Employees:     svc.Employees,
		Payroll:       svc.Payroll,
		Notifications: svc.Notifications,
		Webhooks:      webhooks,
		Audit:         svc.Audit,
		Cache:         svc.Cache,
	},
		auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, svc.Store.Users()),
		auth.NewAPIKeyMiddleware(auth.NewPGKeyStore(db), svc.Store.Users(), cfg.Auth.APIKeyHeader),
	)
	handler := router.Setup()

	done := make(chan struct{})
	go router.Limiter().Cleanup(done, 3*time.Minute)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	close(done)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
