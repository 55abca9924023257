package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/payrollflow/internal/app"
	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/database"
	"github.com/nikhilbhutani/payrollflow/internal/queue"
	"github.com/nikhilbhutani/payrollflow/internal/queue/workers"
	"github.com/nikhilbhutani/payrollflow/internal/webhook"
)

const concurrency = 10

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// generated payrolls drop the API's cached company reads
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	svc := app.New(db, rdb, cfg)
	defer svc.Close()

	dispatcher := webhook.NewDispatcher(db, cfg.Webhook.Timeout)
	defer dispatcher.Close()
	webhooks := webhook.NewService(db, dispatcher)

	redisOpt := queue.RedisOpt(cfg.Redis)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue.QueueCritical: 6,
			queue.QueueDefault:  3,
			queue.QueueLow:      1,
		},
	})

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeNotificationDeliver, workers.NewNotificationWorker(webhooks))
	registry.Register(queue.TypePayrollGenerate, workers.NewGenerateWorker(svc.Payroll))

	var scheduler *asynq.Scheduler
	if cfg.Payroll.GenerateCron != "" {
		scheduler = asynq.NewScheduler(redisOpt, nil)
		payload, _ := json.Marshal(queue.PayrollGeneratePayload{})
		entryID, err := scheduler.Register(cfg.Payroll.GenerateCron,
			asynq.NewTask(queue.TypePayrollGenerate, payload),
			asynq.Queue(queue.QueueLow),
		)
		if err != nil {
			slog.Error("invalid PAYROLL_GENERATE_CRON", "cron", cfg.Payroll.GenerateCron, "error", err)
			os.Exit(1)
		}
		if err := scheduler.Start(); err != nil {
			slog.Error("scheduler start failed", "error", err)
			os.Exit(1)
		}
		slog.Info("monthly payroll generation scheduled", "cron", cfg.Payroll.GenerateCron, "entry_id", entryID)
	}

	slog.Info("starting worker", "concurrency", concurrency)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	if scheduler != nil {
		scheduler.Shutdown()
	}
	srv.Shutdown()
	slog.Info("worker stopped")
}
