package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/events"
	"github.com/nikhilbhutani/payrollflow/internal/models"
)

// WatchCmd prints every payroll status event as one JSON line.
type WatchCmd struct {
	Company string `help:"Only show events of this company ID"`
}

func (w *WatchCmd) Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	err = events.Subscribe(ctx, rdb, func(ev models.PayrollEvent) {
		if w.Company != "" && ev.CompanyID.String() != w.Company {
			return
		}
		enc.Encode(ev)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
