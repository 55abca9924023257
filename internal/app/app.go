// Package app wires the domain services the binaries share.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/payrollflow/internal/audit"
	"github.com/nikhilbhutani/payrollflow/internal/cache"
	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/employee"
	"github.com/nikhilbhutani/payrollflow/internal/events"
	"github.com/nikhilbhutani/payrollflow/internal/ledger"
	"github.com/nikhilbhutani/payrollflow/internal/notification"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/queue"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/nikhilbhutani/payrollflow/internal/store/postgres"
)

type App struct {
	Store         store.Store
	Audit         *audit.Service
	Ledger        *ledger.Service
	Employees     *employee.Service
	Payroll       *payroll.Engine
	Notifications *notification.Emitter
	Cache         *cache.Cache
	Queue         *queue.Client
}

// PayrollConfig translates env configuration into engine settings.
func PayrollConfig(cfg config.PayrollConfig) payroll.Config {
	pc := payroll.DefaultConfig()
	pc.MinYear = cfg.MinYear
	pc.MaxApproveRetries = cfg.MaxApproveRetries
	pc.DefaultAttendanceDays = cfg.DefaultAttendanceDays
	return pc
}

// New builds the services on db. With rdb set, status changes are also
// queued for webhook delivery and published on the events channel, and
// payroll writes drop the company's cached reads; without it they only
// produce notifications.
func New(db *pgxpool.Pool, rdb redis.UniversalClient, cfg *config.Config) *App {
	st := postgres.New(db)
	auditSvc := audit.NewService(db)

	emitter := notification.NewEmitter(st,
		notification.WithDirectorCopies(cfg.Payroll.NotifyDirectors),
		notification.WithDeliveryTimeout(cfg.Notification.DeliveryTimeout),
	)
	opts := []payroll.Option{
		payroll.WithStatusListener(emitter),
		payroll.WithAuditor(auditSvc),
	}

	var c *cache.Cache
	if rdb != nil && cfg.Cache.TTL > 0 {
		c = cache.NewCache(rdb)
		opts = append(opts, payroll.WithChangeListener(cache.NewInvalidator(c)))
	}
	engine := payroll.NewEngine(st, PayrollConfig(cfg.Payroll), opts...)

	a := &App{
		Store:         st,
		Audit:         auditSvc,
		Ledger:        ledger.NewService(st),
		Employees:     employee.NewService(st, employee.WithSalaryChangeHook(engine.RebasePending)),
		Payroll:       engine,
		Notifications: emitter,
		Cache:         c,
	}

	if rdb != nil {
		a.Queue = queue.NewClient(cfg.Redis)
		emitter.Subscribe("webhook-queue", queue.NewNotificationPublisher(a.Queue))
		emitter.Subscribe("events", events.NewPublisher(rdb))
	}
	return a
}

// Close waits for in-flight notification deliveries and releases the
// queue client.
func (a *App) Close() {
	a.Notifications.Wait()
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			slog.Warn("close queue client", "error", err)
		}
	}
}
