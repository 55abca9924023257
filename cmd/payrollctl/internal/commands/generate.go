package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/payrollflow/internal/app"
	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/queue"
)

// GenerateCmd creates the month's Pending payrolls. It is safe to run more
// than once for the same period.
type GenerateCmd struct {
	Month          int    `help:"Month (1-12); defaults to the current month"`
	Year           int    `help:"Year; defaults to the current year"`
	Company        string `help:"Limit to one company ID"`
	AttendanceDays int    `help:"Attendance days; defaults to PAYROLL_DEFAULT_ATTENDANCE_DAYS"`
	Enqueue        bool   `help:"Hand the run to the worker instead of running it here"`
}

func (g *GenerateCmd) Run(ctx context.Context) error {
	period := g.period(time.Now())

	var companyID *uuid.UUID
	if g.Company != "" {
		id, err := uuid.Parse(g.Company)
		if err != nil {
			return fmt.Errorf("invalid company ID: %w", err)
		}
		companyID = &id
	}

	if g.Enqueue {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		client := queue.NewClient(cfg.Redis)
		defer client.Close()
		if err := client.EnqueuePayrollGenerate(ctx, queue.PayrollGeneratePayload{
			Month:          period.Month,
			Year:           period.Year,
			CompanyID:      g.Company,
			AttendanceDays: g.AttendanceDays,
		}); err != nil {
			return err
		}
		fmt.Printf("generation for %s queued\n", period)
		return nil
	}

	cfg, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := connectRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	svc := app.New(db, rdb, cfg)
	defer svc.Close()
	res, err := svc.Payroll.GenerateMonthly(ctx, principal.System(), payroll.GenerateInput{
		Period:         period,
		CompanyID:      companyID,
		AttendanceDays: g.AttendanceDays,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: created %d, skipped %d, failed %d\n", res.Period, res.Created, res.Skipped, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d payrolls could not be generated", res.Failed)
	}
	return nil
}

func (g *GenerateCmd) period(now time.Time) models.Period {
	p := models.Period{Month: g.Month, Year: g.Year}
	if p.Month == 0 {
		p.Month = int(now.Month())
	}
	if p.Year == 0 {
		p.Year = now.Year()
	}
	return p
}
