package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/queue"
)

type Generator interface {
	GenerateMonthly(ctx context.Context, p principal.Principal, in payroll.GenerateInput) (*payroll.GenerateResult, error)
}

type GenerateWorker struct {
	generator Generator
	now       func() time.Time
}

func NewGenerateWorker(g Generator) *GenerateWorker {
	return &GenerateWorker{generator: g, now: time.Now}
}

func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PayrollGeneratePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	in, err := w.input(payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	res, err := w.generator.GenerateMonthly(ctx, principal.System(), in)
	if err != nil {
		return fmt.Errorf("generate payrolls for %s: %w", in.Period, err)
	}

	slog.Info("payroll generation task done",
		"period", res.Period.String(),
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return nil
}

func (w *GenerateWorker) input(p queue.PayrollGeneratePayload) (payroll.GenerateInput, error) {
	in := payroll.GenerateInput{
		Period:         models.Period{Month: p.Month, Year: p.Year},
		AttendanceDays: p.AttendanceDays,
	}
	if in.Period.Month == 0 {
		now := w.now()
		in.Period = models.Period{Month: int(now.Month()), Year: now.Year()}
	}
	if p.CompanyID != "" {
		id, err := uuid.Parse(p.CompanyID)
		if err != nil {
			return in, fmt.Errorf("invalid company_id: %w", err)
		}
		in.CompanyID = &id
	}
	return in, nil
}
