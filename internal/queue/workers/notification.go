package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/payrollflow/internal/models"
)

// WebhookDispatcher fans an event out to a company's webhooks.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, companyID uuid.UUID, event string, payload any) (int, error)
}

type NotificationWorker struct {
	webhooks WebhookDispatcher
}

func NewNotificationWorker(webhooks WebhookDispatcher) *NotificationWorker {
	return &NotificationWorker{webhooks: webhooks}
}

func (w *NotificationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev models.PayrollEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		// a malformed payload will never succeed
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	queued, err := w.webhooks.Dispatch(ctx, ev.CompanyID, ev.Event, ev)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", ev.Event, err)
	}

	slog.Info("payroll notification dispatched",
		"event", ev.Event,
		"payroll_id", ev.PayrollID,
		"company_id", ev.CompanyID,
		"webhooks", queued,
	)
	return nil
}
