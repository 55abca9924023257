package queue

import (
	"context"

	"github.com/nikhilbhutani/payrollflow/internal/payroll"
)

// NotificationPublisher hands status changes to the worker for outbound
// delivery.
type NotificationPublisher struct {
	client *Client
}

func NewNotificationPublisher(client *Client) *NotificationPublisher {
	return &NotificationPublisher{client: client}
}

func (p *NotificationPublisher) Deliver(ctx context.Context, change payroll.StatusChange) error {
	return p.client.EnqueueNotificationDeliver(ctx, change.Event())
}
