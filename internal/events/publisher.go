// Package events publishes payroll status changes on a redis channel for
// live consumers such as dashboards.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/redis/go-redis/v9"
)

const Channel = "payroll_events"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Publisher struct {
	client  publisher
	channel string
}

func NewPublisher(client publisher) *Publisher {
	return &Publisher{client: client, channel: Channel}
}

func (p *Publisher) Deliver(ctx context.Context, change payroll.StatusChange) error {
	return p.Publish(ctx, change.Event())
}

func (p *Publisher) Publish(ctx context.Context, ev models.PayrollEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}
	return nil
}

// Subscribe streams decoded events until ctx is done. Undecodable messages
// are skipped.
func Subscribe(ctx context.Context, client redis.UniversalClient, handle func(models.PayrollEvent)) error {
	sub := client.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.PayrollEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handle(ev)
		}
	}
}
