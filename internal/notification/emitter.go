// Package notification records a notification for every payroll status
// change and fans the change out to delivery subscribers.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
)

var (
	ErrNotFound  = store.ErrNotFound
	ErrForbidden = principal.ErrForbidden
)

// Subscriber receives status changes after they are committed and recorded.
// Errors are logged and dropped.
type Subscriber interface {
	Deliver(ctx context.Context, change payroll.StatusChange) error
}

type SubscriberFunc func(ctx context.Context, change payroll.StatusChange) error

func (f SubscriberFunc) Deliver(ctx context.Context, change payroll.StatusChange) error {
	return f(ctx, change)
}

type subscription struct {
	name string
	sub  Subscriber
}

type Emitter struct {
	store           store.Store
	notifyDirectors bool
	timeout         time.Duration

	mu          sync.RWMutex
	subscribers []subscription
	inflight    sync.WaitGroup
}

type Option func(*Emitter)

// WithDirectorCopies also notifies every Director of the payroll's company.
func WithDirectorCopies(enabled bool) Option {
	return func(e *Emitter) { e.notifyDirectors = enabled }
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewEmitter(st store.Store, opts ...Option) *Emitter {
	e := &Emitter{store: st, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) Subscribe(name string, s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, subscription{name: name, sub: s})
}

// StatusChanged records the notifications for change and starts delivery.
// It never fails: the transition it reports is already committed.
func (e *Emitter) StatusChanged(ctx context.Context, change payroll.StatusChange) {
	event, ok := eventFor(change.To)
	if !ok {
		return
	}

	for _, n := range e.recipients(ctx, change, event) {
		if err := e.store.Notifications().Create(ctx, &n); err != nil {
			slog.Error("failed to record notification",
				"payroll_id", change.Payroll.ID,
				"event", event,
				"error", err,
			)
		}
	}

	e.mu.RLock()
	subs := append([]subscription(nil), e.subscribers...)
	e.mu.RUnlock()

	for _, s := range subs {
		e.inflight.Add(1)
		go e.deliver(s, change)
	}
}

// Wait blocks until every started delivery has finished.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

func (e *Emitter) deliver(s subscription, change payroll.StatusChange) {
	defer e.inflight.Done()

	// detached from the request so delivery outlives the response
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := s.sub.Deliver(ctx, change); err != nil {
		slog.Warn("notification delivery failed",
			"subscriber", s.name,
			"payroll_id", change.Payroll.ID,
			"status", change.To,
			"error", err,
		)
	}
}

func (e *Emitter) recipients(ctx context.Context, change payroll.StatusChange, event string) []models.Notification {
	pr := change.Payroll
	payrollID := pr.ID
	employeeID := pr.EmployeeID
	msg := Message(change)

	primary := models.Notification{
		EmployeeID: &employeeID,
		PayrollID:  &payrollID,
		Event:      event,
		Message:    msg,
	}
	emp, err := e.store.Employees().Get(ctx, pr.EmployeeID)
	if err != nil {
		slog.Warn("notification employee lookup failed", "employee_id", pr.EmployeeID, "error", err)
	} else if emp.UserID != nil {
		uid := *emp.UserID
		primary.UserID = &uid
	}
	out := []models.Notification{primary}

	if !e.notifyDirectors {
		return out
	}
	directors, err := e.store.Users().ListByCompanyRole(ctx, pr.CompanyID, principal.RoleDirector)
	if err != nil {
		slog.Warn("director lookup failed", "company_id", pr.CompanyID, "error", err)
		return out
	}
	for _, d := range directors {
		if primary.UserID != nil && *primary.UserID == d.ID {
			continue
		}
		uid := d.ID
		out = append(out, models.Notification{
			UserID:    &uid,
			PayrollID: &payrollID,
			Event:     event,
			Message:   msg,
		})
	}
	return out
}

func eventFor(status models.PayrollStatus) (string, bool) {
	switch status {
	case models.PayrollStatusApproved:
		return models.EventPayrollApproved, true
	case models.PayrollStatusPaid:
		return models.EventPayrollPaid, true
	}
	return "", false
}

// Message renders the human-readable text of a status change.
func Message(change payroll.StatusChange) string {
	verb := "updated"
	switch change.To {
	case models.PayrollStatusApproved:
		verb = "approved"
	case models.PayrollStatusPaid:
		verb = "paid"
	}
	return fmt.Sprintf("Your payroll for %s has been %s. Amount: %s",
		change.Payroll.Period.String(), verb, change.Payroll.FinalSalary.StringFixed(2))
}

func (e *Emitter) List(ctx context.Context, p principal.Principal, unreadOnly bool) ([]models.Notification, error) {
	if err := checkInbox(p); err != nil {
		return nil, err
	}
	items, err := e.store.Notifications().ListForUser(ctx, p.UserID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (e *Emitter) MarkRead(ctx context.Context, p principal.Principal, id uuid.UUID) error {
	if err := checkInbox(p); err != nil {
		return err
	}
	if err := e.store.Notifications().MarkRead(ctx, id, p.UserID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (e *Emitter) MarkAllRead(ctx context.Context, p principal.Principal) (int, error) {
	if err := checkInbox(p); err != nil {
		return 0, err
	}
	n, err := e.store.Notifications().MarkAllRead(ctx, p.UserID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

func checkInbox(p principal.Principal) error {
	if !p.HasCapability(principal.CapNotifications) || p.UserID == uuid.Nil {
		return ErrForbidden
	}
	return nil
}
