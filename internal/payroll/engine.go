// Package payroll owns the payroll lifecycle: salary computation, the
// Pending -> Approved -> Paid state machine, balance-aware approval and
// batch approval.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/audit"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

const (
	maxYear          = 9999
	maxAttendanceDay = 31
)

type Config struct {
	MinYear int
	// MaxApproveRetries caps retries of a transition that lost a race.
	MaxApproveRetries    int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// DefaultAttendanceDays is used by GenerateMonthly when none is given.
	DefaultAttendanceDays int
}

func DefaultConfig() Config {
	return Config{
		MinYear:              2000,
		MaxApproveRetries:    3,
		RetryInitialInterval: 10 * time.Millisecond,
		RetryMaxInterval:     200 * time.Millisecond,

		DefaultAttendanceDays: 22,
	}
}

// StatusChange describes one committed status transition.
type StatusChange struct {
	Payroll models.Payroll
	From    models.PayrollStatus
	To      models.PayrollStatus
	Actor   principal.Principal
	At      time.Time
	// CompanyBalance is the balance after the debit, set on approval only.
	CompanyBalance *decimal.Decimal
}

// Event converts c to its wire form.
func (c StatusChange) Event() models.PayrollEvent {
	name := models.EventPayrollApproved
	if c.To == models.PayrollStatusPaid {
		name = models.EventPayrollPaid
	}
	return models.PayrollEvent{
		Event:          name,
		PayrollID:      c.Payroll.ID,
		EmployeeID:     c.Payroll.EmployeeID,
		CompanyID:      c.Payroll.CompanyID,
		Period:         c.Payroll.Period,
		FinalSalary:    c.Payroll.FinalSalary,
		From:           c.From,
		To:             c.To,
		ActorID:        c.Actor.UserID,
		OccurredAt:     c.At,
		CompanyBalance: c.CompanyBalance,
	}
}

// StatusListener is told about every committed transition. It must not
// fail the transition; errors are its own to log.
type StatusListener interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

// ChangeListener is told, synchronously and before the operation returns,
// that payrolls of companyID were written. Pending amounts and counts
// derived from them are stale from then on.
type ChangeListener interface {
	PayrollsChanged(ctx context.Context, companyID uuid.UUID)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Engine struct {
	store    store.Store
	cfg      Config
	listener StatusListener
	changes  ChangeListener
	auditor  Auditor
	now      func() time.Time
}

type Option func(*Engine)

func WithStatusListener(l StatusListener) Option {
	return func(e *Engine) { e.listener = l }
}

func WithChangeListener(l ChangeListener) Option {
	return func(e *Engine) { e.changes = l }
}

func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, cfg Config, opts ...Option) *Engine {
	if cfg.MinYear <= 0 {
		cfg.MinYear = DefaultConfig().MinYear
	}
	if cfg.MaxApproveRetries < 0 {
		cfg.MaxApproveRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultConfig().RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = DefaultConfig().RetryMaxInterval
	}
	if cfg.DefaultAttendanceDays <= 0 || cfg.DefaultAttendanceDays > maxAttendanceDay {
		cfg.DefaultAttendanceDays = DefaultConfig().DefaultAttendanceDays
	}

	e := &Engine{store: st, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateInput struct {
	EmployeeID     uuid.UUID
	AttendanceDays int
	Bonus          decimal.Decimal
	Deductions     decimal.Decimal
	Period         models.Period
	PaymentDate    *time.Time
}

// Create computes the final salary from the employee's current base salary
// and stores a Pending payroll for the period.
func (e *Engine) Create(ctx context.Context, p principal.Principal, in CreateInput) (*models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollWrite) {
		return nil, ErrForbidden
	}
	if err := e.ValidatePeriod(in.Period); err != nil {
		return nil, err
	}
	if err := validateAttendance(in.AttendanceDays); err != nil {
		return nil, err
	}
	if err := validateAmounts(in.Bonus, in.Deductions); err != nil {
		return nil, err
	}

	emp, err := e.store.Employees().Get(ctx, in.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if !p.CanAccessCompany(emp.CompanyID) {
		return nil, fmt.Errorf("get employee: %w", ErrNotFound)
	}
	if !emp.IsActive {
		return nil, ErrInactiveEmployee
	}

	pr := &models.Payroll{
		EmployeeID:     emp.ID,
		CompanyID:      emp.CompanyID,
		AttendanceDays: in.AttendanceDays,
		BaseSalary:     emp.BaseSalary,
		Bonus:          in.Bonus,
		Deductions:     in.Deductions,
		Period:         in.Period,
		Status:         models.PayrollStatusPending,
		PaymentDate:    in.PaymentDate,
		CreatedBy:      p.UserID,
	}
	pr.Recalculate()
	if pr.FinalSalary.IsNegative() {
		return nil, fmt.Errorf("%w: final salary %s is negative", ErrInvalidAmount, pr.FinalSalary)
	}

	if err := e.store.Payrolls().Create(ctx, pr); err != nil {
		return nil, fmt.Errorf("create payroll: %w", err)
	}
	e.changed(ctx, pr.CompanyID)

	e.record(ctx, p, "payroll.created", pr, map[string]interface{}{
		"period":       pr.Period.String(),
		"final_salary": pr.FinalSalary.String(),
	})
	return pr, nil
}

// Approve debits the final salary from the company and moves the payroll
// to Approved, as one transaction. Nothing changes on failure.
func (e *Engine) Approve(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollApprove) {
		return nil, ErrForbidden
	}

	var (
		approved *models.Payroll
		balance  decimal.Decimal
	)
	err := e.withRetry(ctx, func() error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			pr, err := lockPayroll(ctx, tx, p, id)
			if err != nil {
				return err
			}
			if pr.Status != models.PayrollStatusPending {
				return fmt.Errorf("%w: cannot approve payroll in status %s", ErrInvalidTransition, pr.Status)
			}

			company, err := tx.CompanyForUpdate(ctx, pr.CompanyID)
			if err != nil {
				return fmt.Errorf("lock company: %w", err)
			}
			if !company.CanAfford(pr.FinalSalary) {
				return fmt.Errorf("%w: balance %s, required %s",
					ErrInsufficientFunds, company.BankBalance.StringFixed(2), pr.FinalSalary.StringFixed(2))
			}

			company.BankBalance = company.BankBalance.Sub(pr.FinalSalary)
			if err := tx.UpdateCompanyBalance(ctx, company); err != nil {
				return fmt.Errorf("debit company: %w", err)
			}

			now := e.now()
			approver := p.UserID
			pr.Status = models.PayrollStatusApproved
			pr.ApprovedBy = &approver
			pr.ApprovedAt = &now
			if err := tx.UpdatePayroll(ctx, pr); err != nil {
				return fmt.Errorf("update payroll: %w", err)
			}

			approved = pr
			balance = company.BankBalance
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.changed(ctx, approved.CompanyID)

	slog.Info("payroll approved",
		"payroll_id", approved.ID,
		"company_id", approved.CompanyID,
		"amount", approved.FinalSalary.String(),
		"balance_after", balance.String(),
	)
	e.record(ctx, p, "payroll.approved", approved, map[string]interface{}{
		"amount":        approved.FinalSalary.String(),
		"balance_after": balance.String(),
	})
	e.emit(ctx, StatusChange{
		Payroll:        *approved,
		From:           models.PayrollStatusPending,
		To:             models.PayrollStatusApproved,
		Actor:          p,
		At:             *approved.ApprovedAt,
		CompanyBalance: &balance,
	})
	return approved, nil
}

// MarkPaid moves an Approved payroll to Paid.
func (e *Engine) MarkPaid(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollPay) {
		return nil, ErrForbidden
	}

	var paid *models.Payroll
	err := e.withRetry(ctx, func() error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			pr, err := lockPayroll(ctx, tx, p, id)
			if err != nil {
				return err
			}
			if pr.Status != models.PayrollStatusApproved {
				return fmt.Errorf("%w: cannot mark payroll in status %s as paid", ErrInvalidTransition, pr.Status)
			}

			now := e.now()
			pr.Status = models.PayrollStatusPaid
			pr.PaidAt = &now
			if pr.PaymentDate == nil {
				day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
				pr.PaymentDate = &day
			}
			if err := tx.UpdatePayroll(ctx, pr); err != nil {
				return fmt.Errorf("update payroll: %w", err)
			}
			paid = pr
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.changed(ctx, paid.CompanyID)
	e.record(ctx, p, "payroll.paid", paid, nil)
	e.emit(ctx, StatusChange{
		Payroll: *paid,
		From:    models.PayrollStatusApproved,
		To:      models.PayrollStatusPaid,
		Actor:   p,
		At:      *paid.PaidAt,
	})
	return paid, nil
}

type RecomputeInput struct {
	Bonus          decimal.Decimal
	Deductions     decimal.Decimal
	AttendanceDays *int
	PaymentDate    *time.Time
}

// Recompute replaces bonus and deductions of a Pending payroll and refreshes
// its base salary snapshot from the employee record.
func (e *Engine) Recompute(ctx context.Context, p principal.Principal, id uuid.UUID, in RecomputeInput) (*models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollWrite) {
		return nil, ErrForbidden
	}
	if err := validateAmounts(in.Bonus, in.Deductions); err != nil {
		return nil, err
	}
	if in.AttendanceDays != nil {
		if err := validateAttendance(*in.AttendanceDays); err != nil {
			return nil, err
		}
	}

	var updated *models.Payroll
	err := e.withRetry(ctx, func() error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			pr, err := lockPayroll(ctx, tx, p, id)
			if err != nil {
				return err
			}
			if pr.Status != models.PayrollStatusPending {
				return fmt.Errorf("%w: payroll in status %s is frozen", ErrInvalidTransition, pr.Status)
			}

			emp, err := tx.Employee(ctx, pr.EmployeeID)
			if err != nil {
				return fmt.Errorf("get employee: %w", err)
			}

			pr.BaseSalary = emp.BaseSalary
			pr.Bonus = in.Bonus
			pr.Deductions = in.Deductions
			if in.AttendanceDays != nil {
				pr.AttendanceDays = *in.AttendanceDays
			}
			if in.PaymentDate != nil {
				pr.PaymentDate = in.PaymentDate
			}
			pr.Recalculate()
			if pr.FinalSalary.IsNegative() {
				return fmt.Errorf("%w: final salary %s is negative", ErrInvalidAmount, pr.FinalSalary)
			}

			if err := tx.UpdatePayroll(ctx, pr); err != nil {
				return fmt.Errorf("update payroll: %w", err)
			}
			updated = pr
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.changed(ctx, updated.CompanyID)
	e.record(ctx, p, "payroll.recomputed", updated, map[string]interface{}{
		"final_salary": updated.FinalSalary.String(),
	})
	return updated, nil
}

// RebasePending recomputes every Pending payroll of employeeID against the
// employee's current base salary. Approved and Paid payrolls stay frozen.
func (e *Engine) RebasePending(ctx context.Context, employeeID uuid.UUID) (int, error) {
	pending, err := e.store.Payrolls().List(ctx, store.PayrollFilter{
		EmployeeID: &employeeID,
		Status:     models.PayrollStatusPending,
	})
	if err != nil {
		return 0, fmt.Errorf("list pending payrolls: %w", err)
	}

	updated := 0
	for _, candidate := range pending {
		err := e.withRetry(ctx, func() error {
			return e.store.InTx(ctx, func(tx store.Tx) error {
				pr, err := tx.PayrollForUpdate(ctx, candidate.ID)
				if err != nil {
					return err
				}
				if pr.Status != models.PayrollStatusPending {
					return nil
				}
				emp, err := tx.Employee(ctx, pr.EmployeeID)
				if err != nil {
					return err
				}

				pr.BaseSalary = emp.BaseSalary
				pr.Recalculate()
				if pr.FinalSalary.IsNegative() {
					return fmt.Errorf("%w: final salary %s is negative", ErrInvalidAmount, pr.FinalSalary)
				}
				if err := tx.UpdatePayroll(ctx, pr); err != nil {
					return err
				}
				updated++
				return nil
			})
		})
		if err != nil {
			slog.Warn("pending payroll not rebased", "payroll_id", candidate.ID, "error", err)
		}
	}
	if updated > 0 {
		e.changed(ctx, pending[0].CompanyID)
	}
	return updated, nil
}

func (e *Engine) Get(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollRead) {
		return nil, ErrForbidden
	}
	pr, err := e.store.Payrolls().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payroll: %w", err)
	}
	if !p.CanAccessCompany(pr.CompanyID) {
		return nil, fmt.Errorf("get payroll: %w", ErrNotFound)
	}
	return pr, nil
}

// List returns payrolls visible to p; non-admin filters are pinned to the
// caller's company.
func (e *Engine) List(ctx context.Context, p principal.Principal, f store.PayrollFilter) ([]models.Payroll, error) {
	if !p.HasCapability(principal.CapPayrollRead) {
		return nil, ErrForbidden
	}
	if scope := p.ScopeCompany(); scope != nil {
		f.CompanyID = scope
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	payrolls, err := e.store.Payrolls().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list payrolls: %w", err)
	}
	return payrolls, nil
}

// ValidatePeriod checks month 1-12 and MinYear <= year <= 9999.
func (e *Engine) ValidatePeriod(period models.Period) error {
	if period.Month < 1 || period.Month > 12 {
		return fmt.Errorf("%w: month %d out of range 1-12", ErrInvalidPeriod, period.Month)
	}
	if period.Year < e.cfg.MinYear || period.Year > maxYear {
		return fmt.Errorf("%w: year %d out of range %d-%d", ErrInvalidPeriod, period.Year, e.cfg.MinYear, maxYear)
	}
	return nil
}

func validateAttendance(days int) error {
	if days < 0 || days > maxAttendanceDay {
		return fmt.Errorf("%w: %d not in 0-%d", ErrInvalidAttendance, days, maxAttendanceDay)
	}
	return nil
}

// Amounts carry at most two decimal places, matching NUMERIC(15,2).
func validateAmounts(amounts ...decimal.Decimal) error {
	for _, a := range amounts {
		if !a.Equal(a.Round(2)) {
			return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, a)
		}
	}
	return nil
}

func lockPayroll(ctx context.Context, tx store.Tx, p principal.Principal, id uuid.UUID) (*models.Payroll, error) {
	pr, err := tx.PayrollForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock payroll: %w", err)
	}
	if !p.CanAccessCompany(pr.CompanyID) {
		return nil, fmt.Errorf("lock payroll: %w", ErrNotFound)
	}
	return pr, nil
}

// withRetry re-runs op while the store reports a retryable conflict.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.RetryInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         e.cfg.RetryMaxInterval,
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, store.ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.MaxApproveRetries+1)),
	)
	if errors.Is(err, store.ErrConflict) {
		slog.Warn("transaction conflict, giving up", "attempts", attempts, "error", err)
		return fmt.Errorf("%w after %d attempts: %w", ErrConcurrencyConflict, attempts, err)
	}
	return err
}

func (e *Engine) changed(ctx context.Context, companyID uuid.UUID) {
	if e.changes == nil {
		return
	}
	e.changes.PayrollsChanged(ctx, companyID)
}

func (e *Engine) emit(ctx context.Context, change StatusChange) {
	if e.listener == nil {
		return
	}
	e.listener.StatusChanged(ctx, change)
}

func (e *Engine) record(ctx context.Context, p principal.Principal, action string, pr *models.Payroll, details map[string]interface{}) {
	if e.auditor == nil {
		return
	}

	companyID := pr.CompanyID
	resourceID := pr.ID
	var userID *uuid.UUID
	if p.UserID != uuid.Nil {
		id := p.UserID
		userID = &id
	}

	err := e.auditor.Record(ctx, audit.Entry{
		CompanyID:    &companyID,
		UserID:       userID,
		Action:       action,
		ResourceType: "payroll",
		ResourceID:   &resourceID,
		Details:      details,
		IPAddress:    audit.ClientIP(ctx),
	})
	if err != nil {
		slog.Warn("audit record failed", "action", action, "payroll_id", pr.ID, "error", err)
	}
}
