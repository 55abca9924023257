package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

type GenerateInput struct {
	Period models.Period
	// CompanyID limits generation to one company; nil means all visible ones.
	CompanyID *uuid.UUID
	// AttendanceDays defaults to the engine's configured value when zero.
	AttendanceDays int
}

type GenerateResult struct {
	Period  models.Period `json:"period"`
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
}

// GenerateMonthly creates a Pending payroll with no bonus or deductions for
// every active employee lacking one for the period. Running it twice for
// the same period creates nothing the second time.
func (e *Engine) GenerateMonthly(ctx context.Context, p principal.Principal, in GenerateInput) (*GenerateResult, error) {
	if !p.HasCapability(principal.CapPayrollGenerate) {
		return nil, ErrForbidden
	}
	if err := e.ValidatePeriod(in.Period); err != nil {
		return nil, err
	}

	days := in.AttendanceDays
	if days == 0 {
		days = e.cfg.DefaultAttendanceDays
	}
	if err := validateAttendance(days); err != nil {
		return nil, err
	}

	scope := in.CompanyID
	if scope != nil {
		if !p.CanAccessCompany(*scope) {
			return nil, fmt.Errorf("generate payrolls: %w", ErrNotFound)
		}
	} else {
		scope = p.ScopeCompany()
	}

	active := true
	employees, err := e.store.Employees().List(ctx, store.EmployeeFilter{
		CompanyID: scope,
		Active:    &active,
	})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	// generation creates on behalf of the caller, which may not hold payroll:write
	creator := p
	creator.Role = principal.RoleAdmin

	result := &GenerateResult{Period: in.Period}
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := e.Create(ctx, creator, CreateInput{
			EmployeeID:     emp.ID,
			AttendanceDays: days,
			Bonus:          decimal.Zero,
			Deductions:     decimal.Zero,
			Period:         in.Period,
		})
		switch {
		case err == nil:
			result.Created++
		case errors.Is(err, ErrDuplicatePeriod):
			result.Skipped++
		default:
			result.Failed++
			slog.Warn("payroll not generated", "employee_id", emp.ID, "period", in.Period.String(), "error", err)
		}
	}

	slog.Info("monthly payrolls generated",
		"period", in.Period.String(),
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}
