package payroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

// MonthlySummary aggregates payrolls of one period. A nil companyID means
// every company the caller can see.
func (e *Engine) MonthlySummary(ctx context.Context, p principal.Principal, companyID *uuid.UUID, period models.Period) (*models.PayrollSummary, error) {
	if !p.HasCapability(principal.CapPayrollRead) {
		return nil, ErrForbidden
	}
	if err := e.ValidatePeriod(period); err != nil {
		return nil, err
	}

	if companyID != nil {
		if !p.CanAccessCompany(*companyID) {
			return nil, fmt.Errorf("monthly summary: %w", ErrNotFound)
		}
	} else {
		companyID = p.ScopeCompany()
	}

	sum, err := e.store.Payrolls().Summary(ctx, companyID, period)
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	return sum, nil
}

// CompanyFunds compares the company balance with what its Pending
// payrolls would cost.
func (e *Engine) CompanyFunds(ctx context.Context, p principal.Principal, companyID uuid.UUID) (*models.CompanyFunds, error) {
	if !p.HasCapability(principal.CapCompanyFunds) {
		return nil, ErrForbidden
	}
	if !p.CanAccessCompany(companyID) {
		return nil, fmt.Errorf("company funds: %w", ErrNotFound)
	}

	company, err := e.store.Companies().Get(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	pending, err := e.store.Payrolls().PendingAmount(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("pending amount: %w", err)
	}

	return &models.CompanyFunds{
		CompanyID:             company.ID,
		CompanyName:           company.Name,
		CurrentBalance:        company.BankBalance,
		PendingPayrollAmount:  pending,
		RemainingAfterPayroll: company.BankBalance.Sub(pending),
		CanAffordPending:      company.CanAfford(pending),
	}, nil
}
