// Package ledger manages companies and their bank balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = store.ErrNotFound
	ErrDuplicateName = store.ErrDuplicateName
	ErrForbidden     = principal.ErrForbidden
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidName   = errors.New("company name is required")
)

const maxCreditTries = 5

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Create(ctx context.Context, p principal.Principal, name string, openingBalance decimal.Decimal) (*models.Company, error) {
	if !p.HasCapability(principal.CapCompaniesManage) {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if openingBalance.IsNegative() || !openingBalance.Equal(openingBalance.Round(2)) {
		return nil, fmt.Errorf("%w: opening balance %s", ErrInvalidAmount, openingBalance)
	}

	c := &models.Company{
		Name:        name,
		BankBalance: openingBalance,
		CreatedBy:   p.UserID,
	}
	if err := s.store.Companies().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	slog.Info("company created", "company_id", c.ID, "name", c.Name)
	return c, nil
}

func (s *Service) Get(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Company, error) {
	if !p.HasCapability(principal.CapCompaniesRead) {
		return nil, ErrForbidden
	}
	if !p.CanAccessCompany(id) {
		return nil, fmt.Errorf("get company: %w", ErrNotFound)
	}
	c, err := s.store.Companies().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, p principal.Principal) ([]models.Company, error) {
	if !p.HasCapability(principal.CapCompaniesRead) {
		return nil, ErrForbidden
	}
	companies, err := s.store.Companies().List(ctx, p.ScopeCompany())
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// Credit adds amount to the company balance.
func (s *Service) Credit(ctx context.Context, p principal.Principal, companyID uuid.UUID, amount decimal.Decimal) (*models.Company, error) {
	if !p.HasCapability(principal.CapCompaniesManage) {
		return nil, ErrForbidden
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: credit %s", ErrInvalidAmount, amount)
	}

	credited, err := backoff.Retry(ctx, func() (*models.Company, error) {
		var out *models.Company
		err := s.store.InTx(ctx, func(tx store.Tx) error {
			c, err := tx.CompanyForUpdate(ctx, companyID)
			if err != nil {
				return fmt.Errorf("lock company: %w", err)
			}
			c.BankBalance = c.BankBalance.Add(amount)
			if err := tx.UpdateCompanyBalance(ctx, c); err != nil {
				return fmt.Errorf("credit company: %w", err)
			}
			out = c
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxCreditTries))
	if err != nil {
		return nil, err
	}

	slog.Info("company credited",
		"company_id", companyID,
		"amount", amount.String(),
		"balance", credited.BankBalance.String(),
	)
	return credited, nil
}
