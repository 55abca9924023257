// Package employee is the employee directory: records, search and soft
// activation. Salary changes are announced to a hook so Pending payrolls
// can follow them.
package employee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = store.ErrNotFound
	ErrForbidden      = principal.ErrForbidden
	ErrInvalidSalary  = errors.New("base salary must be a non-negative amount with at most two decimals")
	ErrMissingName    = errors.New("full name is required")
	ErrCompanyMissing = errors.New("company is required")
)

// SalaryChangeHook runs after an employee's base salary changed.
type SalaryChangeHook func(ctx context.Context, employeeID uuid.UUID) (int, error)

type Service struct {
	store          store.Store
	onSalaryChange SalaryChangeHook
}

type Option func(*Service)

func WithSalaryChangeHook(h SalaryChangeHook) Option {
	return func(s *Service) { s.onSalaryChange = h }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	CompanyID   *uuid.UUID
	UserID      *uuid.UUID
	FullName    string
	Email       string
	Phone       string
	Role        string
	BaseSalary  decimal.Decimal
	BankName    string
	BankAccount string
}

// Create adds an active employee. Non-admin callers always create in their
// own company, whatever CompanyID says.
func (s *Service) Create(ctx context.Context, p principal.Principal, in CreateInput) (*models.Employee, error) {
	if !p.HasCapability(principal.CapEmployeesWrite) {
		return nil, ErrForbidden
	}

	companyID := in.CompanyID
	if !p.IsAdmin() {
		companyID = p.CompanyID
	}
	if companyID == nil {
		return nil, ErrCompanyMissing
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, ErrMissingName
	}
	if err := validateSalary(in.BaseSalary); err != nil {
		return nil, err
	}

	e := &models.Employee{
		CompanyID:   *companyID,
		UserID:      in.UserID,
		FullName:    strings.TrimSpace(in.FullName),
		Email:       in.Email,
		Phone:       in.Phone,
		Role:        in.Role,
		BaseSalary:  in.BaseSalary,
		BankName:    in.BankName,
		BankAccount: in.BankAccount,
		IsActive:    true,
	}
	if err := s.store.Employees().Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Employee, error) {
	if !p.HasCapability(principal.CapEmployeesRead) {
		return nil, ErrForbidden
	}
	e, err := s.store.Employees().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if !p.CanAccessCompany(e.CompanyID) {
		return nil, fmt.Errorf("get employee: %w", ErrNotFound)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, p principal.Principal, f store.EmployeeFilter) ([]models.Employee, error) {
	if !p.HasCapability(principal.CapEmployeesRead) {
		return nil, ErrForbidden
	}
	if scope := p.ScopeCompany(); scope != nil {
		f.CompanyID = scope
	}
	employees, err := s.store.Employees().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employees, nil
}

// UpdateInput carries optional changes; nil fields are left as they are.
type UpdateInput struct {
	UserID      *uuid.UUID
	FullName    *string
	Email       *string
	Phone       *string
	Role        *string
	BaseSalary  *decimal.Decimal
	BankName    *string
	BankAccount *string
}

func (s *Service) Update(ctx context.Context, p principal.Principal, id uuid.UUID, in UpdateInput) (*models.Employee, error) {
	if !p.HasCapability(principal.CapEmployeesWrite) {
		return nil, ErrForbidden
	}
	e, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	salaryChanged := false
	if in.BaseSalary != nil {
		if err := validateSalary(*in.BaseSalary); err != nil {
			return nil, err
		}
		salaryChanged = !in.BaseSalary.Equal(e.BaseSalary)
		e.BaseSalary = *in.BaseSalary
	}
	if in.FullName != nil {
		if strings.TrimSpace(*in.FullName) == "" {
			return nil, ErrMissingName
		}
		e.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.UserID != nil {
		e.UserID = in.UserID
	}
	setIf(&e.Email, in.Email)
	setIf(&e.Phone, in.Phone)
	setIf(&e.Role, in.Role)
	setIf(&e.BankName, in.BankName)
	setIf(&e.BankAccount, in.BankAccount)

	if err := s.store.Employees().Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update employee: %w", err)
	}

	if salaryChanged && s.onSalaryChange != nil {
		n, err := s.onSalaryChange(ctx, e.ID)
		if err != nil {
			slog.Warn("pending payrolls not rebased", "employee_id", e.ID, "error", err)
		} else if n > 0 {
			slog.Info("pending payrolls rebased", "employee_id", e.ID, "count", n)
		}
	}
	return e, nil
}

func (s *Service) Deactivate(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Employee, error) {
	return s.setActive(ctx, p, id, false)
}

func (s *Service) Activate(ctx context.Context, p principal.Principal, id uuid.UUID) (*models.Employee, error) {
	return s.setActive(ctx, p, id, true)
}

func (s *Service) setActive(ctx context.Context, p principal.Principal, id uuid.UUID, active bool) (*models.Employee, error) {
	if !p.HasCapability(principal.CapEmployeesWrite) {
		return nil, ErrForbidden
	}
	e, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if e.IsActive == active {
		return e, nil
	}
	e.IsActive = active
	if err := s.store.Employees().Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update employee: %w", err)
	}
	return e, nil
}

func validateSalary(v decimal.Decimal) error {
	if v.IsNegative() || !v.Equal(v.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidSalary, v)
	}
	return nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
