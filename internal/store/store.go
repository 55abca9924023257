// Package store defines persistence for companies, employees, payrolls and
// notifications. Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/shopspring/decimal"
)

// Sentinel errors for common error conditions
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicatePeriod = errors.New("payroll already exists for employee and period")
	ErrDuplicateName   = errors.New("name already in use")
	// ErrConflict is retryable: the transaction lost a race and changed nothing.
	ErrConflict = errors.New("concurrent update conflict")
)

// Store groups the per-entity stores with a transactional unit of work.
type Store interface {
	Companies() CompanyStore
	Employees() EmployeeStore
	Payrolls() PayrollStore
	Notifications() NotificationStore
	Users() UserStore

	// InTx runs fn in a single transaction. Writes made through tx are
	// committed only when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the locking reads and writes used by balance-affecting operations.
// Rows read "ForUpdate" stay locked until the transaction ends.
type Tx interface {
	PayrollForUpdate(ctx context.Context, id uuid.UUID) (*models.Payroll, error)
	CompanyForUpdate(ctx context.Context, id uuid.UUID) (*models.Company, error)
	Employee(ctx context.Context, id uuid.UUID) (*models.Employee, error)

	// UpdateCompanyBalance writes c.BankBalance if the stored version still
	// equals c.Version, then increments c.Version. A stale version is ErrConflict.
	UpdateCompanyBalance(ctx context.Context, c *models.Company) error
	UpdatePayroll(ctx context.Context, p *models.Payroll) error
}

type CompanyStore interface {
	Create(ctx context.Context, c *models.Company) error
	Get(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetByName(ctx context.Context, name string) (*models.Company, error)
	// List returns all companies, or only scope when non-nil.
	List(ctx context.Context, scope *uuid.UUID) ([]models.Company, error)
}

type EmployeeFilter struct {
	CompanyID *uuid.UUID
	Search    string
	Active    *bool
	Role      string
	Limit     int
	Offset    int
}

type EmployeeStore interface {
	Create(ctx context.Context, e *models.Employee) error
	Get(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	Update(ctx context.Context, e *models.Employee) error
	List(ctx context.Context, f EmployeeFilter) ([]models.Employee, error)
}

type PayrollFilter struct {
	CompanyID  *uuid.UUID
	EmployeeID *uuid.UUID
	Status     models.PayrollStatus
	Period     *models.Period
	Limit      int
	Offset     int
}

type PayrollStore interface {
	// Create fails with ErrDuplicatePeriod when the employee already has a
	// payroll for p.Period.
	Create(ctx context.Context, p *models.Payroll) error
	Get(ctx context.Context, id uuid.UUID) (*models.Payroll, error)
	List(ctx context.Context, f PayrollFilter) ([]models.Payroll, error)
	Summary(ctx context.Context, companyID *uuid.UUID, period models.Period) (*models.PayrollSummary, error)
	PendingAmount(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error)
	// MarkRead returns ErrNotFound when id does not belong to userID.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListByCompanyRole(ctx context.Context, companyID uuid.UUID, role principal.Role) ([]models.User, error)
}
