package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Company struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	BankBalance decimal.Decimal `json:"bank_balance" db:"bank_balance"`
	Version     int64           `json:"version" db:"version"`
	CreatedBy   uuid.UUID       `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CanAfford reports whether the balance covers amount.
func (c *Company) CanAfford(amount decimal.Decimal) bool {
	return c.BankBalance.GreaterThanOrEqual(amount)
}

// CompanyFunds compares a company's balance with its outstanding Pending payrolls.
type CompanyFunds struct {
	CompanyID             uuid.UUID       `json:"company_id"`
	CompanyName           string          `json:"company_name"`
	CurrentBalance        decimal.Decimal `json:"current_balance"`
	PendingPayrollAmount  decimal.Decimal `json:"pending_payroll_amount"`
	RemainingAfterPayroll decimal.Decimal `json:"remaining_after_payroll"`
	CanAffordPending      bool            `json:"can_afford_pending"`
}
