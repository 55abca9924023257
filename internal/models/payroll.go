package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayrollStatus string

const (
	PayrollStatusPending  PayrollStatus = "Pending"
	PayrollStatusApproved PayrollStatus = "Approved"
	PayrollStatusPaid     PayrollStatus = "Paid"
)

// Next returns the only status reachable from s. Paid is terminal.
func (s PayrollStatus) Next() (PayrollStatus, bool) {
	switch s {
	case PayrollStatusPending:
		return PayrollStatusApproved, true
	case PayrollStatusApproved:
		return PayrollStatusPaid, true
	}
	return "", false
}

func (s PayrollStatus) Valid() bool {
	switch s {
	case PayrollStatusPending, PayrollStatusApproved, PayrollStatusPaid:
		return true
	}
	return false
}

// Period identifies one payroll cycle.
type Period struct {
	Month int `json:"month" db:"month"`
	Year  int `json:"year" db:"year"`
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

type Payroll struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	EmployeeID     uuid.UUID       `json:"employee_id" db:"employee_id"`
	CompanyID      uuid.UUID       `json:"company_id" db:"company_id"`
	AttendanceDays int             `json:"attendance_days" db:"attendance_days"`
	BaseSalary     decimal.Decimal `json:"base_salary" db:"base_salary"`
	Bonus          decimal.Decimal `json:"bonus" db:"bonus"`
	Deductions     decimal.Decimal `json:"deductions" db:"deductions"`
	FinalSalary    decimal.Decimal `json:"final_salary" db:"final_salary"`
	Period
	Status      PayrollStatus `json:"status" db:"status"`
	PaymentDate *time.Time    `json:"payment_date,omitempty" db:"payment_date"`
	CreatedBy   uuid.UUID     `json:"created_by" db:"created_by"`
	ApprovedBy  *uuid.UUID    `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	PaidAt      *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}

// FinalSalaryOf is base + bonus - deductions.
func FinalSalaryOf(base, bonus, deductions decimal.Decimal) decimal.Decimal {
	return base.Add(bonus).Sub(deductions)
}

// Recalculate refreshes FinalSalary from the snapshot fields.
func (p *Payroll) Recalculate() {
	p.FinalSalary = FinalSalaryOf(p.BaseSalary, p.Bonus, p.Deductions)
}

// PayrollSummary aggregates payrolls of one company and period.
type PayrollSummary struct {
	Period
	CompanyID     *uuid.UUID      `json:"company_id,omitempty"`
	TotalPayrolls int             `json:"total_payrolls"`
	PendingCount  int             `json:"pending_count"`
	ApprovedCount int             `json:"approved_count"`
	PaidCount     int             `json:"paid_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
}
