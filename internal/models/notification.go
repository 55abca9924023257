package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventPayrollApproved = "payroll.approved"
	EventPayrollPaid     = "payroll.paid"
)

type Notification struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	EmployeeID *uuid.UUID `json:"employee_id,omitempty" db:"employee_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	PayrollID  *uuid.UUID `json:"payroll_id,omitempty" db:"payroll_id"`
	Event      string     `json:"event" db:"event"`
	Message    string     `json:"message" db:"message"`
	IsRead     bool       `json:"is_read" db:"is_read"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// PayrollEvent is the wire form of a payroll status change, shared by the
// job queue, redis pub/sub and outbound webhooks.
type PayrollEvent struct {
	Event          string           `json:"event"`
	PayrollID      uuid.UUID        `json:"payroll_id"`
	EmployeeID     uuid.UUID        `json:"employee_id"`
	CompanyID      uuid.UUID        `json:"company_id"`
	Period         Period           `json:"period"`
	FinalSalary    decimal.Decimal  `json:"final_salary"`
	From           PayrollStatus    `json:"from"`
	To             PayrollStatus    `json:"to"`
	ActorID        uuid.UUID        `json:"actor_id"`
	OccurredAt     time.Time        `json:"occurred_at"`
	CompanyBalance *decimal.Decimal `json:"company_balance,omitempty"`
}
