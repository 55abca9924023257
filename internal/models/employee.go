package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Employee struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	CompanyID   uuid.UUID       `json:"company_id" db:"company_id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	FullName    string          `json:"full_name" db:"full_name"`
	Email       string          `json:"email,omitempty" db:"email"`
	Phone       string          `json:"phone,omitempty" db:"phone"`
	Role        string          `json:"role" db:"role"`
	BaseSalary  decimal.Decimal `json:"base_salary" db:"base_salary"`
	BankName    string          `json:"bank_name,omitempty" db:"bank_name"`
	BankAccount string          `json:"bank_account,omitempty" db:"bank_account"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
