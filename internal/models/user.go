package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

type User struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	CompanyID *uuid.UUID     `json:"company_id,omitempty" db:"company_id"`
	Role      principal.Role `json:"role" db:"role"`
	Email     string         `json:"email" db:"email"`
	FullName  string         `json:"full_name,omitempty" db:"full_name"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Principal returns the identity used for authorization decisions.
func (u *User) Principal() principal.Principal {
	return principal.Principal{
		UserID:    u.ID,
		CompanyID: u.CompanyID,
		Role:      u.Role,
	}
}

type APIKey struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	KeyHash    string     `json:"-" db:"key_hash"`
	Name       string     `json:"name" db:"name"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
