package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/payrollflow/internal/auth"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store/postgres"
)

type CreateUserCmd struct {
	Email    string `help:"Login email" required:""`
	Role     string `help:"Role" required:"" enum:"Admin,HR,Director,Employee"`
	Company  string `help:"Company ID (required for every role but Admin)"`
	FullName string `help:"Display name"`
}

func (c *CreateUserCmd) Run(ctx context.Context) error {
	role, err := principal.ParseRole(c.Role)
	if err != nil {
		return err
	}
	u := &models.User{Email: c.Email, Role: role, FullName: c.FullName}
	if c.Company != "" {
		id, err := uuid.Parse(c.Company)
		if err != nil {
			return fmt.Errorf("invalid company ID: %w", err)
		}
		u.CompanyID = &id
	} else if role != principal.RoleAdmin {
		return fmt.Errorf("--company is required for role %s", role)
	}

	_, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.New(db).Users().Create(ctx, u); err != nil {
		return err
	}
	fmt.Println(u.ID)
	return nil
}

type APIKeyCmd struct {
	User string        `help:"User ID the key acts as" required:""`
	Name string        `help:"Key label" default:"cli"`
	TTL  time.Duration `help:"Key lifetime; zero never expires" default:"0"`
}

func (a *APIKeyCmd) Run(ctx context.Context) error {
	userID, err := uuid.Parse(a.User)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}
	_, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := postgres.New(db).Users().Get(ctx, userID); err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	var expiresAt *time.Time
	if a.TTL > 0 {
		t := time.Now().Add(a.TTL)
		expiresAt = &t
	}
	key, _, err := auth.NewPGKeyStore(db).Create(ctx, userID, a.Name, expiresAt)
	if err != nil {
		return err
	}
	// the plaintext key is shown once
	fmt.Println(key)
	return nil
}

type TokenCmd struct {
	User string        `help:"User ID" required:""`
	TTL  time.Duration `help:"Token lifetime" default:"1h"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	userID, err := uuid.Parse(t.User)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}
	cfg, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	u, err := postgres.New(db).Users().Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, u, t.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
