package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = principal.Principal{UserID: uuid.New(), Role: principal.RoleAdmin}

func TestCreate(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	c, err := svc.Create(ctx, admin, "  Acme ", decimal.RequireFromString("100.50"))
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, admin.UserID, c.CreatedBy)

	tests := []struct {
		name    string
		p       principal.Principal
		company string
		balance string
		wantErr error
	}{
		{"duplicate name", admin, "acme", "0", ErrDuplicateName},
		{"blank name", admin, " ", "0", ErrInvalidName},
		{"negative balance", admin, "Beta", "-1", ErrInvalidAmount},
		{"fractional cents", admin, "Beta", "1.001", ErrInvalidAmount},
		{"director forbidden", principal.Principal{UserID: uuid.New(), Role: principal.RoleDirector}, "Beta", "0", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.p, tt.company, decimal.RequireFromString(tt.balance))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScopedReads(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	a, err := svc.Create(ctx, admin, "Acme", decimal.Zero)
	require.NoError(t, err)
	b, err := svc.Create(ctx, admin, "Beta", decimal.Zero)
	require.NoError(t, err)

	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	director := principal.Principal{UserID: uuid.New(), CompanyID: &a.ID, Role: principal.RoleDirector}
	own, err := svc.List(ctx, director)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, a.ID, own[0].ID)

	_, err = svc.Get(ctx, director, b.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.List(ctx, principal.Principal{UserID: uuid.New(), CompanyID: &a.ID, Role: principal.RoleEmployee})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCredit(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	c, err := svc.Create(ctx, admin, "Acme", decimal.RequireFromString("10"))
	require.NoError(t, err)

	t.Run("adds and bumps version", func(t *testing.T) {
		got, err := svc.Credit(ctx, admin, c.ID, decimal.RequireFromString("5.25"))
		require.NoError(t, err)
		assert.True(t, got.BankBalance.Equal(decimal.RequireFromString("15.25")))
		assert.Equal(t, c.Version+1, got.Version)
	})

	t.Run("concurrent credits all land", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Credit(ctx, admin, c.ID, decimal.NewFromInt(1))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := svc.Get(ctx, admin, c.ID)
		require.NoError(t, err)
		assert.True(t, got.BankBalance.Equal(decimal.RequireFromString("25.25")), "balance %s", got.BankBalance)
	})

	t.Run("rejects non-positive", func(t *testing.T) {
		_, err := svc.Credit(ctx, admin, c.ID, decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown company", func(t *testing.T) {
		_, err := svc.Credit(ctx, admin, uuid.New(), decimal.NewFromInt(1))
		require.ErrorIs(t, err, ErrNotFound)
	})
}
