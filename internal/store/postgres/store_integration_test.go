//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/payrollflow/internal/database"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "payroll",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/payroll?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, pool, "../../../migrations"))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return New(pool), cleanup
}

func TestIntegration_PayrollLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	company := &models.Company{Name: "Acme", BankBalance: decimal.RequireFromString("5000.00")}
	require.NoError(t, st.Companies().Create(ctx, company))

	err := st.Companies().Create(ctx, &models.Company{Name: "ACME"})
	require.ErrorIs(t, err, store.ErrDuplicateName)

	emp := &models.Employee{CompanyID: company.ID, FullName: "Jane Doe", BaseSalary: decimal.RequireFromString("5000.00"), IsActive: true}
	require.NoError(t, st.Employees().Create(ctx, emp))

	cid := company.ID
	hr := principal.Principal{UserID: uuid.New(), CompanyID: &cid, Role: principal.RoleHR}
	director := principal.Principal{UserID: uuid.New(), CompanyID: &cid, Role: principal.RoleDirector}
	engine := payroll.NewEngine(st, payroll.DefaultConfig())

	period := models.Period{Month: 3, Year: 2024}

	t.Run("duplicate period", func(t *testing.T) {
		_, err := engine.Create(ctx, hr, payroll.CreateInput{EmployeeID: emp.ID, AttendanceDays: 22, Period: period})
		require.NoError(t, err)
		_, err = engine.Create(ctx, hr, payroll.CreateInput{EmployeeID: emp.ID, AttendanceDays: 22, Period: period})
		require.ErrorIs(t, err, payroll.ErrDuplicatePeriod)
	})

	t.Run("concurrent approvals debit once", func(t *testing.T) {
		list, err := engine.List(ctx, hr, store.PayrollFilter{Period: &period})
		require.NoError(t, err)
		require.Len(t, list, 1)
		id := list[0].ID

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = engine.Approve(ctx, director, id)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded)

		c, err := st.Companies().Get(ctx, company.ID)
		require.NoError(t, err)
		assert.True(t, c.BankBalance.IsZero(), "balance %s", c.BankBalance)
		assert.Equal(t, company.Version+1, c.Version)
	})

	t.Run("summary and funds", func(t *testing.T) {
		sum, err := st.Payrolls().Summary(ctx, &cid, period)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.TotalPayrolls)
		assert.Equal(t, 1, sum.ApprovedCount)
		assert.True(t, sum.TotalAmount.Equal(decimal.RequireFromString("5000")))

		pending, err := st.Payrolls().PendingAmount(ctx, cid)
		require.NoError(t, err)
		assert.True(t, pending.IsZero())
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := st.Companies().Get(ctx, company.ID)
		require.NoError(t, err)
		stale.Version--

		err = st.InTx(ctx, func(tx store.Tx) error {
			return tx.UpdateCompanyBalance(ctx, stale)
		})
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("notifications inbox", func(t *testing.T) {
		u := &models.User{CompanyID: &cid, Role: principal.RoleEmployee, Email: "jane@acme.test"}
		require.NoError(t, st.Users().Create(ctx, u))

		n := &models.Notification{UserID: &u.ID, Event: models.EventPayrollApproved, Message: "approved"}
		require.NoError(t, st.Notifications().Create(ctx, n))

		unread, err := st.Notifications().ListForUser(ctx, u.ID, true)
		require.NoError(t, err)
		require.Len(t, unread, 1)

		require.ErrorIs(t, st.Notifications().MarkRead(ctx, n.ID, uuid.New()), store.ErrNotFound)
		count, err := st.Notifications().MarkAllRead(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
