package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store    *memory.Store
	engine   *payroll.Engine
	emitter  *Emitter
	employee principal.Principal
	director principal.Principal
	hr       principal.Principal
	payroll  *models.Payroll
}

func setup(t *testing.T, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	company := &models.Company{Name: "Acme", BankBalance: decimal.NewFromInt(10000)}
	require.NoError(t, st.Companies().Create(ctx, company))
	cid := company.ID

	empUser := &models.User{CompanyID: &cid, Role: principal.RoleEmployee, Email: "jane@acme.test"}
	dirUser := &models.User{CompanyID: &cid, Role: principal.RoleDirector, Email: "boss@acme.test"}
	require.NoError(t, st.Users().Create(ctx, empUser))
	require.NoError(t, st.Users().Create(ctx, dirUser))

	uid := empUser.ID
	emp := &models.Employee{
		CompanyID:  cid,
		UserID:     &uid,
		FullName:   "Jane Doe",
		BaseSalary: decimal.NewFromInt(3000),
		IsActive:   true,
	}
	require.NoError(t, st.Employees().Create(ctx, emp))

	emitter := NewEmitter(st, opts...)
	engine := payroll.NewEngine(st, payroll.DefaultConfig(), payroll.WithStatusListener(emitter))

	hr := principal.Principal{UserID: uuid.New(), CompanyID: &cid, Role: principal.RoleHR}
	pr, err := engine.Create(ctx, hr, payroll.CreateInput{
		EmployeeID:     emp.ID,
		AttendanceDays: 22,
		Period:         models.Period{Month: 3, Year: 2024},
	})
	require.NoError(t, err)

	return &env{
		store:    st,
		engine:   engine,
		emitter:  emitter,
		employee: empUser.Principal(),
		director: dirUser.Principal(),
		hr:       hr,
		payroll:  pr,
	}
}

func TestStatusChangedRecordsNotification(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.engine.Approve(ctx, e.director, e.payroll.ID)
	require.NoError(t, err)

	items, err := e.emitter.List(ctx, e.employee, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.EventPayrollApproved, items[0].Event)
	assert.Equal(t, "Your payroll for 03/2024 has been approved. Amount: 3000.00", items[0].Message)
	require.NotNil(t, items[0].PayrollID)
	assert.Equal(t, e.payroll.ID, *items[0].PayrollID)
	assert.False(t, items[0].IsRead)

	_, err = e.engine.MarkPaid(ctx, e.director, e.payroll.ID)
	require.NoError(t, err)

	items, err = e.emitter.List(ctx, e.employee, false)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// directors are not copied by default
	dirItems, err := e.emitter.List(ctx, e.director, false)
	require.NoError(t, err)
	assert.Empty(t, dirItems)
}

func TestDirectorCopies(t *testing.T) {
	e := setup(t, WithDirectorCopies(true))
	ctx := context.Background()

	_, err := e.engine.Approve(ctx, e.director, e.payroll.ID)
	require.NoError(t, err)

	dirItems, err := e.emitter.List(ctx, e.director, false)
	require.NoError(t, err)
	require.Len(t, dirItems, 1)
	assert.Nil(t, dirItems[0].EmployeeID)
}

func TestFailedApprovalNotifiesNobody(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.engine.MarkPaid(ctx, e.director, e.payroll.ID)
	require.ErrorIs(t, err, payroll.ErrInvalidTransition)

	items, err := e.emitter.List(ctx, e.employee, false)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSubscribers(t *testing.T) {
	t.Run("each subscriber sees the change", func(t *testing.T) {
		e := setup(t)
		var (
			mu  sync.Mutex
			got []models.PayrollStatus
		)
		record := SubscriberFunc(func(_ context.Context, c payroll.StatusChange) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, c.To)
			return nil
		})
		e.emitter.Subscribe("a", record)
		e.emitter.Subscribe("b", record)

		_, err := e.engine.Approve(context.Background(), e.director, e.payroll.ID)
		require.NoError(t, err)
		e.emitter.Wait()

		assert.Equal(t, []models.PayrollStatus{models.PayrollStatusApproved, models.PayrollStatusApproved}, got)
	})

	t.Run("failing subscriber does not undo approval", func(t *testing.T) {
		e := setup(t)
		e.emitter.Subscribe("broken", SubscriberFunc(func(context.Context, payroll.StatusChange) error {
			return errors.New("smtp down")
		}))

		approved, err := e.engine.Approve(context.Background(), e.director, e.payroll.ID)
		require.NoError(t, err)
		e.emitter.Wait()
		assert.Equal(t, models.PayrollStatusApproved, approved.Status)

		got, err := e.engine.Get(context.Background(), e.director, e.payroll.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusApproved, got.Status)
	})

	t.Run("slow subscriber is cut off by timeout", func(t *testing.T) {
		e := setup(t, WithDeliveryTimeout(20*time.Millisecond))
		done := make(chan error, 1)
		e.emitter.Subscribe("slow", SubscriberFunc(func(ctx context.Context, _ payroll.StatusChange) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		}))

		_, err := e.engine.Approve(context.Background(), e.director, e.payroll.ID)
		require.NoError(t, err)
		e.emitter.Wait()
		assert.ErrorIs(t, <-done, context.DeadlineExceeded)
	})
}

func TestInbox(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.engine.Approve(ctx, e.director, e.payroll.ID)
	require.NoError(t, err)
	_, err = e.engine.MarkPaid(ctx, e.director, e.payroll.ID)
	require.NoError(t, err)

	items, err := e.emitter.List(ctx, e.employee, true)
	require.NoError(t, err)
	require.Len(t, items, 2)

	t.Run("mark one read", func(t *testing.T) {
		require.NoError(t, e.emitter.MarkRead(ctx, e.employee, items[0].ID))
		unread, err := e.emitter.List(ctx, e.employee, true)
		require.NoError(t, err)
		assert.Len(t, unread, 1)
	})

	t.Run("someone else's notification", func(t *testing.T) {
		err := e.emitter.MarkRead(ctx, e.director, items[1].ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mark all read", func(t *testing.T) {
		n, err := e.emitter.MarkAllRead(ctx, e.employee)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		unread, err := e.emitter.List(ctx, e.employee, true)
		require.NoError(t, err)
		assert.Empty(t, unread)
	})

	t.Run("system principal has no inbox", func(t *testing.T) {
		_, err := e.emitter.List(ctx, principal.System(), false)
		require.ErrorIs(t, err, ErrForbidden)
	})
}
