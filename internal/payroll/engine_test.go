package payroll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/audit"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/nikhilbhutani/payrollflow/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memory.Store
	engine   *Engine
	company  *models.Company
	employee *models.Employee
	hr       principal.Principal
	director principal.Principal
	events   *recordingListener
}

type recordingListener struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (l *recordingListener) StatusChanged(_ context.Context, c StatusChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *recordingListener) all() []StatusChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StatusChange(nil), l.changes...)
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
	ips     []string
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, e.Action)
	a.ips = append(a.ips, e.IPAddress)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T, balance, baseSalary string, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	company := &models.Company{Name: "Acme", BankBalance: dec(balance)}
	require.NoError(t, st.Companies().Create(ctx, company))

	emp := &models.Employee{
		CompanyID:  company.ID,
		FullName:   "Jane Doe",
		Email:      "jane@acme.test",
		Role:       "Engineer",
		BaseSalary: dec(baseSalary),
		IsActive:   true,
	}
	require.NoError(t, st.Employees().Create(ctx, emp))

	events := &recordingListener{}
	opts = append([]Option{WithStatusListener(events)}, opts...)

	cid := company.ID
	return &fixture{
		store:    st,
		engine:   NewEngine(st, DefaultConfig(), opts...),
		company:  company,
		employee: emp,
		hr:       principal.Principal{UserID: uuid.New(), CompanyID: &cid, Role: principal.RoleHR},
		director: principal.Principal{UserID: uuid.New(), CompanyID: &cid, Role: principal.RoleDirector},
		events:   events,
	}
}

func (f *fixture) addEmployee(t *testing.T, salary string) *models.Employee {
	t.Helper()
	emp := &models.Employee{
		CompanyID:  f.company.ID,
		FullName:   "Employee " + salary,
		BaseSalary: dec(salary),
		IsActive:   true,
	}
	require.NoError(t, f.store.Employees().Create(context.Background(), emp))
	return emp
}

func (f *fixture) create(t *testing.T, emp *models.Employee, bonus, deductions string, period models.Period) *models.Payroll {
	t.Helper()
	pr, err := f.engine.Create(context.Background(), f.hr, CreateInput{
		EmployeeID:     emp.ID,
		AttendanceDays: 22,
		Bonus:          dec(bonus),
		Deductions:     dec(deductions),
		Period:         period,
	})
	require.NoError(t, err)
	return pr
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	c, err := f.store.Companies().Get(context.Background(), f.company.ID)
	require.NoError(t, err)
	return c.BankBalance
}

var march2024 = models.Period{Month: 3, Year: 2024}

func TestCreate(t *testing.T) {
	t.Run("computes final salary", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "500", "200", march2024)

		assert.Equal(t, models.PayrollStatusPending, pr.Status)
		assert.True(t, pr.FinalSalary.Equal(dec("3300")), "got %s", pr.FinalSalary)
		assert.True(t, pr.BaseSalary.Equal(dec("3000")))
		assert.Equal(t, f.company.ID, pr.CompanyID)
		assert.Equal(t, f.hr.UserID, pr.CreatedBy)
	})

	t.Run("duplicate period", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		f.create(t, f.employee, "0", "0", march2024)

		_, err := f.engine.Create(context.Background(), f.hr, CreateInput{
			EmployeeID: f.employee.ID,
			Period:     march2024,
		})
		require.ErrorIs(t, err, ErrDuplicatePeriod)

		payrolls, err := f.engine.List(context.Background(), f.hr, store.PayrollFilter{EmployeeID: &f.employee.ID})
		require.NoError(t, err)
		assert.Len(t, payrolls, 1)
	})

	t.Run("same employee different period", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		f.create(t, f.employee, "0", "0", march2024)
		f.create(t, f.employee, "0", "0", models.Period{Month: 4, Year: 2024})
	})

	tests := []struct {
		name    string
		input   func(f *fixture) CreateInput
		wantErr error
	}{
		{
			name: "month 13",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: models.Period{Month: 13, Year: 2024}}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "month 0",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: models.Period{Month: 0, Year: 2024}}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "year before min",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: models.Period{Month: 1, Year: 1999}}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "year after 9999",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: models.Period{Month: 1, Year: 10000}}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "three decimal places",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: march2024, Bonus: dec("1.005")}
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "negative final salary",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: march2024, Deductions: dec("3000.01")}
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "attendance over 31",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: f.employee.ID, Period: march2024, AttendanceDays: 32}
			},
			wantErr: ErrInvalidAttendance,
		},
		{
			name: "unknown employee",
			input: func(f *fixture) CreateInput {
				return CreateInput{EmployeeID: uuid.New(), Period: march2024}
			},
			wantErr: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "10000", "3000")
			_, err := f.engine.Create(context.Background(), f.hr, tt.input(f))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("inactive employee", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		f.employee.IsActive = false
		require.NoError(t, f.store.Employees().Update(context.Background(), f.employee))

		_, err := f.engine.Create(context.Background(), f.hr, CreateInput{EmployeeID: f.employee.ID, Period: march2024})
		require.ErrorIs(t, err, ErrInactiveEmployee)
	})

	t.Run("director cannot create", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		_, err := f.engine.Create(context.Background(), f.director, CreateInput{EmployeeID: f.employee.ID, Period: march2024})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("other company is not found", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		other := uuid.New()
		hr := principal.Principal{UserID: uuid.New(), CompanyID: &other, Role: principal.RoleHR}
		_, err := f.engine.Create(context.Background(), hr, CreateInput{EmployeeID: f.employee.ID, Period: march2024})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestApprove(t *testing.T) {
	t.Run("exact balance drains to zero", func(t *testing.T) {
		f := newFixture(t, "5000.00", "5000.00")
		pr := f.create(t, f.employee, "0", "0", march2024)

		approved, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusApproved, approved.Status)
		require.NotNil(t, approved.ApprovedBy)
		assert.Equal(t, f.director.UserID, *approved.ApprovedBy)
		assert.NotNil(t, approved.ApprovedAt)
		assert.True(t, f.balance(t).IsZero(), "balance %s", f.balance(t))
	})

	t.Run("one cent short", func(t *testing.T) {
		f := newFixture(t, "4999.99", "5000.00")
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.ErrorIs(t, err, ErrInsufficientFunds)

		got, err := f.engine.Get(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusPending, got.Status)
		assert.Nil(t, got.ApprovedBy)
		assert.True(t, f.balance(t).Equal(dec("4999.99")))
		assert.Empty(t, f.events.all())
	})

	t.Run("emits status change with balance", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)

		changes := f.events.all()
		require.Len(t, changes, 1)
		assert.Equal(t, models.PayrollStatusPending, changes[0].From)
		assert.Equal(t, models.PayrollStatusApproved, changes[0].To)
		require.NotNil(t, changes[0].CompanyBalance)
		assert.True(t, changes[0].CompanyBalance.Equal(dec("7000")))
	})

	t.Run("approving twice", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		_, err = f.engine.Approve(context.Background(), f.director, pr.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.True(t, f.balance(t).Equal(dec("7000")))
	})

	t.Run("hr cannot approve", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)
		_, err := f.engine.Approve(context.Background(), f.hr, pr.ID)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("director of another company", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)
		other := uuid.New()
		d := principal.Principal{UserID: uuid.New(), CompanyID: &other, Role: principal.RoleDirector}

		_, err := f.engine.Approve(context.Background(), d, pr.ID)
		require.ErrorIs(t, err, ErrNotFound)
		assert.True(t, f.balance(t).Equal(dec("10000")))
	})

	t.Run("unknown payroll", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		_, err := f.engine.Approve(context.Background(), f.director, uuid.New())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("audited", func(t *testing.T) {
		auditor := &recordingAuditor{}
		f := newFixture(t, "10000", "3000", WithAuditor(auditor))
		pr := f.create(t, f.employee, "0", "0", march2024)
		ctx := audit.WithClientIP(context.Background(), "198.51.100.4")
		_, err := f.engine.Approve(ctx, f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"payroll.created", "payroll.approved"}, auditor.actions)
		assert.Equal(t, []string{"", "198.51.100.4"}, auditor.ips)
	})
}

func TestApproveConcurrent(t *testing.T) {
	t.Run("same payroll approved once", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.engine.Approve(context.Background(), f.director, pr.ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.Equal(t, 1, succeeded)
		assert.True(t, f.balance(t).Equal(dec("7000")))
	})

	t.Run("balance covers only one of two", func(t *testing.T) {
		f := newFixture(t, "5000", "4000")
		second := f.addEmployee(t, "4000")
		p1 := f.create(t, f.employee, "0", "0", march2024)
		p2 := f.create(t, second, "0", "0", march2024)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []uuid.UUID{p1.ID, p2.ID} {
			wg.Add(1)
			go func(i int, id uuid.UUID) {
				defer wg.Done()
				_, errs[i] = f.engine.Approve(context.Background(), f.director, id)
			}(i, id)
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
				require.ErrorIs(t, err, ErrInsufficientFunds)
			}
		}
		assert.Equal(t, 1, failed)
		assert.True(t, f.balance(t).Equal(dec("1000")))
		assert.False(t, f.balance(t).IsNegative())
	})
}

// conflictStore fails the first n balance writes with store.ErrConflict.
type conflictStore struct {
	*memory.Store
	remaining atomic.Int32
	attempts  atomic.Int32
}

func (s *conflictStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&conflictTx{Tx: tx, s: s})
	})
}

type conflictTx struct {
	store.Tx
	s *conflictStore
}

func (t *conflictTx) UpdateCompanyBalance(ctx context.Context, c *models.Company) error {
	t.s.attempts.Add(1)
	if t.s.remaining.Add(-1) >= 0 {
		return store.ErrConflict
	}
	return t.Tx.UpdateCompanyBalance(ctx, c)
}

func TestApproveRetriesConflicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond

	setup := func(t *testing.T, conflicts int32) (*conflictStore, *Engine, *fixture) {
		f := newFixture(t, "10000", "3000")
		cs := &conflictStore{Store: f.store}
		cs.remaining.Store(conflicts)
		return cs, NewEngine(cs, cfg), f
	}

	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		cs, engine, f := setup(t, 2)
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(3), cs.attempts.Load())
		assert.True(t, f.balance(t).Equal(dec("7000")))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		cs, engine, f := setup(t, 100)
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := engine.Approve(context.Background(), f.director, pr.ID)
		require.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.Equal(t, int32(cfg.MaxApproveRetries+1), cs.attempts.Load())

		got, err := f.store.Payrolls().Get(context.Background(), pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusPending, got.Status)
		assert.True(t, f.balance(t).Equal(dec("10000")))
	})
}

func TestMarkPaid(t *testing.T) {
	t.Run("pending cannot be paid", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)

		_, err := f.engine.MarkPaid(context.Background(), f.director, pr.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err := f.engine.Get(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusPending, got.Status)
	})

	t.Run("approved becomes paid", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)
		_, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)

		paid, err := f.engine.MarkPaid(context.Background(), f.director, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayrollStatusPaid, paid.Status)
		assert.NotNil(t, paid.PaidAt)
		assert.NotNil(t, paid.PaymentDate)
		// paying does not touch the balance again
		assert.True(t, f.balance(t).Equal(dec("7000")))

		changes := f.events.all()
		require.Len(t, changes, 2)
		assert.Equal(t, models.PayrollStatusPaid, changes[1].To)
		assert.Nil(t, changes[1].CompanyBalance)

		_, err = f.engine.MarkPaid(context.Background(), f.director, pr.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRecompute(t *testing.T) {
	t.Run("pending is recomputed", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)

		days := 20
		got, err := f.engine.Recompute(context.Background(), f.hr, pr.ID, RecomputeInput{
			Bonus:          dec("250.50"),
			Deductions:     dec("100"),
			AttendanceDays: &days,
		})
		require.NoError(t, err)
		assert.True(t, got.FinalSalary.Equal(dec("3150.50")), "got %s", got.FinalSalary)
		assert.Equal(t, 20, got.AttendanceDays)
	})

	t.Run("approved is frozen", func(t *testing.T) {
		f := newFixture(t, "10000", "3000")
		pr := f.create(t, f.employee, "0", "0", march2024)
		_, err := f.engine.Approve(context.Background(), f.director, pr.ID)
		require.NoError(t, err)

		_, err = f.engine.Recompute(context.Background(), f.hr, pr.ID, RecomputeInput{Bonus: dec("1")})
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err := f.engine.Get(context.Background(), f.hr, pr.ID)
		require.NoError(t, err)
		assert.True(t, got.FinalSalary.Equal(dec("3000")))
	})
}

func TestRebasePending(t *testing.T) {
	f := newFixture(t, "10000", "3000")
	approved := f.create(t, f.employee, "100", "0", march2024)
	pending := f.create(t, f.employee, "100", "0", models.Period{Month: 4, Year: 2024})
	_, err := f.engine.Approve(context.Background(), f.director, approved.ID)
	require.NoError(t, err)

	f.employee.BaseSalary = dec("3500")
	require.NoError(t, f.store.Employees().Update(context.Background(), f.employee))

	n, err := f.engine.RebasePending(context.Background(), f.employee.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.engine.Get(context.Background(), f.hr, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.FinalSalary.Equal(dec("3600")))

	frozen, err := f.engine.Get(context.Background(), f.hr, approved.ID)
	require.NoError(t, err)
	assert.True(t, frozen.FinalSalary.Equal(dec("3100")))
}

func TestList(t *testing.T) {
	f := newFixture(t, "10000", "3000")
	f.create(t, f.employee, "0", "0", march2024)

	t.Run("scoped to caller company", func(t *testing.T) {
		other := uuid.New()
		hr := principal.Principal{UserID: uuid.New(), CompanyID: &other, Role: principal.RoleHR}
		got, err := f.engine.List(context.Background(), hr, store.PayrollFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.engine.List(context.Background(), f.hr, store.PayrollFilter{Status: "Rejected"})
		require.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("employee role cannot read", func(t *testing.T) {
		p := principal.Principal{UserID: uuid.New(), CompanyID: &f.company.ID, Role: principal.RoleEmployee}
		_, err := f.engine.List(context.Background(), p, store.PayrollFilter{})
		require.True(t, errors.Is(err, ErrForbidden))
	})
}

type recordingChanges struct {
	mu        sync.Mutex
	companies []uuid.UUID
}

func (c *recordingChanges) PayrollsChanged(_ context.Context, companyID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.companies = append(c.companies, companyID)
}

func (c *recordingChanges) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.companies)
}

func TestChangeListener(t *testing.T) {
	changes := &recordingChanges{}
	f := newFixture(t, "10000", "3000", WithChangeListener(changes))
	ctx := context.Background()

	pr := f.create(t, f.employee, "0", "0", march2024)
	require.Equal(t, 1, changes.count(), "create")

	_, err := f.engine.Recompute(ctx, f.hr, pr.ID, RecomputeInput{Bonus: dec("10")})
	require.NoError(t, err)
	require.Equal(t, 2, changes.count(), "recompute")

	f.employee.BaseSalary = dec("3100")
	require.NoError(t, f.store.Employees().Update(ctx, f.employee))
	_, err = f.engine.RebasePending(ctx, f.employee.ID)
	require.NoError(t, err)
	require.Equal(t, 3, changes.count(), "rebase")

	_, err = f.engine.Approve(ctx, f.director, pr.ID)
	require.NoError(t, err)
	require.Equal(t, 4, changes.count(), "approve")

	_, err = f.engine.MarkPaid(ctx, f.director, pr.ID)
	require.NoError(t, err)
	require.Equal(t, 5, changes.count(), "mark paid")

	f.addEmployee(t, "2000")
	_, err = f.engine.GenerateMonthly(ctx, f.hr, GenerateInput{Period: models.Period{Month: 4, Year: 2024}})
	require.NoError(t, err)
	require.Equal(t, 7, changes.count(), "generate creates two payrolls")

	t.Run("failed writes are not reported", func(t *testing.T) {
		before := changes.count()
		_, err := f.engine.Approve(ctx, f.director, pr.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.engine.Create(ctx, f.hr, CreateInput{EmployeeID: f.employee.ID, AttendanceDays: 22, Period: march2024})
		require.ErrorIs(t, err, ErrDuplicatePeriod)
		assert.Equal(t, before, changes.count())
	})

	for _, id := range changes.companies {
		assert.Equal(t, f.company.ID, id)
	}
}
