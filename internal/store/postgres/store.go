// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Companies() store.CompanyStore         { return companyStore{s.pool} }
func (s *Store) Employees() store.EmployeeStore         { return employeeStore{s.pool} }
func (s *Store) Payrolls() store.PayrollStore           { return payrollStore{s.pool} }
func (s *Store) Notifications() store.NotificationStore { return notificationStore{s.pool} }
func (s *Store) Users() store.UserStore                 { return userStore{s.pool} }

// InTx runs fn in a READ COMMITTED transaction. Row locks taken through tx
// serialise competing writers; a lost race surfaces as store.ErrConflict.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPostgresError(err))
	}
	return nil
}

type pgTx struct {
	q querier
}

const payrollColumns = `id, employee_id, company_id, attendance_days, base_salary, bonus, deductions,
	final_salary, month, year, status, payment_date, created_by, approved_by,
	created_at, updated_at, approved_at, paid_at`

func scanPayroll(row pgx.Row) (*models.Payroll, error) {
	var p models.Payroll
	err := row.Scan(&p.ID, &p.EmployeeID, &p.CompanyID, &p.AttendanceDays, &p.BaseSalary, &p.Bonus,
		&p.Deductions, &p.FinalSalary, &p.Month, &p.Year, &p.Status, &p.PaymentDate, &p.CreatedBy,
		&p.ApprovedBy, &p.CreatedAt, &p.UpdatedAt, &p.ApprovedAt, &p.PaidAt)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &p, nil
}

func (t *pgTx) PayrollForUpdate(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	return scanPayroll(t.q.QueryRow(ctx,
		`SELECT `+payrollColumns+` FROM payrolls WHERE id = $1 FOR UPDATE`, id))
}

const companyColumns = `id, name, bank_balance, version, created_by, created_at, updated_at`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	var createdBy *uuid.UUID
	if err := row.Scan(&c.ID, &c.Name, &c.BankBalance, &c.Version, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapPostgresError(err)
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	return &c, nil
}

func (t *pgTx) CompanyForUpdate(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return scanCompany(t.q.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) Employee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return getEmployee(ctx, t.q, id)
}

func (t *pgTx) UpdateCompanyBalance(ctx context.Context, c *models.Company) error {
	err := t.q.QueryRow(ctx,
		`UPDATE companies SET bank_balance = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND version = $3
		 RETURNING version, updated_at`,
		c.BankBalance, c.ID, c.Version,
	).Scan(&c.Version, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return store.ErrConflict
	}
	return mapPostgresError(err)
}

func (t *pgTx) UpdatePayroll(ctx context.Context, p *models.Payroll) error {
	err := t.q.QueryRow(ctx,
		`UPDATE payrolls SET attendance_days = $2, base_salary = $3, bonus = $4, deductions = $5,
			final_salary = $6, status = $7, payment_date = $8, approved_by = $9,
			approved_at = $10, paid_at = $11, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.AttendanceDays, p.BaseSalary, p.Bonus, p.Deductions, p.FinalSalary, p.Status,
		p.PaymentDate, p.ApprovedBy, p.ApprovedAt, p.PaidAt,
	).Scan(&p.UpdatedAt)
	return mapPostgresError(err)
}

type companyStore struct{ q querier }

func (cs companyStore) Create(ctx context.Context, c *models.Company) error {
	var createdBy *uuid.UUID
	if c.CreatedBy != uuid.Nil {
		createdBy = &c.CreatedBy
	}
	err := cs.q.QueryRow(ctx,
		`INSERT INTO companies (name, bank_balance, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id, version, created_at, updated_at`,
		c.Name, c.BankBalance, createdBy,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	return mapPostgresError(err)
}

func (cs companyStore) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return scanCompany(cs.q.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

func (cs companyStore) GetByName(ctx context.Context, name string) (*models.Company, error) {
	return scanCompany(cs.q.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1)`, name))
}

func (cs companyStore) List(ctx context.Context, scope *uuid.UUID) ([]models.Company, error) {
	rows, err := cs.q.Query(ctx,
		`SELECT `+companyColumns+` FROM companies
		 WHERE ($1::uuid IS NULL OR id = $1)
		 ORDER BY name`, scope)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, mapPostgresError(rows.Err())
}

type employeeStore struct{ q querier }

const employeeColumns = `id, company_id, user_id, full_name, email, phone, role, base_salary,
	bank_name, bank_account, is_active, created_at, updated_at`

func scanEmployee(row pgx.Row) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.FullName, &e.Email, &e.Phone, &e.Role,
		&e.BaseSalary, &e.BankName, &e.BankAccount, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &e, nil
}

func getEmployee(ctx context.Context, q querier, id uuid.UUID) (*models.Employee, error) {
	return scanEmployee(q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
}

func (es employeeStore) Create(ctx context.Context, e *models.Employee) error {
	err := es.q.QueryRow(ctx,
		`INSERT INTO employees (company_id, user_id, full_name, email, phone, role, base_salary,
			bank_name, bank_account, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		e.CompanyID, e.UserID, e.FullName, e.Email, e.Phone, e.Role, e.BaseSalary,
		e.BankName, e.BankAccount, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return mapPostgresError(err)
}

func (es employeeStore) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return getEmployee(ctx, es.q, id)
}

func (es employeeStore) Update(ctx context.Context, e *models.Employee) error {
	err := es.q.QueryRow(ctx,
		`UPDATE employees SET user_id = $2, full_name = $3, email = $4, phone = $5, role = $6,
			base_salary = $7, bank_name = $8, bank_account = $9, is_active = $10, updated_at = now()
		 WHERE id = $1
		 RETURNING company_id, created_at, updated_at`,
		e.ID, e.UserID, e.FullName, e.Email, e.Phone, e.Role, e.BaseSalary,
		e.BankName, e.BankAccount, e.IsActive,
	).Scan(&e.CompanyID, &e.CreatedAt, &e.UpdatedAt)
	return mapPostgresError(err)
}

func (es employeeStore) List(ctx context.Context, f store.EmployeeFilter) ([]models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1=1`
	var args []any
	argIdx := 1

	if f.CompanyID != nil {
		query += fmt.Sprintf(" AND company_id = $%d", argIdx)
		args = append(args, *f.CompanyID)
		argIdx++
	}
	if f.Active != nil {
		query += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *f.Active)
		argIdx++
	}
	if f.Role != "" {
		query += fmt.Sprintf(" AND role ILIKE $%d", argIdx)
		args = append(args, "%"+escapeLike(f.Role)+"%")
		argIdx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(" AND (full_name ILIKE $%[1]d OR email ILIKE $%[1]d OR role ILIKE $%[1]d OR phone ILIKE $%[1]d)", argIdx)
		args = append(args, "%"+escapeLike(f.Search)+"%")
		argIdx++
	}
	query += " ORDER BY created_at DESC, id"
	query, args = withPage(query, args, argIdx, f.Limit, f.Offset)

	rows, err := es.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	return employees, mapPostgresError(rows.Err())
}

type payrollStore struct{ q querier }

func (ps payrollStore) Create(ctx context.Context, p *models.Payroll) error {
	err := ps.q.QueryRow(ctx,
		`INSERT INTO payrolls (employee_id, company_id, attendance_days, base_salary, bonus, deductions,
			final_salary, month, year, status, payment_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		p.EmployeeID, p.CompanyID, p.AttendanceDays, p.BaseSalary, p.Bonus, p.Deductions,
		p.FinalSalary, p.Month, p.Year, p.Status, p.PaymentDate, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapPostgresError(err)
}

func (ps payrollStore) Get(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	return scanPayroll(ps.q.QueryRow(ctx, `SELECT `+payrollColumns+` FROM payrolls WHERE id = $1`, id))
}

func (ps payrollStore) List(ctx context.Context, f store.PayrollFilter) ([]models.Payroll, error) {
	query := `SELECT ` + payrollColumns + ` FROM payrolls WHERE 1=1`
	var args []any
	argIdx := 1

	if f.CompanyID != nil {
		query += fmt.Sprintf(" AND company_id = $%d", argIdx)
		args = append(args, *f.CompanyID)
		argIdx++
	}
	if f.EmployeeID != nil {
		query += fmt.Sprintf(" AND employee_id = $%d", argIdx)
		args = append(args, *f.EmployeeID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Period != nil {
		query += fmt.Sprintf(" AND month = $%d AND year = $%d", argIdx, argIdx+1)
		args = append(args, f.Period.Month, f.Period.Year)
		argIdx += 2
	}
	query += " ORDER BY created_at DESC, id"
	query, args = withPage(query, args, argIdx, f.Limit, f.Offset)

	rows, err := ps.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var payrolls []models.Payroll
	for rows.Next() {
		p, err := scanPayroll(rows)
		if err != nil {
			return nil, err
		}
		payrolls = append(payrolls, *p)
	}
	return payrolls, mapPostgresError(rows.Err())
}

func (ps payrollStore) Summary(ctx context.Context, companyID *uuid.UUID, period models.Period) (*models.PayrollSummary, error) {
	sum := &models.PayrollSummary{Period: period, CompanyID: companyID}
	err := ps.q.QueryRow(ctx,
		`SELECT count(*),
			count(*) FILTER (WHERE status = 'Pending'),
			count(*) FILTER (WHERE status = 'Approved'),
			count(*) FILTER (WHERE status = 'Paid'),
			COALESCE(sum(final_salary), 0),
			COALESCE(sum(final_salary) FILTER (WHERE status = 'Pending'), 0)
		 FROM payrolls
		 WHERE month = $1 AND year = $2 AND ($3::uuid IS NULL OR company_id = $3)`,
		period.Month, period.Year, companyID,
	).Scan(&sum.TotalPayrolls, &sum.PendingCount, &sum.ApprovedCount, &sum.PaidCount,
		&sum.TotalAmount, &sum.PendingAmount)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return sum, nil
}

func (ps payrollStore) PendingAmount(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := ps.q.QueryRow(ctx,
		`SELECT COALESCE(sum(final_salary), 0) FROM payrolls WHERE company_id = $1 AND status = 'Pending'`,
		companyID,
	).Scan(&total)
	return total, mapPostgresError(err)
}

type notificationStore struct{ q querier }

func (ns notificationStore) Create(ctx context.Context, n *models.Notification) error {
	err := ns.q.QueryRow(ctx,
		`INSERT INTO notifications (employee_id, user_id, payroll_id, event, message, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		n.EmployeeID, n.UserID, n.PayrollID, n.Event, n.Message, n.IsRead,
	).Scan(&n.ID, &n.CreatedAt)
	return mapPostgresError(err)
}

func (ns notificationStore) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	rows, err := ns.q.Query(ctx,
		`SELECT id, employee_id, user_id, payroll_id, event, message, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1 AND (NOT $2 OR is_read = false)
		 ORDER BY created_at DESC`,
		userID, unreadOnly,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.EmployeeID, &n.UserID, &n.PayrollID, &n.Event, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, mapPostgresError(err)
		}
		out = append(out, n)
	}
	return out, mapPostgresError(rows.Err())
}

func (ns notificationStore) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := ns.q.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (ns notificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := ns.q.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`, userID)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return int(tag.RowsAffected()), nil
}

type userStore struct{ q querier }

func (us userStore) Create(ctx context.Context, u *models.User) error {
	err := us.q.QueryRow(ctx,
		`INSERT INTO users (company_id, role, email, full_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.CompanyID, u.Role, u.Email, u.FullName,
	).Scan(&u.ID, &u.CreatedAt)
	return mapPostgresError(err)
}

func (us userStore) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := us.q.QueryRow(ctx,
		`SELECT id, company_id, role, email, full_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.CompanyID, &u.Role, &u.Email, &u.FullName, &u.CreatedAt)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

func (us userStore) ListByCompanyRole(ctx context.Context, companyID uuid.UUID, role principal.Role) ([]models.User, error) {
	rows, err := us.q.Query(ctx,
		`SELECT id, company_id, role, email, full_name, created_at
		 FROM users WHERE company_id = $1 AND role = $2`,
		companyID, role,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Role, &u.Email, &u.FullName, &u.CreatedAt); err != nil {
			return nil, mapPostgresError(err)
		}
		users = append(users, u)
	}
	return users, mapPostgresError(rows.Err())
}

func withPage(query string, args []any, argIdx, limit, offset int) (string, []any) {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
		argIdx++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, offset)
	}
	return query, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
