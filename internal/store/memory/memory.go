// Package memory is an in-process store.Store. Data is lost on restart; it
// backs tests and local runs without Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/shopspring/decimal"
)

type periodKey struct {
	employeeID uuid.UUID
	month      int
	year       int
}

// Store implements store.Store. Transactions are serialised by a single
// mutex, which gives the same guarantees as row locks on the real database.
type Store struct {
	mu sync.RWMutex

	companies     map[uuid.UUID]*models.Company
	employees     map[uuid.UUID]*models.Employee
	payrolls      map[uuid.UUID]*models.Payroll
	periods       map[periodKey]uuid.UUID
	notifications map[uuid.UUID]*models.Notification
	users         map[uuid.UUID]*models.User
}

func New() *Store {
	return &Store{
		companies:     make(map[uuid.UUID]*models.Company),
		employees:     make(map[uuid.UUID]*models.Employee),
		payrolls:      make(map[uuid.UUID]*models.Payroll),
		periods:       make(map[periodKey]uuid.UUID),
		notifications: make(map[uuid.UUID]*models.Notification),
		users:         make(map[uuid.UUID]*models.User),
	}
}

func (s *Store) Companies() store.CompanyStore         { return companyStore{s} }
func (s *Store) Employees() store.EmployeeStore         { return employeeStore{s} }
func (s *Store) Payrolls() store.PayrollStore           { return payrollStore{s} }
func (s *Store) Notifications() store.NotificationStore { return notificationStore{s} }
func (s *Store) Users() store.UserStore                 { return userStore{s} }

// InTx holds the write lock for the whole of fn. fn must only use tx;
// calling back into s would deadlock.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		companies: make(map[uuid.UUID]*models.Company),
		payrolls:  make(map[uuid.UUID]*models.Payroll),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, c := range tx.companies {
		s.companies[id] = c
	}
	for id, p := range tx.payrolls {
		s.payrolls[id] = p
	}
	return nil
}

type memTx struct {
	s *Store

	// staged writes, applied on commit
	companies map[uuid.UUID]*models.Company
	payrolls  map[uuid.UUID]*models.Payroll
}

func (t *memTx) PayrollForUpdate(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	if p, ok := t.payrolls[id]; ok {
		return clonePayroll(p), nil
	}
	p, ok := t.s.payrolls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayroll(p), nil
}

func (t *memTx) CompanyForUpdate(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	if c, ok := t.companies[id]; ok {
		clone := *c
		return &clone, nil
	}
	c, ok := t.s.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (t *memTx) Employee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	e, ok := t.s.employees[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (t *memTx) UpdateCompanyBalance(ctx context.Context, c *models.Company) error {
	current, err := t.CompanyForUpdate(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.Version != c.Version {
		return store.ErrConflict
	}

	c.Version++
	c.UpdatedAt = time.Now()
	current.BankBalance = c.BankBalance
	current.Version = c.Version
	current.UpdatedAt = c.UpdatedAt
	t.companies[c.ID] = current
	return nil
}

func (t *memTx) UpdatePayroll(ctx context.Context, p *models.Payroll) error {
	if _, err := t.PayrollForUpdate(ctx, p.ID); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	t.payrolls[p.ID] = clonePayroll(p)
	return nil
}

type companyStore struct{ s *Store }

func (cs companyStore) Create(ctx context.Context, c *models.Company) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	for _, existing := range cs.s.companies {
		if strings.EqualFold(existing.Name, c.Name) {
			return store.ErrDuplicateName
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	clone := *c
	cs.s.companies[c.ID] = &clone
	return nil
}

func (cs companyStore) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	c, ok := cs.s.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (cs companyStore) GetByName(ctx context.Context, name string) (*models.Company, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	for _, c := range cs.s.companies {
		if strings.EqualFold(c.Name, name) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (cs companyStore) List(ctx context.Context, scope *uuid.UUID) ([]models.Company, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var result []models.Company
	for _, c := range cs.s.companies {
		if scope != nil && c.ID != *scope {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type employeeStore struct{ s *Store }

func (es employeeStore) Create(ctx context.Context, e *models.Employee) error {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()

	if _, ok := es.s.companies[e.CompanyID]; !ok {
		return store.ErrNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	clone := *e
	es.s.employees[e.ID] = &clone
	return nil
}

func (es employeeStore) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	es.s.mu.RLock()
	defer es.s.mu.RUnlock()

	e, ok := es.s.employees[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (es employeeStore) Update(ctx context.Context, e *models.Employee) error {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()

	existing, ok := es.s.employees[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	// company ownership is fixed at creation
	e.CompanyID = existing.CompanyID
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now()
	clone := *e
	es.s.employees[e.ID] = &clone
	return nil
}

func (es employeeStore) List(ctx context.Context, f store.EmployeeFilter) ([]models.Employee, error) {
	es.s.mu.RLock()
	defer es.s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var result []models.Employee
	for _, e := range es.s.employees {
		if f.CompanyID != nil && e.CompanyID != *f.CompanyID {
			continue
		}
		if f.Active != nil && e.IsActive != *f.Active {
			continue
		}
		if f.Role != "" && !strings.Contains(strings.ToLower(e.Role), strings.ToLower(f.Role)) {
			continue
		}
		if search != "" && !matchesSearch(e, search) {
			continue
		}
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func matchesSearch(e *models.Employee, search string) bool {
	for _, field := range []string{e.FullName, e.Email, e.Role, e.Phone} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

type payrollStore struct{ s *Store }

func (ps payrollStore) Create(ctx context.Context, p *models.Payroll) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	if _, ok := ps.s.employees[p.EmployeeID]; !ok {
		return store.ErrNotFound
	}
	key := periodKey{employeeID: p.EmployeeID, month: p.Month, year: p.Year}
	if _, exists := ps.s.periods[key]; exists {
		return store.ErrDuplicatePeriod
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	ps.s.payrolls[p.ID] = clonePayroll(p)
	ps.s.periods[key] = p.ID
	return nil
}

func (ps payrollStore) Get(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	p, ok := ps.s.payrolls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayroll(p), nil
}

func (ps payrollStore) List(ctx context.Context, f store.PayrollFilter) ([]models.Payroll, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	var result []models.Payroll
	for _, p := range ps.s.payrolls {
		if !matchesPayroll(p, f) {
			continue
		}
		result = append(result, *clonePayroll(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func matchesPayroll(p *models.Payroll, f store.PayrollFilter) bool {
	if f.CompanyID != nil && p.CompanyID != *f.CompanyID {
		return false
	}
	if f.EmployeeID != nil && p.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Period != nil && p.Period != *f.Period {
		return false
	}
	return true
}

func (ps payrollStore) Summary(ctx context.Context, companyID *uuid.UUID, period models.Period) (*models.PayrollSummary, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	sum := &models.PayrollSummary{
		Period:        period,
		CompanyID:     companyID,
		TotalAmount:   decimal.Zero,
		PendingAmount: decimal.Zero,
	}
	f := store.PayrollFilter{CompanyID: companyID, Period: &period}
	for _, p := range ps.s.payrolls {
		if !matchesPayroll(p, f) {
			continue
		}
		sum.TotalPayrolls++
		sum.TotalAmount = sum.TotalAmount.Add(p.FinalSalary)
		switch p.Status {
		case models.PayrollStatusPending:
			sum.PendingCount++
			sum.PendingAmount = sum.PendingAmount.Add(p.FinalSalary)
		case models.PayrollStatusApproved:
			sum.ApprovedCount++
		case models.PayrollStatusPaid:
			sum.PaidCount++
		}
	}
	return sum, nil
}

func (ps payrollStore) PendingAmount(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	total := decimal.Zero
	for _, p := range ps.s.payrolls {
		if p.CompanyID == companyID && p.Status == models.PayrollStatusPending {
			total = total.Add(p.FinalSalary)
		}
	}
	return total, nil
}

type notificationStore struct{ s *Store }

func (ns notificationStore) Create(ctx context.Context, n *models.Notification) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	clone := *n
	ns.s.notifications[n.ID] = &clone
	return nil
}

func (ns notificationStore) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	ns.s.mu.RLock()
	defer ns.s.mu.RUnlock()

	var result []models.Notification
	for _, n := range ns.s.notifications {
		if n.UserID == nil || *n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (ns notificationStore) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	n, ok := ns.s.notifications[id]
	if !ok || n.UserID == nil || *n.UserID != userID {
		return store.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (ns notificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	updated := 0
	for _, n := range ns.s.notifications {
		if n.UserID != nil && *n.UserID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

type userStore struct{ s *Store }

func (us userStore) Create(ctx context.Context, u *models.User) error {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	clone := *u
	us.s.users[u.ID] = &clone
	return nil
}

func (us userStore) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	us.s.mu.RLock()
	defer us.s.mu.RUnlock()

	u, ok := us.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (us userStore) ListByCompanyRole(ctx context.Context, companyID uuid.UUID, role principal.Role) ([]models.User, error) {
	us.s.mu.RLock()
	defer us.s.mu.RUnlock()

	var result []models.User
	for _, u := range us.s.users {
		if u.CompanyID != nil && *u.CompanyID == companyID && u.Role == role {
			result = append(result, *u)
		}
	}
	return result, nil
}

func clonePayroll(p *models.Payroll) *models.Payroll {
	clone := *p
	clone.PaymentDate = cloneTime(p.PaymentDate)
	clone.ApprovedAt = cloneTime(p.ApprovedAt)
	clone.PaidAt = cloneTime(p.PaidAt)
	if p.ApprovedBy != nil {
		id := *p.ApprovedBy
		clone.ApprovedBy = &id
	}
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
