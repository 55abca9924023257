package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhutani/payrollflow/internal/cache"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
)

type PayrollHandler struct {
	engine   *payroll.Engine
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewPayrollHandler builds the handler; c may be nil to disable caching.
func NewPayrollHandler(e *payroll.Engine, c *cache.Cache, ttl time.Duration) *PayrollHandler {
	return &PayrollHandler{engine: e, cache: c, cacheTTL: ttl}
}

type createPayrollRequest struct {
	EmployeeID     uuid.UUID       `json:"employee_id" validate:"required"`
	Month          int             `json:"month" validate:"required"`
	Year           int             `json:"year" validate:"required"`
	AttendanceDays int             `json:"attendance_days"`
	Bonus          decimal.Decimal `json:"bonus"`
	Deductions     decimal.Decimal `json:"deductions"`
	PaymentDate    *string         `json:"payment_date"`
}

type recomputeRequest struct {
	Bonus          decimal.Decimal `json:"bonus"`
	Deductions     decimal.Decimal `json:"deductions"`
	AttendanceDays *int            `json:"attendance_days"`
	PaymentDate    *string         `json:"payment_date"`
}

type generateRequest struct {
	Month          int        `json:"month" validate:"required"`
	Year           int        `json:"year" validate:"required"`
	CompanyID      *uuid.UUID `json:"company_id"`
	AttendanceDays int        `json:"attendance_days"`
}

type batchApproveRequest struct {
	PayrollIDs []uuid.UUID `json:"payroll_ids" validate:"required,min=1,max=500"`
}

func (h *PayrollHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req createPayrollRequest
	if !decode(w, r, &req) {
		return
	}
	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := h.engine.Create(r.Context(), p, payroll.CreateInput{
		EmployeeID:     req.EmployeeID,
		AttendanceDays: req.AttendanceDays,
		Bonus:          req.Bonus,
		Deductions:     req.Deductions,
		Period:         models.Period{Month: req.Month, Year: req.Year},
		PaymentDate:    paymentDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// List supports ?status=, ?employee_id=, ?company_id=, ?month=&year= and paging.
func (h *PayrollHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}

	f := store.PayrollFilter{Status: models.PayrollStatus(r.URL.Query().Get("status"))}
	var err error
	if f.EmployeeID, err = queryUUID(r, "employee_id"); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.CompanyID, err = queryUUID(r, "company_id"); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	period, err := queryPeriod(r, false)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Period = period
	f.Limit, f.Offset = page(r)

	payrolls, err := h.engine.List(r.Context(), p, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payrolls": payrolls, "count": len(payrolls)})
}

// Summary aggregates one period; ?month= and ?year= default to the current month.
func (h *PayrollHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	period, err := queryPeriod(r, true)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	companyID, err := queryUUID(r, "company_id")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	// resolve scope before the cache so keys never cross companies
	if !p.HasCapability(principal.CapPayrollRead) {
		writeError(w, r, principal.ErrForbidden)
		return
	}
	if companyID != nil && !p.CanAccessCompany(*companyID) {
		writeError(w, r, store.ErrNotFound)
		return
	}
	if companyID == nil {
		companyID = p.ScopeCompany()
	}

	summary, err := cache.Remember(r.Context(), h.cache, cache.SummaryKey(companyID, *period), h.cacheTTL, func() (*models.PayrollSummary, error) {
		return h.engine.MonthlySummary(r.Context(), p, companyID, *period)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *PayrollHandler) Generate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.GenerateMonthly(r.Context(), p, payroll.GenerateInput{
		Period:         models.Period{Month: req.Month, Year: req.Year},
		CompanyID:      req.CompanyID,
		AttendanceDays: req.AttendanceDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchApprove always answers 200 once the caller may approve; per-item
// failures are in the body.
func (h *PayrollHandler) BatchApprove(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req batchApproveRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.BatchApprove(r.Context(), p, req.PayrollIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PayrollHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "payroll")
	if !ok {
		return
	}
	pr, err := h.engine.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (h *PayrollHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "payroll")
	if !ok {
		return
	}
	var req recomputeRequest
	if !decode(w, r, &req) {
		return
	}
	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := h.engine.Recompute(r.Context(), p, id, payroll.RecomputeInput{
		Bonus:          req.Bonus,
		Deductions:     req.Deductions,
		AttendanceDays: req.AttendanceDays,
		PaymentDate:    paymentDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (h *PayrollHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "payroll")
	if !ok {
		return
	}
	pr, err := h.engine.Approve(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (h *PayrollHandler) Pay(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "payroll")
	if !ok {
		return
	}
	pr, err := h.engine.MarkPaid(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// queryPeriod reads ?month= and ?year=. Without them it returns nil, or the
// current month when defaultNow is set. Only one of the two is an error.
func queryPeriod(r *http.Request, defaultNow bool) (*models.Period, error) {
	month, err := queryInt(r, "month")
	if err != nil {
		return nil, err
	}
	year, err := queryInt(r, "year")
	if err != nil {
		return nil, err
	}
	switch {
	case month == 0 && year == 0:
		if !defaultNow {
			return nil, nil
		}
		now := time.Now()
		return &models.Period{Month: int(now.Month()), Year: now.Year()}, nil
	case month == 0 || year == 0:
		return nil, errMonthYear
	}
	return &models.Period{Month: month, Year: year}, nil
}
