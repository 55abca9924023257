package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nikhilbhutani/payrollflow/internal/cache"
	"github.com/nikhilbhutani/payrollflow/internal/ledger"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
)

type CompanyHandler struct {
	ledger   *ledger.Service
	engine   *payroll.Engine
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewCompanyHandler builds the handler; c may be nil to disable caching.
func NewCompanyHandler(l *ledger.Service, e *payroll.Engine, c *cache.Cache, ttl time.Duration) *CompanyHandler {
	return &CompanyHandler{ledger: l, engine: e, cache: c, cacheTTL: ttl}
}

type createCompanyRequest struct {
	Name           string          `json:"name" validate:"required,max=255"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req createCompanyRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.ledger.Create(r.Context(), p, req.Name, req.OpeningBalance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	companies, err := h.ledger.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"companies": companies, "count": len(companies)})
}

func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "company")
	if !ok {
		return
	}
	c, err := h.ledger.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Fund credits the company balance.
func (h *CompanyHandler) Fund(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "company")
	if !ok {
		return
	}
	var req fundRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.ledger.Credit(r.Context(), p, id, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.DeleteCompany(r.Context(), id); err != nil {
			slog.Warn("invalidate company cache", "company_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, c)
}

// Funds reports the balance against outstanding Pending payrolls.
func (h *CompanyHandler) Funds(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "company")
	if !ok {
		return
	}

	// checked before the cache so a cached entry never leaks across companies
	if !p.HasCapability(principal.CapCompanyFunds) {
		writeError(w, r, principal.ErrForbidden)
		return
	}
	if !p.CanAccessCompany(id) {
		writeError(w, r, store.ErrNotFound)
		return
	}

	funds, err := cache.Remember(r.Context(), h.cache, cache.FundsKey(id), h.cacheTTL, func() (*models.CompanyFunds, error) {
		return h.engine.CompanyFunds(r.Context(), p, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}
