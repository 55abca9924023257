package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhutani/payrollflow/internal/employee"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/store"
)

type EmployeeHandler struct {
	svc *employee.Service
}

func NewEmployeeHandler(svc *employee.Service) *EmployeeHandler {
	return &EmployeeHandler{svc: svc}
}

type createEmployeeRequest struct {
	CompanyID   *uuid.UUID      `json:"company_id"`
	UserID      *uuid.UUID      `json:"user_id"`
	FullName    string          `json:"full_name" validate:"required,max=255"`
	Email       string          `json:"email" validate:"omitempty,email"`
	Phone       string          `json:"phone" validate:"omitempty,max=32"`
	Role        string          `json:"role" validate:"max=100"`
	BaseSalary  decimal.Decimal `json:"base_salary"`
	BankName    string          `json:"bank_name" validate:"max=255"`
	BankAccount string          `json:"bank_account" validate:"max=64"`
}

type updateEmployeeRequest struct {
	UserID      *uuid.UUID       `json:"user_id"`
	FullName    *string          `json:"full_name" validate:"omitempty,min=1,max=255"`
	Email       *string          `json:"email" validate:"omitempty,email"`
	Phone       *string          `json:"phone" validate:"omitempty,max=32"`
	Role        *string          `json:"role" validate:"omitempty,max=100"`
	BaseSalary  *decimal.Decimal `json:"base_salary"`
	BankName    *string          `json:"bank_name" validate:"omitempty,max=255"`
	BankAccount *string          `json:"bank_account" validate:"omitempty,max=64"`
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req createEmployeeRequest
	if !decode(w, r, &req) {
		return
	}

	emp, err := h.svc.Create(r.Context(), p, employee.CreateInput{
		CompanyID:   req.CompanyID,
		UserID:      req.UserID,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Role:        req.Role,
		BaseSalary:  req.BaseSalary,
		BankName:    req.BankName,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// List supports ?search=, ?active=, ?role=, ?company_id= (Admin only) and paging.
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	companyID, err := queryUUID(r, "company_id")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	f := store.EmployeeFilter{
		CompanyID: companyID,
		Search:    r.URL.Query().Get("search"),
		Active:    active,
		Role:      r.URL.Query().Get("role"),
	}
	f.Limit, f.Offset = page(r)

	employees, err := h.svc.List(r.Context(), p, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"employees": employees, "count": len(employees)})
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "employee")
	if !ok {
		return
	}
	emp, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "employee")
	if !ok {
		return
	}
	var req updateEmployeeRequest
	if !decode(w, r, &req) {
		return
	}

	emp, err := h.svc.Update(r.Context(), p, id, employee.UpdateInput{
		UserID:      req.UserID,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Role:        req.Role,
		BaseSalary:  req.BaseSalary,
		BankName:    req.BankName,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (h *EmployeeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *EmployeeHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *EmployeeHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "employee")
	if !ok {
		return
	}

	var (
		emp *models.Employee
		err error
	)
	if active {
		emp, err = h.svc.Activate(r.Context(), p, id)
	} else {
		emp, err = h.svc.Deactivate(r.Context(), p, id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}
