package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/payrollflow/internal/employee"
	"github.com/nikhilbhutani/payrollflow/internal/ledger"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
	"github.com/nikhilbhutani/payrollflow/internal/webhook"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{payroll.ErrInsufficientFunds, http.StatusConflict},
		{payroll.ErrDuplicatePeriod, http.StatusConflict},
		{payroll.ErrConcurrencyConflict, http.StatusConflict},
		{ledger.ErrDuplicateName, http.StatusConflict},
		{payroll.ErrInvalidTransition, http.StatusBadRequest},
		{payroll.ErrInvalidPeriod, http.StatusBadRequest},
		{payroll.ErrInvalidAmount, http.StatusBadRequest},
		{employee.ErrInvalidSalary, http.StatusBadRequest},
		{webhook.ErrUnknownEvent, http.StatusBadRequest},
		{payroll.ErrInactiveEmployee, http.StatusUnprocessableEntity},
		{payroll.ErrNotFound, http.StatusNotFound},
		{webhook.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("insert webhook: %w", webhook.ErrCompanyNotFound), http.StatusNotFound},
		{principal.ErrForbidden, http.StatusForbidden},
		{store.ErrConflict, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("approve payroll: %w", tt.err)
			assert.Equal(t, tt.want, statusFor(wrapped))
		})
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, errors.New("pq: connection refused to 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestQueryPeriod(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"month=2&year=2026", "02/2026", false},
		{"month=2", "", true},
		{"month=x&year=2026", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := queryPeriod(req, false)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got.String())
		})
	}

	t.Run("defaults to current month", func(t *testing.T) {
		got, err := queryPeriod(httptest.NewRequest(http.MethodGet, "/", nil), true)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestReadyzReportsFailures(t *testing.T) {
	h := &HealthHandler{checks: map[string]Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}}
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Contains(t, rec.Body.String(), "unhealthy: dial tcp: refused")
}

func TestDecodeValidates(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payroll_ids":[]}`))
	var body batchApproveRequest
	assert.False(t, decode(rec, req, &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PayrollIDs")
}
