package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhilbhutani/payrollflow/internal/audit"
	"github.com/nikhilbhutani/payrollflow/internal/models"
)

type AuditLister interface {
	List(ctx context.Context, q audit.Query) ([]models.AuditLog, error)
}

type AdminHandler struct {
	audit AuditLister
}

func NewAdminHandler(a AuditLister) *AdminHandler {
	return &AdminHandler{audit: a}
}

// AuditLogs lists audit entries, filtered by ?action=, ?company_id=,
// ?start_date= and ?end_date= (RFC 3339).
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Action: r.URL.Query().Get("action"),
	}
	q.Limit, q.Offset = page(r)

	var err error
	if q.CompanyID, err = queryUUID(r, "company_id"); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		q.StartDate = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		q.EndDate = &t
	}

	logs, err := h.audit.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}
