package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/webhook"
)

// WebhookService is the subset of webhook.Service the handler uses.
type WebhookService interface {
	Create(ctx context.Context, companyID uuid.UUID, req webhook.CreateRequest) (*models.Webhook, error)
	List(ctx context.Context, companyID uuid.UUID) ([]models.Webhook, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
}

type WebhookHandler struct {
	svc WebhookService
}

func NewWebhookHandler(svc WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := webhookCompany(w, r)
	if !ok {
		return
	}
	var req webhook.CreateRequest
	if !decode(w, r, &req) {
		return
	}

	wh, err := h.svc.Create(r.Context(), companyID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Include secret in response only on creation
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"webhook": wh,
		"secret":  wh.Secret,
	})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := webhookCompany(w, r)
	if !ok {
		return
	}
	webhooks, err := h.svc.List(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": webhooks, "count": len(webhooks)})
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, ok := webhookCompany(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "webhook")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), companyID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// webhookCompany resolves the company a webhook request acts on: the
// caller's own, or ?company_id= for Admins.
func webhookCompany(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := caller(w, r)
	if !ok {
		return uuid.Nil, false
	}
	if !p.HasCapability(principal.CapWebhooksManage) {
		writeError(w, r, principal.ErrForbidden)
		return uuid.Nil, false
	}
	requested, err := queryUUID(r, "company_id")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, false
	}
	if requested != nil {
		if !p.CanAccessCompany(*requested) {
			writeMessage(w, http.StatusNotFound, "company not found")
			return uuid.Nil, false
		}
		return *requested, true
	}
	if p.CompanyID == nil {
		writeMessage(w, http.StatusBadRequest, "company_id is required")
		return uuid.Nil, false
	}
	return *p.CompanyID, true
}
