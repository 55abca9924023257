package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/payrollflow/internal/notification"
)

type NotificationHandler struct {
	emitter *notification.Emitter
}

func NewNotificationHandler(e *notification.Emitter) *NotificationHandler {
	return &NotificationHandler{emitter: e}
}

// List returns the caller's notifications; ?unread=true limits to unread ones.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	unread, err := queryBool(r, "unread")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.emitter.List(r.Context(), p, unread != nil && *unread)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items, "count": len(items)})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notification")
	if !ok {
		return
	}
	if err := h.emitter.MarkRead(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.emitter.MarkAllRead(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
