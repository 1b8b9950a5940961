package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"warelay/internal/store"
)

type History interface {
	ListMessagesByPhone(ctx context.Context, phone string, limit int, before string) ([]store.Message, error)
	ListMessagesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Message, error)
	ListConversation(ctx context.Context, tenantID, phone string, limit int) ([]store.Message, error)
	ListRecentContacts(ctx context.Context, limit int) ([]store.Contact, error)
}

// Panel serves the read-only history API for the operator panel.
type Panel struct {
	Store History
}

func (h *Panel) Register(r *mux.Router) {
	r.HandleFunc("/panel/api/messages", h.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/panel/api/contacts/recent", h.handleContacts).Methods(http.MethodGet)
}

type itemsResponse[T any] struct {
	OK    bool `json:"ok"`
	Items []T  `json:"items"`
}

func (h *Panel) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phone := q.Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, ErrMissingPhone)
		return
	}
	limit, ok := queryLimit(q.Get("limit"), 50)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrBadLimit)
		return
	}
	rows, err := h.Store.ListMessagesByPhone(r.Context(), phone, limit, q.Get("before"))
	if err != nil {
		slog.Error("panel list messages failed", "err", err)
		writeError(w, http.StatusInternalServerError, ErrDependency)
		return
	}
	if rows == nil {
		rows = []store.Message{}
	}
	writeJSON(w, http.StatusOK, itemsResponse[store.Message]{OK: true, Items: rows})
}

func (h *Panel) handleContacts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r.URL.Query().Get("limit"), 50)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrBadLimit)
		return
	}
	rows, err := h.Store.ListRecentContacts(r.Context(), limit)
	if err != nil {
		slog.Error("panel list contacts failed", "err", err)
		writeError(w, http.StatusInternalServerError, ErrDependency)
		return
	}
	if rows == nil {
		rows = []store.Contact{}
	}
	writeJSON(w, http.StatusOK, itemsResponse[store.Contact]{OK: true, Items: rows})
}

func queryLimit(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, 500), true
}
