package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"warelay/internal/domain"
	"warelay/internal/normalize"
	"warelay/internal/realtime"
	"warelay/internal/store"
	"warelay/internal/util"
)

type Simulator interface {
	Simulate(tenant string, events []domain.Event) ([]domain.Action, string, error)
}

type Stream interface {
	Subscribe(ctx context.Context, channel string) iter.Seq[string]
}

// Dev hosts the local simulator endpoints: dry automation runs, per-contact
// history and the live SSE feed.
type Dev struct {
	Relay  Simulator
	Store  History
	Stream Stream
}

func (h *Dev) Register(r *mux.Router) {
	r.HandleFunc("/dev/simulate", h.handleSimulate).Methods(http.MethodPost)
	r.HandleFunc("/dev/messages", h.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/dev/stream", h.handleStream).Methods(http.MethodGet)
}

type simulateRequest struct {
	Entry         json.RawMessage `json:"entry"`
	PhoneNumberID string          `json:"phone_number_id"`
	From          string          `json:"from"`
	Text          string          `json:"text"`
}

type simulateResponse struct {
	OK      bool            `json:"ok"`
	Source  string          `json:"source"`
	Actions []domain.Action `json:"actions"`
}

// handleSimulate accepts a Meta-shaped body or the short form
// {phone_number_id, from, text} and returns the actions without sending.
func (h *Dev) handleSimulate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrBodyTooLarge)
		return
	}
	var req simulateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}

	tenant, events := req.PhoneNumberID, []domain.Event(nil)
	if len(req.Entry) > 0 {
		batch := normalize.Parse(body)
		tenant, events = batch.PhoneNumberID, batch.Events
	} else if req.From != "" {
		events = []domain.Event{domain.TextEvent{From: req.From, Text: req.Text}}
	}

	actions, source, err := h.Relay.Simulate(tenant, events)
	if err != nil {
		slog.Error("dev simulate automation failed", "tenant_id", tenant, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if actions == nil {
		actions = []domain.Action{}
	}
	writeJSON(w, http.StatusOK, simulateResponse{OK: true, Source: source, Actions: actions})
}

// handleMessages returns a conversation oldest first. With only pnid it
// returns the tail of that tenant's traffic.
func (h *Dev) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pnid, phone := q.Get("pnid"), q.Get("phone")
	limit, ok := queryLimit(q.Get("limit"), 150)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrBadLimit)
		return
	}

	var rows []store.Message
	var err error
	switch {
	case phone != "" && pnid != "":
		rows, err = h.Store.ListConversation(r.Context(), pnid, phone, limit)
	case phone != "":
		rows, err = h.Store.ListMessagesByPhone(r.Context(), phone, limit, "")
		slices.Reverse(rows)
	case pnid != "":
		rows, err = h.Store.ListMessagesByTenant(r.Context(), pnid, limit)
	}
	if err != nil {
		slog.Error("dev list messages failed", "err", err)
		writeError(w, http.StatusInternalServerError, ErrDependency)
		return
	}
	if rows == nil {
		rows = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": rows})
}

// handleStream relays broadcaster frames for one (pnid, phone) channel until
// the client goes away. Only events published after connect are sent.
func (h *Dev) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pnid, phone := q.Get("pnid"), q.Get("phone")
	if phone == "" {
		http.Error(w, ErrMissingPhone, http.StatusBadRequest)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	channel := realtime.ChannelKey(pnid, phone)
	slog.Debug("dev stream open", "tenant_id", pnid, "phone", util.MaskPhone(phone))
	for frame := range h.Stream.Subscribe(r.Context(), channel) {
		if _, err := io.WriteString(w, frame); err != nil {
			break
		}
		if err := rc.Flush(); err != nil {
			break
		}
	}
	slog.Debug("dev stream closed", "tenant_id", pnid, "phone", util.MaskPhone(phone))
}
