package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"warelay/internal/dispatch"
	"warelay/internal/domain"
	"warelay/internal/providers/whatsapp"
	"warelay/internal/util"
)

type ActionSender interface {
	Send(ctx context.Context, tenant string, a domain.Action) (dispatch.Sent, error)
}

// Outbound is the proactive send API used by backends.
type Outbound struct {
	Sender ActionSender
	// PhoneNumberID is the business number proactive sends go out from.
	PhoneNumberID string
	// Token guards the endpoint through X-Internal-Token when set.
	Token string
}

func (h *Outbound) Register(r *mux.Router) {
	r.HandleFunc("/send", h.handleSend).Methods(http.MethodPost)
}

type sendResponse struct {
	OK            bool   `json:"ok"`
	MessageID     string `json:"message_id"`
	ExternalMsgID string `json:"external_msg_id"`
	DryRun        bool   `json:"dry_run"`
}

func (h *Outbound) handleSend(w http.ResponseWriter, r *http.Request) {
	if h.Token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Internal-Token")), []byte(h.Token)) != 1 {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
		return
	}

	var a domain.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	a.Delay = nil
	if err := a.Validate(); err != nil {
		slog.Warn("send rejected",
			"err", err,
			"to", util.MaskPhone(a.To),
			"has_text", a.Text != "",
			"has_template", a.Template != nil,
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("send request", "to", util.MaskPhone(a.To), "kind", a.Kind())
	sent, err := h.Sender.Send(r.Context(), h.PhoneNumberID, a)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			slog.Error("send graph error", "to", util.MaskPhone(a.To), "http_status", apiErr.HTTPStatus, "err", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		slog.Error("send failed", "to", util.MaskPhone(a.To), "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("send success", "to", util.MaskPhone(a.To), "external_msg_id", sent.Result.ExternalID)
	writeJSON(w, http.StatusOK, sendResponse{
		OK:            true,
		MessageID:     sent.Message.ID,
		ExternalMsgID: sent.Result.ExternalID,
		DryRun:        sent.Result.DryRun,
	})
}
