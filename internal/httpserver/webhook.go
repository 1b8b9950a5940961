package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"warelay/internal/providers/whatsapp"
	"warelay/internal/service"
)

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte) service.Outcome
}

// Webhook serves the Meta subscription handshake and event deliveries on "/".
type Webhook struct {
	Relay       WebhookHandler
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret string
}

func (h *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/", h.handleVerify).Methods(http.MethodGet)
	r.HandleFunc("/", h.handleReceive).Methods(http.MethodPost)
}

func (h *Webhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")
	if mode == "" || token == "" || challenge == "" {
		_, _ = io.WriteString(w, "ok")
		return
	}
	out, ok := whatsapp.VerifyHandshake(mode, token, challenge, h.VerifyToken)
	slog.Info("webhook verify", "mode", mode, "ok", ok)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, out)
}

// handleReceive acknowledges every delivery that passes the signature check,
// even when processing fails, so Meta does not retry in a loop.
func (h *Webhook) handleReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, ErrBodyTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		slog.Warn("webhook read body failed", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.AppSecret != "" && !whatsapp.VerifySignature(h.AppSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		slog.Warn("webhook signature rejected", "raw_size", len(body))
		http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
		return
	}

	slog.Info("webhook incoming", "raw_size", len(body))
	out := h.Relay.HandleWebhook(r.Context(), body)
	slog.Debug("webhook processed",
		"tenant_id", out.TenantID,
		"events", len(out.Events),
		"actions", len(out.Actions),
	)
	w.WriteHeader(http.StatusOK)
}
