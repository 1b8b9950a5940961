package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"warelay/internal/config"
	"warelay/internal/logging"
	"warelay/internal/providers/whatsapp"
	"warelay/internal/util"
)

const maxWebhookAttempts = 5

type sendRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             json.RawMessage `json:"text"`
	Template         json.RawMessage `json:"template"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type server struct {
	cfg    config.MockGraphConfig
	idx    uint64
	rng    *rand.Rand
	rngMu  sync.Mutex
	client *http.Client
	wg     sync.WaitGroup
}

func main() {
	cfg := config.LoadMockGraph()
	logging.Init("mock-graph", cfg.LogFormat, cfg.LogLevel)

	s := newServer(cfg)
	slog.Info("mock graph listening", "port", cfg.Port, "webhook_url", cfg.WebhookURL)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(s.router())); err != nil {
		slog.Error("mock graph server failed", "err", err)
		os.Exit(1)
	}
}

func newServer(cfg config.MockGraphConfig) *server {
	return &server{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{version}/{phoneNumberID}/messages", s.handleSend).Methods(http.MethodPost)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock graph request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	pnid := mux.Vars(r)["phoneNumberID"]
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, http.StatusUnauthorized, 190, "OAuthException", "Invalid OAuth access token")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, 100, "OAuthException", "Invalid JSON payload")
		return
	}
	if req.MessagingProduct != "whatsapp" || req.To == "" {
		writeError(w, http.StatusBadRequest, 100, "OAuthException", "Invalid parameter")
		return
	}
	switch req.Type {
	case "text":
		if len(req.Text) == 0 {
			writeError(w, http.StatusBadRequest, 100, "OAuthException", "Missing text body")
			return
		}
	case "template":
		if len(req.Template) == 0 {
			writeError(w, http.StatusBadRequest, 132000, "OAuthException", "Missing template")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, 100, "OAuthException", "Unsupported message type")
		return
	}

	if s.cfg.FailRecipient != "" && req.To == s.cfg.FailRecipient {
		writeError(w, http.StatusBadRequest, 131026, "OAuthException", "Message undeliverable")
		return
	}

	id := fmt.Sprintf("wamid.MOCK%08d", atomic.AddUint64(&s.idx, 1))
	slog.Info("mock graph accepted", "phone_number_id", pnid, "to", util.MaskPhone(req.To), "type", req.Type, "id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"messaging_product": "whatsapp",
		"contacts":          []map[string]string{{"input": req.To, "wa_id": req.To}},
		"messages":          []map[string]string{{"id": id}},
	})

	s.webhookSequence(pnid, req.To, id)
}

// webhookSequence posts sent, delivered and read statuses for id, spaced by
// the configured delay with some jitter.
func (s *server) webhookSequence(pnid, recipient, id string) {
	if s.cfg.WebhookURL == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, status := range []string{"sent", "delivered", "read"} {
			s.sleepJitter(s.cfg.StatusDelay)
			body := statusPayload(pnid, recipient, id, status, time.Now())
			if err := s.postWebhookWithRetry(context.Background(), body); err != nil {
				return
			}
		}
	}()
}

func statusPayload(pnid, recipient, id, status string, at time.Time) []byte {
	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "mock-waba",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"metadata":          map[string]string{"phone_number_id": pnid},
					"statuses": []any{map[string]string{
						"id":           id,
						"recipient_id": recipient,
						"status":       status,
						"timestamp":    strconv.FormatInt(at.Unix(), 10),
					}},
				},
			}},
		}},
	}
	b, _ := json.Marshal(payload)
	return b
}

func (s *server) sleepJitter(base time.Duration) {
	if base <= 0 {
		return
	}
	s.rngMu.Lock()
	j := time.Duration(s.rng.Int63n(int64(base)/5 + 1))
	s.rngMu.Unlock()
	time.Sleep(base + j)
}

func (s *server) postWebhookWithRetry(ctx context.Context, body []byte) error {
	wait := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if s.cfg.AppSecret != "" {
			req.Header.Set(whatsapp.SignatureHeader, whatsapp.Sign(s.cfg.AppSecret, body))
		}

		resp, err := s.client.Do(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		if err == nil && status >= 200 && status < 300 {
			return nil
		}
		if attempt >= maxWebhookAttempts || (err == nil && !isRetryableStatus(status)) {
			slog.Error("mock webhook post failed", "url", s.cfg.WebhookURL, "attempt", attempt, "status", status, "err", err)
			if err != nil {
				return err
			}
			return fmt.Errorf("webhook post failed: status=%d", status)
		}
		slog.Warn("mock webhook post retrying", "attempt", attempt, "status", status, "wait_ms", wait.Milliseconds())
		time.Sleep(wait)
		wait = min(wait*2, 5*time.Second)
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func writeError(w http.ResponseWriter, status, code int, typ, msg string) {
	var e graphError
	e.Error.Message = msg
	e.Error.Type = typ
	e.Error.Code = code
	slog.Warn("mock graph rejected", "status", status, "code", code, "message", msg)
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
