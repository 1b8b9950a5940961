package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"warelay/internal/domain"
	"warelay/internal/util"
)

const DefaultBaseURL = "https://graph.facebook.com"

var ErrMisconfigured = errors.New("whatsapp api misconfigured: phone number id or token missing")

type Client struct {
	Token        string
	GraphVersion string
	BaseURL      string
	DryRun       bool
	HTTP         *http.Client

	// PhoneNumberID is the sending number used when a call names none.
	PhoneNumberID string
}

type SendResult struct {
	ExternalID string
	DryRun     bool
	HTTPStatus int
	Raw        []byte
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("graph api %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("graph api %d", e.HTTPStatus)
}

type textBody struct {
	Body string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string            `json:"messaging_product"`
	To               string            `json:"to"`
	Type             domain.ActionKind `json:"type"`
	Text             *textBody         `json:"text,omitempty"`
	Template         *domain.Template  `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// BuildPayload renders an action as a Graph API message body.
func BuildPayload(a domain.Action) ([]byte, error) {
	req := sendRequest{MessagingProduct: "whatsapp", To: a.To, Type: a.Kind()}
	switch a.Kind() {
	case domain.ActionTemplate:
		req.Template = a.Template
	default:
		req.Text = &textBody{Body: a.Text}
	}
	return json.Marshal(req)
}

func (c *Client) Endpoint(phoneNumberID string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	version := c.GraphVersion
	if version == "" {
		version = "v22.0"
	}
	return base + "/" + version + "/" + phoneNumberID + "/messages"
}

// Send delivers one action from the business number phoneNumberID, or from
// the configured number when phoneNumberID is empty.
// In dry-run mode nothing leaves the process and a synthetic id is returned.
func (c *Client) Send(ctx context.Context, phoneNumberID string, a domain.Action) (SendResult, error) {
	if phoneNumberID == "" {
		phoneNumberID = c.PhoneNumberID
	}
	if phoneNumberID == "" || c.Token == "" {
		slog.Error("whatsapp misconfigured", "have_phone_number_id", phoneNumberID != "", "have_token", c.Token != "")
		return SendResult{}, ErrMisconfigured
	}
	body, err := BuildPayload(a)
	if err != nil {
		return SendResult{}, err
	}
	endpoint := c.Endpoint(phoneNumberID)

	if c.DryRun {
		slog.Info("whatsapp dry run", "url", endpoint, "to", util.MaskPhone(a.To), "type", a.Kind())
		return SendResult{ExternalID: util.NewDryRunID(), DryRun: true}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	started := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	slog.Debug("whatsapp response", "status", resp.StatusCode, "elapsed_ms", time.Since(started).Milliseconds())

	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Body: raw}
		if out.Error != nil {
			apiErr.Code = out.Error.Code
			apiErr.Message = out.Error.Message
		}
		return SendResult{HTTPStatus: resp.StatusCode, Raw: raw}, apiErr
	}

	res := SendResult{HTTPStatus: resp.StatusCode, Raw: raw}
	if len(out.Messages) > 0 {
		res.ExternalID = out.Messages[0].ID
	}
	return res, nil
}
