package store

import (
	"encoding/json"
	"errors"
	"time"

	"warelay/internal/domain"
)

// ErrDuplicate is returned when an insert collides with an existing external_msg_id.
var ErrDuplicate = errors.New("duplicate external message id")

type Message struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Phone           string           `json:"phone"`
	Direction       domain.Direction `json:"direction"`
	Text            string           `json:"text,omitempty"`
	AttachmentsMeta json.RawMessage  `json:"attachments_meta,omitempty"`
	ExternalMsgID   string           `json:"external_msg_id,omitempty"`
	Status          string           `json:"status,omitempty"`
	RawPayload      string           `json:"raw_payload,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

type MessageInsert struct {
	ID              string
	TenantID        string
	Phone           string
	Direction       domain.Direction
	Text            string
	AttachmentsMeta any
	ExternalMsgID   string
	Status          string
	RawPayload      []byte
	CreatedAt       time.Time
}

type Contact struct {
	Phone         string `json:"phone"`
	TenantID      string `json:"tenant_id"`
	LastMessageAt string `json:"last_message_at"`
}
