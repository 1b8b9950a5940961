package domain

import (
	"encoding/json"
	"errors"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

type EventKind string

const (
	KindText     EventKind = "text"
	KindImage    EventKind = "image"
	KindAudio    EventKind = "audio"
	KindDocument EventKind = "document"
	KindLocation EventKind = "location"
	KindButton   EventKind = "button"
	KindStatus   EventKind = "status"
	KindUnknown  EventKind = "unknown"
)

// Event is one normalized webhook item. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	// Sender is the subscriber address the event belongs to.
	Sender() string
	isEvent()
}

type TextEvent struct {
	From        string `json:"from"`
	MsgID       string `json:"msg_id,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Text        string `json:"text"`
	ProfileName string `json:"profile_name,omitempty"`
}

type ImageEvent struct {
	From     string `json:"from"`
	MsgID    string `json:"msg_id,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type AudioEvent struct {
	From     string `json:"from"`
	MsgID    string `json:"msg_id,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type DocumentEvent struct {
	From     string `json:"from"`
	MsgID    string `json:"msg_id,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type LocationEvent struct {
	From      string  `json:"from"`
	MsgID     string  `json:"msg_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type ButtonEvent struct {
	From    string `json:"from"`
	MsgID   string `json:"msg_id,omitempty"`
	Payload string `json:"payload"`
	Text    string `json:"text,omitempty"`
}

type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatusEvent struct {
	Recipient string        `json:"recipient"`
	MsgID     string        `json:"msg_id"`
	Status    MessageStatus `json:"status"`
	Timestamp string        `json:"timestamp,omitempty"`
	Errors    []StatusError `json:"errors,omitempty"`
}

// UnknownEvent keeps message types we do not model so automation can still see them.
type UnknownEvent struct {
	From string `json:"from"`
	Type string `json:"type"`
}

func (TextEvent) Kind() EventKind     { return KindText }
func (ImageEvent) Kind() EventKind    { return KindImage }
func (AudioEvent) Kind() EventKind    { return KindAudio }
func (DocumentEvent) Kind() EventKind { return KindDocument }
func (LocationEvent) Kind() EventKind { return KindLocation }
func (ButtonEvent) Kind() EventKind   { return KindButton }
func (StatusEvent) Kind() EventKind   { return KindStatus }
func (UnknownEvent) Kind() EventKind  { return KindUnknown }

func (e TextEvent) Sender() string     { return e.From }
func (e ImageEvent) Sender() string    { return e.From }
func (e AudioEvent) Sender() string    { return e.From }
func (e DocumentEvent) Sender() string { return e.From }
func (e LocationEvent) Sender() string { return e.From }
func (e ButtonEvent) Sender() string   { return e.From }
func (e StatusEvent) Sender() string   { return e.Recipient }
func (e UnknownEvent) Sender() string  { return e.From }

func (TextEvent) isEvent()     {}
func (ImageEvent) isEvent()    {}
func (AudioEvent) isEvent()    {}
func (DocumentEvent) isEvent() {}
func (LocationEvent) isEvent() {}
func (ButtonEvent) isEvent()   {}
func (StatusEvent) isEvent()   {}
func (UnknownEvent) isEvent()  {}

type ActionKind string

const (
	ActionText     ActionKind = "text"
	ActionTemplate ActionKind = "template"
)

type Language struct {
	Code string `json:"code"`
}

// Template mirrors the Graph API template object.
type Template struct {
	Name       string          `json:"name"`
	Language   Language        `json:"language"`
	Components json.RawMessage `json:"components,omitempty"`
}

// Action is one outbound message produced by automation.
type Action struct {
	To       string    `json:"to"`
	Text     string    `json:"text,omitempty"`
	Template *Template `json:"template,omitempty"`
	// Delay in seconds before this action when it is not first in its batch.
	Delay *int `json:"delay,omitempty"`
}

// Kind reports template when a template is set and text otherwise, so an
// action with neither is sent as an empty text body.
func (a Action) Kind() ActionKind {
	if a.Template != nil {
		return ActionTemplate
	}
	return ActionText
}

var (
	ErrMissingRecipient = errors.New("missing to")
	ErrAmbiguousContent = errors.New("provide either text or template, not both")
	ErrMissingContent   = errors.New("provide text or template")
)

// Validate is the strict check applied to proactive sends.
func (a Action) Validate() error {
	if a.To == "" {
		return ErrMissingRecipient
	}
	if a.Text != "" && a.Template != nil {
		return ErrAmbiguousContent
	}
	if a.Text == "" && a.Template == nil {
		return ErrMissingContent
	}
	return nil
}

func TextAction(to, text string) Action { return Action{To: to, Text: text} }

func TemplateAction(to, name, lang string) Action {
	return Action{To: to, Template: &Template{Name: name, Language: Language{Code: lang}}}
}

// Seconds is a helper for building actions with an explicit delay.
func Seconds(n int) *int { return &n }
