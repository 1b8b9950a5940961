// Package normalize turns Meta webhook deliveries into typed events.
package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"

	"warelay/internal/domain"
)

// Batch is the normalized content of one webhook delivery.
type Batch struct {
	PhoneNumberID string
	Events        []domain.Event
}

// Parse never fails on partial garbage. Items that cannot be read are skipped
// and an unparseable body yields an empty batch.
func Parse(body []byte) Batch {
	var out Batch
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return out
	}

	for _, rawEntry := range p.Entry {
		var e entry
		if json.Unmarshal(rawEntry, &e) != nil {
			continue
		}
		for _, rawChange := range e.Changes {
			var c change
			if json.Unmarshal(rawChange, &c) != nil {
				continue
			}
			var v changeValue
			if json.Unmarshal(c.Value, &v) != nil {
				continue
			}
			if out.PhoneNumberID == "" {
				out.PhoneNumberID = v.Metadata.PhoneNumberID
			}
			out.Events = append(out.Events, messages(v)...)
			out.Events = append(out.Events, statuses(v)...)
		}
	}
	return out
}

// Events is Parse without the tenant id.
func Events(body []byte) []domain.Event { return Parse(body).Events }

func messages(v changeValue) []domain.Event {
	names := map[string]string{}
	for _, raw := range v.Contacts {
		var c contact
		if json.Unmarshal(raw, &c) == nil && c.WaID != "" {
			names[c.WaID] = c.Profile.Name
		}
	}

	var out []domain.Event
	for _, raw := range v.Messages {
		var m message
		if json.Unmarshal(raw, &m) != nil {
			continue
		}
		if m.From == "" || m.Type == "" {
			continue
		}
		if ev, ok := toEvent(m, names[m.From]); ok {
			out = append(out, ev)
		}
	}
	return out
}

func toEvent(m message, profileName string) (domain.Event, bool) {
	switch m.Type {
	case "text":
		ev := domain.TextEvent{From: m.From, MsgID: m.ID, Timestamp: m.Timestamp, ProfileName: profileName}
		if m.Text != nil {
			ev.Text = m.Text.Body
		}
		return ev, true
	case "image":
		ev := domain.ImageEvent{From: m.From, MsgID: m.ID}
		if m.Image != nil {
			ev.MediaID, ev.MimeType, ev.Caption = m.Image.ID, m.Image.MimeType, m.Image.Caption
		}
		return ev, true
	case "audio":
		ev := domain.AudioEvent{From: m.From, MsgID: m.ID}
		if m.Audio != nil {
			ev.MediaID, ev.MimeType = m.Audio.ID, m.Audio.MimeType
		}
		return ev, true
	case "document":
		ev := domain.DocumentEvent{From: m.From, MsgID: m.ID}
		if m.Document != nil {
			d := m.Document
			ev.MediaID, ev.MimeType, ev.Filename, ev.Caption = d.ID, d.MimeType, d.Filename, d.Caption
		}
		return ev, true
	case "location":
		if m.Location == nil {
			return nil, false
		}
		lat, okLat := number(m.Location.Latitude)
		lng, okLng := number(m.Location.Longitude)
		if !okLat || !okLng {
			return nil, false
		}
		return domain.LocationEvent{
			From: m.From, MsgID: m.ID,
			Latitude: lat, Longitude: lng,
			Name: m.Location.Name, Address: m.Location.Address,
		}, true
	case "button":
		if m.Button == nil || m.Button.Payload == nil {
			return nil, false
		}
		return domain.ButtonEvent{From: m.From, MsgID: m.ID, Payload: *m.Button.Payload, Text: m.Button.Text}, true
	default:
		return domain.UnknownEvent{From: m.From, Type: m.Type}, true
	}
}

func statuses(v changeValue) []domain.Event {
	var out []domain.Event
	for _, raw := range v.Statuses {
		var s status
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		if s.RecipientID == "" || s.Status == "" {
			continue
		}
		ev := domain.StatusEvent{
			Recipient: s.RecipientID,
			MsgID:     s.ID,
			Status:    domain.MessageStatus(s.Status),
			Timestamp: s.Timestamp,
		}
		for _, e := range s.Errors {
			ev.Errors = append(ev.Errors, domain.StatusError{Code: e.Code, Title: e.Title, Message: e.Message})
		}
		out = append(out, ev)
	}
	return out
}

// number accepts both JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		raw = []byte(s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	return f, err == nil
}
