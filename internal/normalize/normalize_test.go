package normalize

import (
	"reflect"
	"testing"

	"warelay/internal/domain"
)

const fullPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "PNID1"},
        "contacts": [{"wa_id": "5511999990000", "profile": {"name": "Ana"}}],
        "messages": [
          {"from": "5511999990000", "id": "wamid.T", "timestamp": "1700000000", "type": "text", "text": {"body": "oi"}},
          {"from": "5511999990000", "id": "wamid.I", "type": "image", "image": {"id": "m1", "mime_type": "image/jpeg", "caption": "foto"}},
          {"from": "5511999990000", "id": "wamid.A", "type": "audio", "audio": {"id": "m2", "mime_type": "audio/ogg"}},
          {"from": "5511999990000", "id": "wamid.D", "type": "document", "document": {"id": "m3", "filename": "a.pdf"}},
          {"from": "5511999990000", "id": "wamid.L", "type": "location", "location": {"latitude": -23.5, "longitude": "-46.6", "name": "SP"}},
          {"from": "5511999990000", "id": "wamid.L2", "type": "location", "location": {"name": "no coords"}},
          {"from": "5511999990000", "id": "wamid.B", "type": "button", "button": {"payload": "YES", "text": "Sim"}},
          {"from": "5511999990000", "id": "wamid.B2", "type": "button", "button": {"text": "no payload"}},
          {"from": "5511999990000", "id": "wamid.S", "type": "sticker", "sticker": {"id": "m4"}},
          {"id": "wamid.X", "type": "text", "text": {"body": "no sender"}},
          {"from": 42, "type": "text"}
        ],
        "statuses": [
          {"id": "wamid.OUT", "status": "read", "timestamp": "1700000001", "recipient_id": "5511999990000"},
          {"id": "wamid.OUT2", "status": "failed", "recipient_id": "5511999990000", "errors": [{"code": 131047, "title": "Re-engagement"}]},
          {"id": "wamid.OUT3", "recipient_id": "5511999990000"}
        ]
      }
    }]
  }]
}`

func TestParseAllKinds(t *testing.T) {
	b := Parse([]byte(fullPayload))
	if b.PhoneNumberID != "PNID1" {
		t.Fatalf("pnid=%q", b.PhoneNumberID)
	}

	want := []domain.Event{
		domain.TextEvent{From: "5511999990000", MsgID: "wamid.T", Timestamp: "1700000000", Text: "oi", ProfileName: "Ana"},
		domain.ImageEvent{From: "5511999990000", MsgID: "wamid.I", MediaID: "m1", MimeType: "image/jpeg", Caption: "foto"},
		domain.AudioEvent{From: "5511999990000", MsgID: "wamid.A", MediaID: "m2", MimeType: "audio/ogg"},
		domain.DocumentEvent{From: "5511999990000", MsgID: "wamid.D", MediaID: "m3", Filename: "a.pdf"},
		domain.LocationEvent{From: "5511999990000", MsgID: "wamid.L", Latitude: -23.5, Longitude: -46.6, Name: "SP"},
		domain.ButtonEvent{From: "5511999990000", MsgID: "wamid.B", Payload: "YES", Text: "Sim"},
		domain.UnknownEvent{From: "5511999990000", Type: "sticker"},
		domain.StatusEvent{Recipient: "5511999990000", MsgID: "wamid.OUT", Status: domain.StatusRead, Timestamp: "1700000001"},
		domain.StatusEvent{Recipient: "5511999990000", MsgID: "wamid.OUT2", Status: domain.StatusFailed,
			Errors: []domain.StatusError{{Code: 131047, Title: "Re-engagement"}}},
	}
	if !reflect.DeepEqual(b.Events, want) {
		t.Fatalf("events mismatch\n got: %#v\nwant: %#v", b.Events, want)
	}
}

func TestParseGarbage(t *testing.T) {
	for _, body := range []string{``, `not json`, `[]`, `{"entry": "x"}`, `{"entry": [{"changes": [{"value": 5}]}]}`} {
		if b := Parse([]byte(body)); len(b.Events) != 0 || b.PhoneNumberID != "" {
			t.Fatalf("body %q produced %+v", body, b)
		}
	}
}

func TestParseSkipsBadEntryKeepsGoodOne(t *testing.T) {
	body := `{"entry": [
		{"changes": "bad"},
		{"changes": [{"value": {"metadata": {"phone_number_id": "P"}, "messages": [{"from": "1", "type": "text", "text": {"body": "x"}}]}}]}
	]}`
	b := Parse([]byte(body))
	if b.PhoneNumberID != "P" || len(b.Events) != 1 {
		t.Fatalf("unexpected %+v", b)
	}
}
