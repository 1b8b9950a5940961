// Package tenants maps business numbers to the automation that answers them.
package tenants

import (
	"strings"
	"unicode"

	"warelay/internal/domain"
	"warelay/internal/session"
)

// Sessions is the part of the session store automations may use.
type Sessions interface {
	Get(tenant, address string) (session.Session, bool)
	SetState(tenant, address string, st session.State)
	SetContext(tenant, address string, updates map[string]any)
}

// Request is everything an automation sees for one webhook delivery.
type Request struct {
	TenantID string
	Events   []domain.Event
	Sessions Sessions
}

// Automation turns events into outbound actions. It runs on the request
// path and must return quickly.
type Automation interface {
	Respond(req Request) []domain.Action
}

type AutomationFunc func(req Request) []domain.Action

func (f AutomationFunc) Respond(req Request) []domain.Action { return f(req) }

// texts yields the text events that have a sender, with trimmed bodies.
func texts(events []domain.Event) []domain.TextEvent {
	var out []domain.TextEvent
	for _, ev := range events {
		te, ok := ev.(domain.TextEvent)
		if !ok || te.From == "" {
			continue
		}
		te.Text = strings.TrimSpace(te.Text)
		out = append(out, te)
	}
	return out
}

func isGreeting(norm string) bool {
	switch norm {
	case "oi", "olá", "ola":
		return true
	}
	return false
}

// titleCase upper-cases the first letter of every word and lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}
