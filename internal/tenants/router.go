package tenants

import (
	"regexp"
	"strings"

	"warelay/internal/domain"
)

const (
	MsgAck   = "Recebi sua mensagem! Já te respondo."
	MsgHours = "Atendemos de seg a sex, 9h às 18h."
)

var (
	hoursRe    = regexp.MustCompile(`\bhor(a|á)rio\b|\bhorario\b`)
	templateRe = regexp.MustCompile(`^template\s+hello$`)
)

// Router is the fallback used when no automation is registered for a number.
// Only text events get an answer.
func Router() Automation {
	return AutomationFunc(func(req Request) []domain.Action {
		var out []domain.Action
		for _, te := range texts(req.Events) {
			norm := strings.ToLower(te.Text)
			switch {
			case isGreeting(norm):
				out = append(out, domain.TextAction(te.From, "Oi! Como posso ajudar?"))
			case hoursRe.MatchString(norm):
				out = append(out, domain.TextAction(te.From, MsgHours))
			case norm == "menu":
				out = append(out, domain.TextAction(te.From, "Menu:\n1) Orçamento\n2) Suporte\n3) Falar com humano"))
			case templateRe.MatchString(norm):
				out = append(out, domain.TemplateAction(te.From, "hello_world", "en_US"))
			default:
				out = append(out, domain.TextAction(te.From, MsgAck))
			}
		}
		return out
	})
}

// Default is the generic bot: greets, sends the demo template, acknowledges.
func Default() Automation {
	return AutomationFunc(func(req Request) []domain.Action {
		var out []domain.Action
		for _, te := range texts(req.Events) {
			norm := strings.ToLower(te.Text)
			switch {
			case isGreeting(norm):
				out = append(out, domain.TextAction(te.From, "Oi! Sou o bot padrão. Como posso ajudar?"))
			case strings.Contains(norm, "template"):
				out = append(out, domain.TemplateAction(te.From, "hello_world", "en_US"))
			default:
				out = append(out, domain.TextAction(te.From, MsgAck))
			}
		}
		return out
	})
}

// Echo repeats every text back, tagged with name.
func Echo(name string) Automation {
	return AutomationFunc(func(req Request) []domain.Action {
		var out []domain.Action
		for _, te := range texts(req.Events) {
			out = append(out, domain.TextAction(te.From, "["+name+"] Você disse: "+te.Text))
		}
		return out
	})
}
