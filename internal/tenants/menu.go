package tenants

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"warelay/internal/domain"
	"warelay/internal/session"
)

const (
	DefaultMenuGreeting = "Olá! Sou o assistente da Cliente X. Como posso ajudar?"

	ctxName            = "name"
	ctxProfileName     = "profile_name"
	ctxMenuSelected    = "menu_selected"
	ctxHandoff         = "handoff_requested"
	ctxLastSupportDesc = "last_support_desc"
)

var (
	yesRe      = regexp.MustCompile(`^(s|sim|ok|isso|pode|claro)\b`)
	noRe       = regexp.MustCompile(`^(n|nao|não|negativo)\b`)
	scheduleRe = regexp.MustCompile(`\bagend(ar|o)\b`)
	choiceRe   = regexp.MustCompile(`^[123]$`)
)

// Menu is the stateful menu flow. It drives the session state machine:
// menu selection, name capture and confirmation, support intake and handoff.
type Menu struct {
	Greeting     string
	WorkingHours string
}

// ContextProfileName is the session key the relay fills from the contact profile.
const ContextProfileName = ctxProfileName

func (m Menu) Respond(req Request) []domain.Action {
	var out []domain.Action
	for _, te := range texts(req.Events) {
		out = append(out, m.step(req, te)...)
	}
	return out
}

func (m Menu) step(req Request, te domain.TextEvent) []domain.Action {
	tenant, to := req.TenantID, te.From
	txt := te.Text
	norm := strings.ToLower(txt)

	var sess session.Session
	if req.Sessions != nil {
		sess, _ = req.Sessions.Get(tenant, to)
	}
	state := sess.State
	if state == "" {
		state = session.Idle
	}
	name := sess.ContextString(ctxName)
	profile := sess.ContextString(ctxProfileName)

	setState := func(st session.State) {
		if req.Sessions != nil {
			req.Sessions.SetState(tenant, to, st)
		}
	}
	setCtx := func(kv map[string]any) {
		if req.Sessions != nil {
			req.Sessions.SetContext(tenant, to, kv)
		}
	}
	say := func(msgs ...string) []domain.Action {
		out := make([]domain.Action, 0, len(msgs))
		for _, t := range msgs {
			out = append(out, domain.TextAction(to, t))
		}
		return out
	}

	switch norm {
	case "oi", "olá", "ola", "bom dia", "boa tarde", "boa noite":
		return say(m.greeting())
	}
	if hoursRe.MatchString(norm) {
		return say(m.hours())
	}

	if norm == "menu" {
		setState(session.AwaitingMenuSelection)
		return say(menuText(name))
	}
	if templateRe.MatchString(norm) {
		return []domain.Action{domain.TemplateAction(to, "hello_world", "en_US")}
	}

	// Offer the WhatsApp profile name once, unless a command matched or
	// another prompt is pending.
	if name == "" && profile != "" && !collecting(state) {
		setState(session.AwaitingNameConfirm)
		return say(fmt.Sprintf("Posso te chamar de %s? Se preferir outro nome, me diga 🙂", profile))
	}

	if state == session.AwaitingMenuSelection && choiceRe.MatchString(norm) {
		setCtx(map[string]any{ctxMenuSelected: norm})
		switch norm {
		case "1":
			setState(session.AwaitingName)
			return say("Legal! Para começar, qual é o seu nome?")
		case "2":
			setState(session.AwaitingSupportDesc)
			return say("Certo! Descreva brevemente o problema e mande anexo se quiser.")
		default:
			setState(session.Escalated)
			setCtx(map[string]any{ctxHandoff: true})
			return say("Ok! Vou te conectar com uma pessoa da equipe. Aguarde um instante.")
		}
	}

	switch state {
	case session.AwaitingNameConfirm:
		if yesRe.MatchString(norm) && profile != "" {
			setCtx(map[string]any{ctxName: profile})
			setState(session.Idle)
			return say("Perfeito, "+profile+"!", menuText(profile))
		}
		if !noRe.MatchString(norm) && looksLikeName(txt) {
			captured := titleCase(txt)
			setCtx(map[string]any{ctxName: captured})
			setState(session.Idle)
			return say("Ótimo! Prazer, "+captured+".", menuText(captured))
		}
		return say("Perdão, não entendi. Posso te chamar pelo nome que aparece no WhatsApp, " +
			profile + "? Se preferir, me diga como devo chamar você.")

	case session.AwaitingName:
		captured := titleCase(txt)
		setCtx(map[string]any{ctxName: captured})
		setState(session.Idle)
		return say("Prazer, "+captured+"! Posso te ajudar com um orçamento.", menuText(captured))

	case session.AwaitingSupportDesc:
		setCtx(map[string]any{ctxLastSupportDesc: txt})
		setState(session.Idle)
		return say("Obrigado! Registrei sua descrição. Em breve retornaremos.", menuText(name))
	}

	if scheduleRe.MatchString(norm) {
		return say(
			"Aqui está o link para sugerir um horário: https://calendar.google.com/",
			"Quando concluir, me avise aqui que eu confirmo.",
		)
	}
	return say(MsgAck + " Digite 'menu' para ver opções.")
}

func (m Menu) greeting() string {
	if m.Greeting != "" {
		return m.Greeting
	}
	return DefaultMenuGreeting
}

func (m Menu) hours() string {
	if m.WorkingHours != "" {
		return m.WorkingHours
	}
	return MsgHours
}

func collecting(st session.State) bool {
	switch st {
	case session.AwaitingName, session.AwaitingNameConfirm, session.AwaitingMenuSelection, session.AwaitingSupportDesc:
		return true
	}
	return false
}

func menuText(name string) string {
	prefix := "Menu Cliente X:\n"
	if name != "" {
		prefix = name + ", segue o menu:\n"
	}
	return prefix + "1) Orçamento\n2) Suporte\n3) Falar com humano"
}

func looksLikeName(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
