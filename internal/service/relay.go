// Package service wires normalized webhook events to sessions, storage,
// automations and the outbound dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warelay/internal/domain"
	"warelay/internal/normalize"
	"warelay/internal/observability"
	"warelay/internal/realtime"
	"warelay/internal/session"
	"warelay/internal/store"
	"warelay/internal/tenants"
	"warelay/internal/util"
)

type Store interface {
	InsertMessage(ctx context.Context, in store.MessageInsert) error
	UpdateStatusByExternalID(ctx context.Context, externalID, status string) (int64, error)
	HasProcessedID(ctx context.Context, externalID string) (bool, error)
	AddProcessedID(ctx context.Context, externalID string, now time.Time) (bool, error)
}

// ProcessedCache is an optional fast path in front of the durable dedupe set.
type ProcessedCache interface {
	Seen(ctx context.Context, externalID string) (bool, error)
	Mark(ctx context.Context, externalID string) (bool, error)
}

type Dispatcher interface {
	Dispatch(tenant string, actions []domain.Action)
}

type Publisher interface {
	Publish(channel string, ev realtime.Event)
}

type Resolver interface {
	Resolve(tenant string) (tenants.Automation, string)
}

type Relay struct {
	Sessions   *session.Store
	Registry   Resolver
	Dispatcher Dispatcher
	Store      Store
	Publisher  Publisher
	Cache      ProcessedCache

	// DefaultTenant stands in for deliveries that carry no phone_number_id.
	DefaultTenant string

	Now   func() time.Time
	IDGen func() string
}

// Outcome is what one webhook delivery produced.
type Outcome struct {
	TenantID   string
	Automation string
	Events     []domain.Event
	Actions    []domain.Action
}

// HandleWebhook processes one raw delivery. Internal failures are logged and
// never returned: the caller always acknowledges the webhook.
func (r *Relay) HandleWebhook(ctx context.Context, body []byte) Outcome {
	batch := normalize.Parse(body)
	if batch.PhoneNumberID == "" {
		batch.PhoneNumberID = r.DefaultTenant
	}
	out := Outcome{TenantID: batch.PhoneNumberID}

	var fresh []domain.Event
	for _, ev := range batch.Events {
		observability.WebhookEvents.WithLabelValues(string(ev.Kind())).Inc()
		switch e := ev.(type) {
		case domain.StatusEvent:
			r.applyStatus(ctx, batch.PhoneNumberID, e)
			fresh = append(fresh, e)
		case domain.TextEvent:
			if r.recordInbound(ctx, batch.PhoneNumberID, e) {
				fresh = append(fresh, e)
			}
		default:
			if addr := ev.Sender(); addr != "" && r.Sessions != nil {
				r.Sessions.Touch(batch.PhoneNumberID, addr, "")
			}
			fresh = append(fresh, ev)
		}
	}
	out.Events = fresh

	actions, name, err := r.decide(batch.PhoneNumberID, fresh)
	out.Automation = name
	if err != nil {
		slog.Error("webhook automation failed", "tenant_id", batch.PhoneNumberID, "automation", name, "err", err)
		return out
	}
	out.Actions = actions
	if len(actions) == 0 {
		return out
	}

	decisions := make([]string, 0, len(actions))
	for _, a := range actions {
		decisions = append(decisions, fmt.Sprintf("%s:%s", util.MaskPhone(a.To), a.Kind()))
	}
	slog.Info("webhook decisions",
		"tenant_id", batch.PhoneNumberID,
		"automation", name,
		"actions", decisions,
	)
	if r.Dispatcher != nil {
		r.Dispatcher.Dispatch(batch.PhoneNumberID, actions)
	}
	return out
}

// Simulate runs the automation for events without touching storage or
// sending anything. Sessions still advance.
func (r *Relay) Simulate(tenant string, events []domain.Event) ([]domain.Action, string, error) {
	for _, ev := range events {
		if addr := ev.Sender(); addr != "" && ev.Kind() != domain.KindStatus && r.Sessions != nil {
			r.Sessions.Touch(tenant, addr, "")
		}
	}
	return r.decide(tenant, events)
}

func (r *Relay) decide(tenant string, events []domain.Event) (actions []domain.Action, name string, err error) {
	if len(events) == 0 || r.Registry == nil {
		return nil, "", nil
	}
	automation, name := r.Registry.Resolve(tenant)
	defer func() {
		if rec := recover(); rec != nil {
			actions = nil
			err = fmt.Errorf("automation %s panicked: %v", name, rec)
		}
	}()
	req := tenants.Request{TenantID: tenant, Events: events}
	if r.Sessions != nil {
		req.Sessions = r.Sessions
	}
	return automation.Respond(req), name, nil
}

// recordInbound persists an inbound text, publishes it and refreshes the
// session. It reports false for a redelivered message id.
func (r *Relay) recordInbound(ctx context.Context, tenant string, e domain.TextEvent) bool {
	if e.From == "" {
		return false
	}
	now := r.now()
	in := store.MessageInsert{
		ID:            r.newID(),
		TenantID:      tenant,
		Phone:         e.From,
		Direction:     domain.DirectionInbound,
		Text:          e.Text,
		ExternalMsgID: e.MsgID,
		CreatedAt:     now,
	}
	if r.Store != nil {
		err := r.Store.InsertMessage(ctx, in)
		if errors.Is(err, store.ErrDuplicate) {
			slog.Info("webhook duplicate inbound message", "tenant_id", tenant, "from", util.MaskPhone(e.From), "msg_id", e.MsgID)
			return false
		}
		if err != nil {
			slog.Error("webhook persist inbound failed", "tenant_id", tenant, "from", util.MaskPhone(e.From), "err", err)
		}
	}

	if r.Publisher != nil {
		r.Publisher.Publish(realtime.ChannelKey(tenant, e.From), realtime.Event{
			Type:          realtime.TypeMessage,
			Direction:     domain.DirectionInbound,
			MsgType:       string(domain.KindText),
			Text:          e.Text,
			ExternalMsgID: e.MsgID,
			CreatedAt:     util.FormatTime(now),
		})
	}

	if r.Sessions != nil {
		r.Sessions.Touch(tenant, e.From, "")
		if e.ProfileName != "" {
			r.Sessions.SetContext(tenant, e.From, map[string]any{tenants.ContextProfileName: e.ProfileName})
		}
	}
	return true
}

// applyStatus updates a message status at most once per external id.
func (r *Relay) applyStatus(ctx context.Context, tenant string, e domain.StatusEvent) {
	log := slog.With(
		"tenant_id", tenant,
		"msg_id", e.MsgID,
		"to", util.MaskPhone(e.Recipient),
		"status", e.Status,
	)
	if len(e.Errors) > 0 {
		log.Error("delivery status failed", "errors", e.Errors)
	} else {
		log.Info("delivery status", "timestamp", e.Timestamp)
	}
	if e.MsgID == "" || r.Store == nil {
		observability.StatusUpdates.WithLabelValues("skipped").Inc()
		return
	}

	seen, err := r.processed(ctx, e.MsgID)
	if err != nil {
		observability.StatusUpdates.WithLabelValues("error").Inc()
		log.Error("status dedupe lookup failed", "err", err)
		return
	}
	if seen {
		observability.StatusUpdates.WithLabelValues("duplicate").Inc()
		log.Info("status duplicate ignored")
		return
	}

	n, err := r.Store.UpdateStatusByExternalID(ctx, e.MsgID, string(e.Status))
	if err != nil {
		observability.StatusUpdates.WithLabelValues("error").Inc()
		log.Error("status update failed", "err", err)
		return
	}
	added, err := r.Store.AddProcessedID(ctx, e.MsgID, r.now())
	if err != nil {
		log.Error("status mark processed failed", "err", err)
	}
	if err == nil && !added {
		// a concurrent delivery got there first
		observability.StatusUpdates.WithLabelValues("duplicate").Inc()
		return
	}
	if r.Cache != nil {
		if _, err := r.Cache.Mark(ctx, e.MsgID); err != nil {
			log.Warn("status cache mark failed", "err", err)
		}
	}

	result := "updated"
	if n == 0 {
		result = "unmatched"
	}
	observability.StatusUpdates.WithLabelValues(result).Inc()

	if r.Publisher != nil {
		r.Publisher.Publish(realtime.ChannelKey(tenant, e.Recipient), realtime.Event{
			Type:          realtime.TypeStatus,
			ExternalMsgID: e.MsgID,
			Status:        e.Status,
			CreatedAt:     util.FormatTime(r.now()),
		})
	}
}

// processed checks the cache first and falls back to the store when the
// cache misses or is unavailable.
func (r *Relay) processed(ctx context.Context, externalID string) (bool, error) {
	if r.Cache != nil {
		seen, err := r.Cache.Seen(ctx, externalID)
		if err != nil {
			slog.Warn("status cache lookup failed", "msg_id", externalID, "err", err)
		} else if seen {
			return true, nil
		}
	}
	return r.Store.HasProcessedID(ctx, externalID)
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return util.NowUTC()
}

func (r *Relay) newID() string {
	if r.IDGen != nil {
		return r.IDGen()
	}
	return util.NewMessageID()
}
