package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"warelay/internal/domain"
	"warelay/internal/observability"
	"warelay/internal/providers/whatsapp"
	"warelay/internal/realtime"
	"warelay/internal/store"
	"warelay/internal/util"
)

type Store interface {
	InsertMessage(ctx context.Context, in store.MessageInsert) error
}

type Sender interface {
	Send(ctx context.Context, phoneNumberID string, a domain.Action) (whatsapp.SendResult, error)
}

type Publisher interface {
	Publish(channel string, ev realtime.Event)
}

// Dispatcher sends automation replies off the request path. Actions in one
// batch go out in order, paced by their delay. Failures are logged and the
// batch carries on; nothing is retried.
type Dispatcher struct {
	Store     Store
	Sender    Sender
	Publisher Publisher

	DefaultDelay time.Duration
	SendTimeout  time.Duration
	Limiter      *rate.Limiter
	Breaker      *gobreaker.CircuitBreaker

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	IDGen func() string

	wg sync.WaitGroup
}

// Report summarizes one batch run.
type Report struct {
	Sent    int
	Failed  int
	Skipped int
}

// Sent is what a successful send produced.
type Sent struct {
	Message store.Message
	Result  whatsapp.SendResult
}

// Dispatch runs the batch in its own goroutine and returns immediately.
// The run is detached from any request context and always finishes.
func (d *Dispatcher) Dispatch(tenant string, actions []domain.Action) {
	if len(actions) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("dispatch panic", "tenant_id", tenant, "panic", r)
			}
		}()
		start := time.Now()
		rep := d.Run(context.Background(), tenant, actions)
		slog.Info("dispatch finish",
			"tenant_id", tenant,
			"sent", rep.Sent,
			"failed", rep.Failed,
			"skipped", rep.Skipped,
			"duration", time.Since(start),
		)
	}()
}

// Wait blocks until every dispatched batch has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Run executes a batch synchronously.
func (d *Dispatcher) Run(ctx context.Context, tenant string, actions []domain.Action) Report {
	var rep Report
	for i, a := range actions {
		if a.To == "" {
			rep.Skipped++
			slog.Warn("dispatch skip action without recipient", "tenant_id", tenant, "index", i)
			continue
		}
		if i > 0 {
			wait := d.DefaultDelay
			if a.Delay != nil {
				wait = time.Duration(*a.Delay) * time.Second
			}
			if wait > 0 {
				if err := d.sleep(ctx, wait); err != nil {
					slog.Warn("dispatch wait interrupted", "tenant_id", tenant, "index", i, "err", err)
				}
			}
		}
		if _, err := d.Send(ctx, tenant, a); err != nil {
			rep.Failed++
			slog.Error("dispatch send failed",
				"tenant_id", tenant,
				"index", i,
				"to", util.MaskPhone(a.To),
				"kind", a.Kind(),
				"err", err,
			)
			continue
		}
		rep.Sent++
	}
	return rep
}

// Send delivers one action, records it and notifies live viewers. A failed
// send records nothing. A failed insert is logged but the event is still
// published since the message did leave.
func (d *Dispatcher) Send(ctx context.Context, tenant string, a domain.Action) (Sent, error) {
	res, err := d.call(ctx, tenant, a)
	if err != nil {
		return Sent{}, err
	}

	now := d.now()
	in := store.MessageInsert{
		ID:            d.newID(),
		TenantID:      tenant,
		Phone:         a.To,
		Direction:     domain.DirectionOutbound,
		ExternalMsgID: res.ExternalID,
		Status:        string(domain.StatusSent),
		CreatedAt:     now,
	}
	switch a.Kind() {
	case domain.ActionTemplate:
		in.AttachmentsMeta = map[string]any{"template": a.Template}
	default:
		in.Text = a.Text
	}
	if !res.DryRun {
		in.RawPayload = res.Raw
	}
	if err := d.Store.InsertMessage(ctx, in); err != nil {
		slog.Error("dispatch persist failed",
			"tenant_id", tenant,
			"to", util.MaskPhone(a.To),
			"external_msg_id", res.ExternalID,
			"err", err,
		)
	}

	ev := realtime.Event{
		Type:          realtime.TypeMessage,
		Direction:     domain.DirectionOutbound,
		MsgType:       string(a.Kind()),
		Text:          in.Text,
		Template:      a.Template,
		ExternalMsgID: res.ExternalID,
		Status:        domain.StatusSent,
		CreatedAt:     util.FormatTime(now),
	}
	if d.Publisher != nil {
		d.Publisher.Publish(realtime.ChannelKey(tenant, a.To), ev)
	}

	msg := store.Message{
		ID:            in.ID,
		TenantID:      tenant,
		Phone:         a.To,
		Direction:     domain.DirectionOutbound,
		Text:          in.Text,
		ExternalMsgID: res.ExternalID,
		Status:        in.Status,
		CreatedAt:     ev.CreatedAt,
	}
	return Sent{Message: msg, Result: res}, nil
}

func (d *Dispatcher) call(ctx context.Context, tenant string, a domain.Action) (whatsapp.SendResult, error) {
	if d.Limiter != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
		err := d.Limiter.Wait(waitCtx)
		cancelWait()
		if err != nil {
			observability.GraphSend.WithLabelValues("rate_limited_local", "0").Inc()
			return whatsapp.SendResult{}, err
		}
	}

	start := time.Now()
	res, err := d.executeWithBreaker(ctx, tenant, a)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.GraphSend.WithLabelValues("cb_open", "0").Inc()
		return whatsapp.SendResult{}, err
	}
	if err != nil {
		status := res.HTTPStatus
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.HTTPStatus
		}
		observability.GraphSend.WithLabelValues("error", strconv.Itoa(status)).Inc()
		return whatsapp.SendResult{}, err
	}

	result := "ok"
	if res.DryRun {
		result = "dry_run"
	}
	observability.GraphSend.WithLabelValues(result, strconv.Itoa(res.HTTPStatus)).Inc()
	observability.GraphLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

func (d *Dispatcher) executeWithBreaker(ctx context.Context, tenant string, a domain.Action) (whatsapp.SendResult, error) {
	call := func() (any, error) {
		reqCtx := ctx
		if d.SendTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, d.SendTimeout)
			defer cancel()
		}
		return d.Sender.Send(reqCtx, tenant, a)
	}

	if d.Breaker == nil {
		res, err := call()
		return res.(whatsapp.SendResult), err
	}
	res, err := d.Breaker.Execute(call)
	if err != nil {
		return whatsapp.SendResult{}, err
	}
	return res.(whatsapp.SendResult), nil
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, wait)
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return util.NowUTC()
}

func (d *Dispatcher) newID() string {
	if d.IDGen != nil {
		return d.IDGen()
	}
	return util.NewMessageID()
}
