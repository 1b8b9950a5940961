package realtime

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"sync"
	"time"

	"warelay/internal/domain"
	"warelay/internal/observability"
)

const (
	DefaultQueueSize = 1000
	DefaultHeartbeat = 25 * time.Second

	// RetryFrame tells EventSource clients to reconnect after one second.
	RetryFrame = "retry: 1000\n\n"
	PingFrame  = "event: ping\ndata: {}\n\n"

	channelSep = "|"
)

// ChannelKey joins a tenant id and a subscriber address into a channel name.
func ChannelKey(tenant, address string) string {
	return tenant + channelSep + address
}

type EventType string

const (
	TypeMessage EventType = "message"
	TypeStatus  EventType = "status"
)

// Event is the JSON object pushed to viewers.
type Event struct {
	Type          EventType            `json:"type"`
	Direction     domain.Direction     `json:"direction,omitempty"`
	MsgType       string               `json:"msg_type,omitempty"`
	Text          string               `json:"text,omitempty"`
	Template      *domain.Template     `json:"template,omitempty"`
	ExternalMsgID string               `json:"external_msg_id,omitempty"`
	Status        domain.MessageStatus `json:"status,omitempty"`
	CreatedAt     string               `json:"created_at"`
}

// Broadcaster fans events out to per-channel subscriber queues. Publish never
// blocks: a full queue loses the event for that subscriber only.
type Broadcaster struct {
	QueueSize int
	Heartbeat time.Duration

	mu       sync.RWMutex
	channels map[string]map[uint64]chan []byte
	nextID   uint64
}

func New() *Broadcaster {
	return &Broadcaster{
		QueueSize: DefaultQueueSize,
		Heartbeat: DefaultHeartbeat,
		channels:  make(map[string]map[uint64]chan []byte),
	}
}

func (b *Broadcaster) Publish(channel string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("realtime marshal failed", "err", err, "channel", channel)
		return
	}

	b.mu.RLock()
	subs := make([]chan []byte, 0, len(b.channels[channel]))
	for _, q := range b.channels[channel] {
		subs = append(subs, q)
	}
	b.mu.RUnlock()

	for _, q := range subs {
		select {
		case q <- payload:
		default:
			observability.RealtimeDropped.Inc()
		}
	}
}

// Subscribe returns a lazy stream of SSE frames for channel. The queue is
// registered when iteration starts and removed when it stops for any reason.
// The first frame is a reconnect hint. A ping frame is emitted whenever the
// channel stays quiet for the heartbeat interval.
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) iter.Seq[string] {
	return func(yield func(string) bool) {
		id, q := b.register(channel)
		defer b.unregister(channel, id)

		if !yield(RetryFrame) {
			return
		}

		hb := b.Heartbeat
		if hb <= 0 {
			hb = DefaultHeartbeat
		}
		timer := time.NewTimer(hb)
		defer timer.Stop()

		for {
			var frame string
			select {
			case <-ctx.Done():
				return
			case payload := <-q:
				frame = "data: " + string(payload) + "\n\n"
			case <-timer.C:
				frame = PingFrame
			}
			if !yield(frame) {
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(hb)
		}
	}
}

// SubscriberCount reports live subscribers on channel.
func (b *Broadcaster) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *Broadcaster) register(channel string) (uint64, chan []byte) {
	size := b.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := make(chan []byte, size)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels == nil {
		b.channels = make(map[string]map[uint64]chan []byte)
	}
	id := b.nextID
	b.nextID++
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[uint64]chan []byte)
	}
	b.channels[channel][id] = q
	observability.RealtimeSubscribers.Inc()
	return id, q
}

func (b *Broadcaster) unregister(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.channels[channel]
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.channels, channel)
	}
	observability.RealtimeSubscribers.Dec()
}
