package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_webhook_events_total", Help: "Normalized webhook events"},
		[]string{"kind"},
	)
	GraphSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whatsapp_send_total", Help: "Graph API send outcomes"},
		[]string{"result", "http_status"},
	)
	GraphLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "whatsapp_send_latency_seconds", Help: "Graph API send latency"},
	)
	StatusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_status_updates_total", Help: "Delivery status handling outcomes"},
		[]string{"result"},
	)
	RealtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_realtime_dropped_total", Help: "Events dropped on full subscriber queues"},
	)
	RealtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_realtime_subscribers", Help: "Connected realtime subscribers"},
	)
	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_sessions_expired_total", Help: "Sessions removed by the sweeper"},
	)
	SessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_sessions_live", Help: "Sessions held in memory"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		APIRequests, WebhookEvents, GraphSend, GraphLatency, StatusUpdates,
		RealtimeDropped, RealtimeSubscribers, SessionsExpired, SessionsLive,
	)
}
