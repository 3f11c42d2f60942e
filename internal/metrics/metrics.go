package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	ChatMessages       *prometheus.CounterVec
	LiveDeliveries     *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	MalformedFrames    prometheus.Counter
	WebhookEvents      *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	GatewayRequests    *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_messages_total",
				Help:      "Total chat messages persisted by kind.",
			}, []string{"kind"}),
			LiveDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_live_deliveries_total",
				Help:      "Live delivery attempts by outcome.",
			}, []string{"outcome"}),
			ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chat_active_connections",
				Help:      "Authenticated websocket connections held by this process.",
			}),
			MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_malformed_frames_total",
				Help:      "Inbound websocket frames that could not be decoded.",
			}),
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flutterwave_webhook_events_total",
				Help:      "Payment gateway webhook deliveries by result.",
			}, []string{"result"}),
			PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_transitions_total",
				Help:      "Payment state transitions by kind and target status.",
			}, []string{"kind", "status"}),
			GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flutterwave_requests_total",
				Help:      "Total Flutterwave API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flutterwave_request_duration_seconds",
				Help:      "Latency distribution for Flutterwave API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP API requests by route pattern and status code.",
			}, []string{"route", "code"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.ChatMessages,
			metricsInstance.LiveDeliveries,
			metricsInstance.ActiveConnections,
			metricsInstance.MalformedFrames,
			metricsInstance.WebhookEvents,
			metricsInstance.PaymentTransitions,
			metricsInstance.GatewayRequests,
			metricsInstance.GatewayLatency,
			metricsInstance.HTTPRequests,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
