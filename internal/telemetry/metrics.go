package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingressCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "subscriber_ingress_total", Help: "Messages received from device transports."},
		[]string{"mac"},
	)
	commitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "subscriber_commit_total", Help: "Readings committed to storage."},
		[]string{"mac"},
	)
	duplicateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "duplicates_total", Help: "Redelivered messages collapsed by the idempotency key."},
		[]string{"mac"},
	)
	deadLetterCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dead_letters_total", Help: "Messages routed to the dead letter table."},
		[]string{"reason"},
	)
	reconnectCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "subscriber_reconnects_total", Help: "Connector reconnect events."},
		[]string{"mac"},
	)
	retryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "subscriber_retries_total", Help: "Connector start/read retries."},
		[]string{"mac", "reason"},
	)
	activeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "subscriber_active_total", Help: "Live connector count."},
	)
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "device_api_requests_total", Help: "API requests by endpoint and status label."},
		[]string{"endpoint", "status"},
	)
	apiLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "device_api_latency_seconds",
			Help:    "API request duration.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		ingressCounter, commitCounter, duplicateCounter, deadLetterCounter,
		reconnectCounter, retryCounter, activeSubscribers, apiRequests, apiLatency,
	)
}

func RecordIngress(mac string) { ingressCounter.WithLabelValues(mac).Inc() }

func RecordCommit(mac string) { commitCounter.WithLabelValues(mac).Inc() }

func RecordDuplicate(mac string) { duplicateCounter.WithLabelValues(mac).Inc() }

func RecordDeadLetter(reason string) { deadLetterCounter.WithLabelValues(reason).Inc() }

func RecordReconnect(mac string) { reconnectCounter.WithLabelValues(mac).Inc() }

func RecordRetry(mac, reason string) { retryCounter.WithLabelValues(mac, reason).Inc() }

func SetActiveSubscribers(n int) { activeSubscribers.Set(float64(n)) }

func ObserveAPI(endpoint, status string, seconds float64) {
	apiRequests.WithLabelValues(endpoint, status).Inc()
	apiLatency.WithLabelValues(endpoint).Observe(seconds)
}
