package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// CheckoutMetrics tracks checkout outcomes by error kind ("OK" on success)
// and how long the payment step takes per method.
type CheckoutMetrics struct {
	Outcomes       *prometheus.CounterVec
	PaymentLatency *prometheus.HistogramVec
	Releases       prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		PaymentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "payment_duration_seconds",
			Help:      "Time spent settling payment.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "reservation_releases_total",
			Help:      "Reservations handed back after a failed commit.",
		}),
	}
	reg.MustRegister(m.Outcomes, m.PaymentLatency, m.Releases)
	return m
}

// ProducerMetrics counts messages an async producer could not deliver, per topic.
// For the audit topic these are audit records lost for good.
type ProducerMetrics struct {
	Dropped       *prometheus.CounterVec
	WriteFailures *prometheus.CounterVec
}

func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "dropped_total",
			Help:      "Messages rejected because the producer inbox was full.",
		}, []string{"topic"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "write_failures_total",
			Help:      "Messages the broker did not accept.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.Dropped, m.WriteFailures)
	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
