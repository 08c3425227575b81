package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the metrics instruments.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes application-level instruments for PDF operations.
type Metrics struct {
	operations       *prometheus.CounterVec
	creditsConsumed  *prometheus.CounterVec
	paymentEvents    *prometheus.CounterVec
	rateLimitAllowed prometheus.Counter
	rateLimitDenied  prometheus.Counter
}

func New(cfg Config) *Metrics {
	return newMetrics(prometheus.DefaultRegisterer, cfg)
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := prometheus.Labels{
		"service": orDefault(cfg.ServiceName, "papermill"),
		"env":     orDefault(cfg.Environment, "unknown"),
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "papermill_pdf_operations_total",
		Help:        "PDF operations by type, outcome and access type.",
		ConstLabels: constLabels,
	}, []string{"operation", "status", "access_type"})
	creditsConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "papermill_one_time_credits_total",
		Help:        "One-time credit consumption attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "papermill_payment_events_total",
		Help:        "Payment webhook events by provider and type.",
		ConstLabels: constLabels,
	}, []string{"provider", "event_type"})
	rateLimitAllowed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "papermill_rate_limit_allowed_total",
		Help:        "Requests admitted by the anonymous-operation limiter.",
		ConstLabels: constLabels,
	})
	rateLimitDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "papermill_rate_limit_denied_total",
		Help:        "Requests rejected by the anonymous-operation limiter.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(operations, creditsConsumed, paymentEvents, rateLimitAllowed, rateLimitDenied)

	return &Metrics{
		operations:       operations,
		creditsConsumed:  creditsConsumed,
		paymentEvents:    paymentEvents,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}
}

// RecordOperation increments the operation counter.
func (m *Metrics) RecordOperation(operation, status, accessType string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(sanitize(operation), sanitize(status), sanitize(accessType)).Inc()
}

// RecordCreditConsumption increments one-time credit counts by result.
func (m *Metrics) RecordCreditConsumption(result string) {
	if m == nil {
		return
	}
	m.creditsConsumed.WithLabelValues(sanitize(result)).Inc()
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(sanitize(provider), sanitize(eventType)).Inc()
}

// RecordRateLimit increments limiter outcome counters.
func (m *Metrics) RecordRateLimit(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.rateLimitAllowed.Inc()
		return
	}
	m.rateLimitDenied.Inc()
}

func sanitize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
