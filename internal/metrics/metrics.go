// Package metrics holds mediabot's prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediabot"

// Delivery targets and outcomes used as label values.
const (
	TargetPrimary    = "primary"
	TargetSubscriber = "subscriber"

	OutcomeDelivered  = "delivered"
	OutcomeUnresolved = "unresolved"
	OutcomeFailed     = "failed"
)

type Metrics struct {
	reg *prometheus.Registry

	webhookEvents  *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	subscriptionOp *prometheus.CounterVec
	dispatchDur    prometheus.Histogram
	subscriptions  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.webhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Recently-added webhooks received, by media type and result",
	}, []string{"media_type", "result"})
	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Notification deliveries, by target kind and outcome",
	}, []string{"target", "outcome"})
	m.subscriptionOp = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_ops_total",
		Help:      "Keyword subscription operations, by op and result",
	}, []string{"op", "result"})
	m.dispatchDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time from render to the last fan-out delivery",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions",
		Help:      "Keyword subscriptions seen by the last dispatch",
	})

	m.reg.MustRegister(
		m.webhookEvents, m.deliveries, m.subscriptionOp, m.dispatchDur, m.subscriptions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WebhookEvent counts one webhook; result is "dispatched", "empty",
// "invalid" or "unauthorized".
func (m *Metrics) WebhookEvent(mediaType, result string) {
	if m == nil {
		return
	}
	if mediaType == "" {
		mediaType = "none"
	}
	m.webhookEvents.WithLabelValues(mediaType, result).Inc()
}

func (m *Metrics) Delivery(target, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(target, outcome).Inc()
}

// SubscriptionOp counts add/remove/list; err nil is "ok".
func (m *Metrics) SubscriptionOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.subscriptionOp.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration, subscriptions int) {
	if m == nil {
		return
	}
	m.dispatchDur.Observe(d.Seconds())
	m.subscriptions.Set(float64(subscriptions))
}
