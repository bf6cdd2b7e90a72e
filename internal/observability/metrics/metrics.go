// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "giftcard_bot"

// Issuer outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics groups the bot's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	updates       *prometheus.CounterVec
	redemptions   prometheus.Counter
	issuer        *prometheus.CounterVec
	ledgerWrites  prometheus.Counter
	rateLimited   prometheus.Counter
	dispatchTimes prometheus.Histogram
}

// New registers the collectors on a fresh registry. countFn feeds the redeemed-users gauge
// and may be nil.
func New(countFn func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Updates received from Telegram by chat type.",
		}, []string{"chat_type"}),
		redemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Gift cards issued and recorded since start.",
		}),
		issuer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuer",
			Name:      "requests_total",
			Help:      "Card issuer requests by outcome.",
		}, []string{"outcome"}),
		ledgerWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_failures_total",
			Help:      "Ledger writes that failed after a card was issued.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "rate_limited_total",
			Help:      "Private messages dropped by the per-user rate limiter.",
		}),
		dispatchTimes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "handle_seconds",
			Help:      "Time spent handling one update.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.updates,
		m.redemptions,
		m.issuer,
		m.ledgerWrites,
		m.rateLimited,
		m.dispatchTimes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if countFn != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "redeemed_users",
			Help:      "Users currently recorded as having received a card.",
		}, func() float64 { return float64(countFn()) }))
	}
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveUpdate(chatType string) {
	if m == nil {
		return
	}
	if chatType == "" {
		chatType = "none"
	}
	m.updates.WithLabelValues(chatType).Inc()
}

func (m *Metrics) ObserveRedemption() {
	if m == nil {
		return
	}
	m.redemptions.Inc()
}

func (m *Metrics) ObserveIssuer(outcome string) {
	if m == nil {
		return
	}
	m.issuer.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLedgerWriteFailure() {
	if m == nil {
		return
	}
	m.ledgerWrites.Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveHandleSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTimes.Observe(seconds)
}
