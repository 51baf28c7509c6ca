// Package metrics exposes prometheus counters for the bid path, the
// notifier fan-out and durability sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what services and the session hub record into.
type MetricsCollector interface {
	RecordBidOutcome(outcome string)
	RecordBidLatency(d time.Duration)
	RecordEventPublished()
	RecordDeliveryFailure()
	RecordSyncFailure()
	SessionOpened()
	SessionClosed()
}

type Collector struct {
	bids             *prometheus.CounterVec
	bidLatency       prometheus.Histogram
	eventsPublished  prometheus.Counter
	deliveryFailures prometheus.Counter
	syncFailures     prometheus.Counter
	sessions         prometheus.Gauge
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidding_bids_total",
			Help: "Bid evaluations by outcome",
		}, []string{"outcome"}),
		bidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bidding_bid_evaluation_seconds",
			Help:    "Latency of a bid evaluation including publish",
			Buckets: prometheus.DefBuckets,
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_change_events_published_total",
			Help: "Change events handed to the notifier",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_delivery_failures_total",
			Help: "Per-session forwarding failures",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_sync_failures_total",
			Help: "Durability sync writes that failed or were dropped",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bidding_sessions_active",
			Help: "Live observer sessions",
		}),
	}

	reg.MustRegister(
		c.bids,
		c.bidLatency,
		c.eventsPublished,
		c.deliveryFailures,
		c.syncFailures,
		c.sessions,
	)

	return c
}

func (c *Collector) RecordBidOutcome(outcome string) {
	c.bids.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordBidLatency(d time.Duration) {
	c.bidLatency.Observe(d.Seconds())
}

func (c *Collector) RecordEventPublished() {
	c.eventsPublished.Inc()
}

func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFailures.Inc()
}

func (c *Collector) RecordSyncFailure() {
	c.syncFailures.Inc()
}

func (c *Collector) SessionOpened() {
	c.sessions.Inc()
}

func (c *Collector) SessionClosed() {
	c.sessions.Dec()
}

// Handler serves the registry in the prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordBidOutcome(string) {}
func (Nop) RecordBidLatency(time.Duration) {}
func (Nop) RecordEventPublished() {}
func (Nop) RecordDeliveryFailure() {}
func (Nop) RecordSyncFailure() {}
func (Nop) SessionOpened() {}
func (Nop) SessionClosed() {}
