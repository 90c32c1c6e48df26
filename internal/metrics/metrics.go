package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks the money-moving paths. A nil *Collector is valid and
// records nothing, so services can be constructed without metrics in tests.
type Collector struct {
	registry             *prometheus.Registry
	settlementsProcessed prometheus.Counter
	settlementsFailed    prometheus.Counter
	settlementDuration   prometheus.Histogram
	topUpDecisions       *prometheus.CounterVec
	cardsIssued          prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		settlementsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "settlements_processed_total",
			Help: "Total number of committed settlements",
		}),
		settlementsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "settlements_failed_total",
			Help: "Total number of rejected or failed settlements",
		}),
		settlementDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Time taken to settle a payment",
			Buckets: prometheus.DefBuckets,
		}),
		topUpDecisions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "topup_decisions_total",
			Help: "Top-up requests considered, by decision",
		}, []string{"decision"}),
		cardsIssued: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "cards_issued_total",
			Help: "Total number of cards issued",
		}),
	}
}

func (c *Collector) RecordSettlement(duration time.Duration, success bool) {
	if c == nil {
		return
	}
	if success {
		c.settlementsProcessed.Inc()
	} else {
		c.settlementsFailed.Inc()
	}
	c.settlementDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordTopUpDecision(decision string) {
	if c == nil {
		return
	}
	c.topUpDecisions.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordCardIssued() {
	if c == nil {
		return
	}
	c.cardsIssued.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
