package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vantage"

// Collector holds all metrics for the service. A nil *Collector is valid and records nothing.
type Collector struct {
	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Trust score metrics
	calculations        *prometheus.CounterVec
	calculationDuration prometheus.Histogram
	resolverQueueDepth  prometheus.Gauge
	ledgersRefilled     prometheus.Counter

	// Marketplace metrics
	itemsCreated *prometheus.CounterVec
	purchases    *prometheus.CounterVec

	// Event metrics
	eventsPublished *prometheus.CounterVec
}

// NewCollector registers every metric with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust_score",
			Name:      "calculations_total",
			Help:      "Trust score calculation requests by tier and outcome",
		}, []string{"tier", "outcome"}),
		calculationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trust_score",
			Name:      "calculation_duration_seconds",
			Help:      "Time taken by the resolver to score a request",
			Buckets:   prometheus.DefBuckets,
		}),
		resolverQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trust_score",
			Name:      "resolver_queue_depth",
			Help:      "Calculation requests waiting for a resolver worker",
		}),
		ledgersRefilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust_score",
			Name:      "ledgers_refilled_total",
			Help:      "Quota ledgers reset to their tier allowance",
		}),

		itemsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "items_created_total",
			Help:      "Listing creation attempts by outcome",
		}, []string{"outcome"}),
		purchases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "purchases_total",
			Help:      "Purchase attempts by outcome",
		}, []string{"outcome"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events by type and outcome",
		}, []string{"type", "outcome"}),
	}
}

// RecordHTTPRequest records a completed HTTP request
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCalculation counts a calculation outcome: accepted, denied, completed or failed
func (c *Collector) RecordCalculation(tier, outcome string) {
	if c == nil {
		return
	}
	c.calculations.WithLabelValues(tier, outcome).Inc()
}

// ObserveCalculationDuration records resolver latency
func (c *Collector) ObserveCalculationDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.calculationDuration.Observe(d.Seconds())
}

// SetResolverQueueDepth reports pending resolver work
func (c *Collector) SetResolverQueueDepth(n int) {
	if c == nil {
		return
	}
	c.resolverQueueDepth.Set(float64(n))
}

// AddLedgersRefilled counts refilled ledgers
func (c *Collector) AddLedgersRefilled(n int64) {
	if c == nil {
		return
	}
	c.ledgersRefilled.Add(float64(n))
}

// RecordItemCreated counts a listing creation outcome
func (c *Collector) RecordItemCreated(outcome string) {
	if c == nil {
		return
	}
	c.itemsCreated.WithLabelValues(outcome).Inc()
}

// RecordPurchase counts a purchase outcome
func (c *Collector) RecordPurchase(outcome string) {
	if c == nil {
		return
	}
	c.purchases.WithLabelValues(outcome).Inc()
}

// RecordEvent counts a published or failed domain event
func (c *Collector) RecordEvent(eventType string, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}
