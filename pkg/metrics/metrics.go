package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solana_swap"

// Metrics instruments the quote and swap lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	QuotesRequested prometheus.Counter
	QuotesFailed    prometheus.Counter
	QuotesStale     prometheus.Counter
	QuoteLatency    prometheus.Histogram
	PriceImpact     prometheus.Gauge

	SwapsSubmitted prometheus.Counter
	SwapsSettled   prometheus.Counter
	SwapsFailed    *prometheus.CounterVec
	SwapsDeclined  prometheus.Counter
	FeeCollected   *prometheus.CounterVec
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QuotesRequested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_requested_total",
			Help:      "Quote requests sent to the aggregator",
		}),
		QuotesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_failed_total",
			Help:      "Quote requests that ended without a route",
		}),
		QuotesStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_stale_total",
			Help:      "Quote responses discarded because newer input arrived",
		}),
		QuoteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Aggregator round trip for a quote",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		PriceImpact: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_impact_percent",
			Help:      "Price impact of the latest applied quote",
		}),
		SwapsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_submitted_total",
			Help:      "Swap submissions started",
		}),
		SwapsSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_settled_total",
			Help:      "Swaps confirmed on chain",
		}),
		SwapsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_failed_total",
			Help:      "Swap submissions that failed, by stage",
		}, []string{"stage"}),
		SwapsDeclined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_declined_total",
			Help:      "Swaps abandoned at the price impact confirmation",
		}),
		FeeCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_base_units_total",
			Help:      "Protocol fee sent in settled swaps, in input token base units",
		}, []string{"token"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) QuoteRequested() {
	if m != nil {
		m.QuotesRequested.Inc()
	}
}

func (m *Metrics) QuoteFailed() {
	if m != nil {
		m.QuotesFailed.Inc()
	}
}

func (m *Metrics) QuoteStale() {
	if m != nil {
		m.QuotesStale.Inc()
	}
}

func (m *Metrics) ObserveQuote(seconds float64) {
	if m != nil {
		m.QuoteLatency.Observe(seconds)
	}
}

func (m *Metrics) SetPriceImpact(pct float64) {
	if m != nil {
		m.PriceImpact.Set(pct)
	}
}

func (m *Metrics) SwapSubmitted() {
	if m != nil {
		m.SwapsSubmitted.Inc()
	}
}

func (m *Metrics) SwapSettled(symbol string, fee uint64) {
	if m != nil {
		m.SwapsSettled.Inc()
		m.FeeCollected.WithLabelValues(symbol).Add(float64(fee))
	}
}

func (m *Metrics) SwapFailed(stage string) {
	if m != nil {
		m.SwapsFailed.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) SwapDeclined() {
	if m != nil {
		m.SwapsDeclined.Inc()
	}
}
