package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics captures metrics for the token sale pipeline.
type SaleMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	purchases *prometheus.CounterVec
	raisedUSD prometheus.Counter
	feedAge   *prometheus.GaugeVec
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// Sale returns the lazily-initialised metrics registry for the sale engine.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokensale",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokensale",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokensale",
				Subsystem: "engine",
				Name:      "purchases_total",
				Help:      "Committed purchases segmented by payment asset.",
			}, []string{"asset"}),
			raisedUSD: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tokensale",
				Subsystem: "engine",
				Name:      "raised_usd_total",
				Help:      "Cumulative USD value accepted by the sale.",
			}),
			feedAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "tokensale",
				Subsystem: "feeds",
				Name:      "reading_age_seconds",
				Help:      "Age of the most recent oracle reading per asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			saleRegistry.requests,
			saleRegistry.latency,
			saleRegistry.purchases,
			saleRegistry.raisedUSD,
			saleRegistry.feedAge,
		)
	})
	return saleRegistry
}

// Observe records the outcome and duration of an engine operation.
func (m *SaleMetrics) Observe(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPurchase increments the purchase counter for the supplied asset.
func (m *SaleMetrics) RecordPurchase(asset string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.purchases.WithLabelValues(normalized).Inc()
}

// AddRaisedUSD adds the accepted USD(18) value to the cumulative counter. The
// conversion to float is for observability only; accounting stays integral.
func (m *SaleMetrics) AddRaisedUSD(usd *big.Int) {
	if m == nil || usd == nil || usd.Sign() <= 0 {
		return
	}
	scaled := new(big.Float).SetInt(usd)
	scaled.Quo(scaled, big.NewFloat(1e18))
	value, _ := scaled.Float64()
	m.raisedUSD.Add(value)
}

// SetFeedAge publishes the age of the freshest oracle reading for an asset.
func (m *SaleMetrics) SetFeedAge(asset string, age time.Duration) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.feedAge.WithLabelValues(normalized).Set(age.Seconds())
}
