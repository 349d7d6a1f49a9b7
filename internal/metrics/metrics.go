package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the scanner and the exchange layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal       prometheus.Counter
	ScanDuration     prometheus.Histogram
	Opportunities    prometheus.Gauge
	Drops            *prometheus.CounterVec
	ExchangeRequests *prometheus.CounterVec
	ExchangeLatency  *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	PremiumSamples   *prometheus.CounterVec
}

// New builds all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundarb_scans_total",
			Help: "Total number of completed scan cycles",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundarb_scan_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		Opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundarb_opportunities",
			Help: "Number of opportunities in the latest scan cycle",
		}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundarb_symbol_drops_total",
			Help: "Symbols or legs excluded from a cycle, by stage",
		}, []string{"stage"}),
		ExchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundarb_exchange_requests_total",
			Help: "Exchange data-source calls by result",
		}, []string{"exchange", "op", "result"}),
		ExchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundarb_exchange_request_seconds",
			Help:    "Exchange data-source call latency",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"exchange", "op"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundarb_exchange_breaker_state",
			Help: "Circuit breaker state per exchange (0 closed, 1 half-open, 2 open)",
		}, []string{"exchange"}),
		PremiumSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundarb_premium_samples_total",
			Help: "Premium index samples appended to history",
		}, []string{"exchange"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal,
		m.ScanDuration,
		m.Opportunities,
		m.Drops,
		m.ExchangeRequests,
		m.ExchangeLatency,
		m.BreakerState,
		m.PremiumSamples,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveScan(d time.Duration, opportunities int) {
	if m == nil {
		return
	}
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(d.Seconds())
	m.Opportunities.Set(float64(opportunities))
}

func (m *Metrics) ObserveDrop(stage string) {
	if m == nil {
		return
	}
	m.Drops.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveRequest(exchange, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExchangeRequests.WithLabelValues(exchange, op, result).Inc()
	m.ExchangeLatency.WithLabelValues(exchange, op).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(exchange string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(exchange).Set(state)
}

func (m *Metrics) ObservePremiumSample(exchange string) {
	if m == nil {
		return
	}
	m.PremiumSamples.WithLabelValues(exchange).Inc()
}
