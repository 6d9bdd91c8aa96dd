// Package metrics provides Prometheus metrics for the research pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects pipeline metrics on a private registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TranscriptFetches *prometheus.CounterVec
	MarketsFetched    prometheus.Gauge
	TermAnalyses      *prometheus.CounterVec
	HitRate           prometheus.Histogram
	Opportunities     *prometheus.CounterVec
	OpportunityEdge   *prometheus.HistogramVec
	CycleDuration     prometheus.Histogram
	CycleFailures     prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TranscriptFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentionoracle_transcript_fetches_total",
				Help: "Transcript fetches by outcome (found, absent, failed)",
			},
			[]string{"status"},
		),
		MarketsFetched: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mentionoracle_mention_markets",
				Help: "Open mention markets seen in the last cycle",
			},
		),
		TermAnalyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentionoracle_term_analyses_total",
				Help: "Term analyses by outcome (ok, insufficient, invalid, failed)",
			},
			[]string{"outcome"},
		),
		HitRate: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mentionoracle_term_hit_rate",
				Help:    "Distribution of historical hit rates",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		Opportunities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentionoracle_opportunities_total",
				Help: "Positive-edge opportunities by side",
			},
			[]string{"side"},
		),
		OpportunityEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentionoracle_opportunity_edge",
				Help:    "Edge of reported opportunities",
				Buckets: []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5},
			},
			[]string{"side"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mentionoracle_cycle_duration_seconds",
				Help:    "Duration of research cycles",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		CycleFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mentionoracle_cycle_failures_total",
				Help: "Research cycles that failed",
			},
		),
	}

	registry.MustRegister(
		m.TranscriptFetches,
		m.MarketsFetched,
		m.TermAnalyses,
		m.HitRate,
		m.Opportunities,
		m.OpportunityEdge,
		m.CycleDuration,
		m.CycleFailures,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTranscriptFetch(status string) {
	if m == nil {
		return
	}
	m.TranscriptFetches.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveMarkets(n int) {
	if m == nil {
		return
	}
	m.MarketsFetched.Set(float64(n))
}

func (m *Metrics) ObserveTermAnalysis(outcome string, hitRate float64) {
	if m == nil {
		return
	}
	m.TermAnalyses.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.HitRate.Observe(hitRate)
	}
}

func (m *Metrics) ObserveOpportunity(side string, edge float64) {
	if m == nil {
		return
	}
	m.Opportunities.WithLabelValues(side).Inc()
	m.OpportunityEdge.WithLabelValues(side).Observe(edge)
}

func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	if err != nil {
		m.CycleFailures.Inc()
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
