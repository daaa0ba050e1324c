// Package metrics exposes pipeline and store metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/pipeline"
)

// Manager owns the metric collectors. It observes pipeline events and can
// mirror store statistics into gauges.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	stageTotal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageInFlight  *prometheus.GaugeVec
	fallbacksTotal *prometheus.CounterVec

	sessions           *prometheus.GaugeVec
	speakers           prometheus.Gauge
	speakerEvaluations prometheus.Gauge
	avgSessionTotal    prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for stage durations, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers collectors on the given registry instead of a
// fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a metrics manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cfpeval",
		histogramBuckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.stageTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "stage_total",
		Help:      "Finished pipeline stages by outcome",
	}, []string{"stage", "outcome"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"stage"})

	m.stageInFlight = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "stage_in_flight",
		Help:      "Pipeline stages currently running",
	}, []string{"stage"})

	m.fallbacksTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "fallbacks_total",
		Help:      "Evaluations replaced by default scores",
	}, []string{"stage"})

	m.sessions = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "sessions",
		Help:      "Stored sessions by processing status",
	}, []string{"status"})

	m.speakers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "speakers",
		Help:      "Stored speakers",
	})

	m.speakerEvaluations = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "speaker_evaluations",
		Help:      "Rows in the speaker evaluation log",
	})

	m.avgSessionTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "session_total_score_avg",
		Help:      "Average total score of evaluated sessions",
	})
}

// Observe records a pipeline stage event.
func (m *Manager) Observe(e pipeline.Event) {
	stage := string(e.Stage)
	switch e.Kind {
	case pipeline.StageEntered:
		m.stageInFlight.WithLabelValues(stage).Inc()
	case pipeline.StageCompleted, pipeline.StageFailed:
		outcome := "completed"
		if e.Kind == pipeline.StageFailed {
			outcome = "failed"
		}
		m.stageInFlight.WithLabelValues(stage).Dec()
		m.stageTotal.WithLabelValues(stage, outcome).Inc()
		m.stageDuration.WithLabelValues(stage).Observe(e.Duration.Seconds())
		if e.Fallbacks > 0 {
			m.fallbacksTotal.WithLabelValues(stage).Add(float64(e.Fallbacks))
		}
	}
}

// SetStoreStats mirrors database statistics into gauges.
func (m *Manager) SetStoreStats(s *database.Stats) {
	m.sessions.WithLabelValues(string(database.StatusNew)).Set(float64(s.UnprocessedSessions))
	m.sessions.WithLabelValues(string(database.StatusReady)).Set(float64(s.ProcessedSessions))
	m.speakers.Set(float64(s.TotalSpeakers))
	m.speakerEvaluations.Set(float64(s.SpeakerEvaluations))
	if s.AvgSessionTotal != nil {
		m.avgSessionTotal.Set(*s.AvgSessionTotal)
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ pipeline.Observer = (*Manager)(nil)
