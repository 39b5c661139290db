package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Fetch pipeline metrics
	FragmentsStaged  *prometheus.CounterVec
	FetchPageLatency prometheus.Histogram
	FetchRuns        *prometheus.CounterVec

	// Reconcile pipeline metrics
	EpisodesPublished prometheus.Counter
	EpisodesFailed    prometheus.Counter
	PublishLatency    prometheus.Histogram
	PendingChanged    prometheus.Gauge
	ReconcileRuns     *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		FragmentsStaged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_staged_total",
			Help:      "Total number of staged source fragments by outcome",
		}, []string{"outcome"}),
		FetchPageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_page_duration_seconds",
			Help:      "Time spent fetching and staging one source page",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		FetchRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_runs_total",
			Help:      "Total number of fetch-and-stage runs by status",
		}, []string{"status"}),
		EpisodesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_published_total",
			Help:      "Total number of episodes successfully published to the platform",
		}),
		EpisodesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_failed_total",
			Help:      "Total number of episodes that failed to publish",
		}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_publish_duration_seconds",
			Help:      "Time spent publishing one consolidated episode",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		PendingChanged: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_pending_changed",
			Help:      "Staging records currently pending reconciliation",
		}),
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of reconcile-and-publish runs by status",
		}, []string{"status"}),
	}
}

// NewUnregistered creates a Metrics set on a private registry, for tests that
// construct more than one pipeline in the same process.
func NewUnregistered(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		FragmentsStaged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fragments_staged_total", Help: "Total number of staged source fragments by outcome",
		}, []string{"outcome"}),
		FetchPageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fetch_page_duration_seconds", Help: "Time spent fetching and staging one source page",
		}),
		FetchRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_runs_total", Help: "Total number of fetch-and-stage runs by status",
		}, []string{"status"}),
		EpisodesPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "episodes_published_total", Help: "Total number of episodes successfully published to the platform",
		}),
		EpisodesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "episodes_failed_total", Help: "Total number of episodes that failed to publish",
		}),
		PublishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "episode_publish_duration_seconds", Help: "Time spent publishing one consolidated episode",
		}),
		PendingChanged: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "staging_pending_changed", Help: "Staging records currently pending reconciliation",
		}),
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_runs_total", Help: "Total number of reconcile-and-publish runs by status",
		}, []string{"status"}),
	}
}
