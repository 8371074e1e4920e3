package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tiklay/internal/domain/offline"
)

// Metrics счетчики оркестратора. Нулевой указатель допустим: метрики не пишутся.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	intents        *prometheus.CounterVec
	downloaded     prometheus.Counter
	conflicts      *prometheus.CounterVec
	pendingIntents prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of completed sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "intents_total",
			Help:      "Uploaded intents by kind and outcome.",
		}, []string{"kind", "outcome"}),
		downloaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "downloaded_total",
			Help:      "Remote records reconciled into the local store.",
		}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "conflicts_total",
			Help:      "Conflicts by event.",
		}, []string{"event"}),
		pendingIntents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiklay",
			Subsystem: "sync",
			Name:      "pending_intents",
			Help:      "Intents waiting for upload.",
		}),
	}
}

func (m *Metrics) observeRun(r *Result, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(r.Duration.Seconds())
	m.downloaded.Add(float64(r.Downloaded))
}

func (m *Metrics) observeIntent(kind offline.IntentKind, outcome string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) observeConflict(event string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(event).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingIntents.Set(float64(n))
}
