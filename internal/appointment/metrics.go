package appointment

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	BatchesTotal      prometheus.Counter
	BatchDuration     prometheus.Histogram
	BatchSize         prometheus.Histogram
	RowsTotal         *prometheus.CounterVec
	PredictorCalls    *prometheus.CounterVec
	PredictorDuration prometheus.Histogram
	EventsTotal       *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attend_batches_total",
			Help: "Total processing batches run.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attend_batch_duration_seconds",
			Help:    "Duration of processing batches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attend_batch_size",
			Help:    "Appointments attempted per batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		RowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attend_batch_rows_total",
			Help: "Total per-appointment batch outcomes.",
		}, []string{"outcome"}),
		PredictorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attend_predictor_calls_total",
			Help: "Total risk predictor calls by outcome.",
		}, []string{"outcome"}),
		PredictorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attend_predictor_call_duration_seconds",
			Help:    "Duration of individual predictor calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attend_events_published_total",
			Help: "Total notification events published by action.",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.BatchDuration,
		m.BatchSize,
		m.RowsTotal,
		m.PredictorCalls,
		m.PredictorDuration,
		m.EventsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnPredictorCall: func(outcome string, duration float64) {
			m.PredictorCalls.WithLabelValues(outcome).Inc()
			m.PredictorDuration.Observe(duration)
		},
		OnBatch: func(r *BatchResult, duration float64) {
			m.BatchesTotal.Inc()
			m.BatchDuration.Observe(duration)
			m.BatchSize.Observe(float64(r.Total))
			m.RowsTotal.WithLabelValues("processed").Add(float64(r.Processed))
			m.RowsTotal.WithLabelValues("failed").Add(float64(r.Failed))
		},
		OnNotify: func(action Action) {
			m.EventsTotal.WithLabelValues(string(action)).Inc()
		},
	}
}
