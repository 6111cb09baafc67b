// Package metrics exposes conversion pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements pipeline.Observer.
type Metrics struct {
	conversions      *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	batches          *prometheus.CounterVec
	batchProcessed   prometheus.Gauge
	batchFailedItems prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		conversions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webp_conversions_total",
				Help: "Conversions by source kind and outcome (ok or the failed stage)",
			},
			[]string{"kind", "result"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "webp_conversion_duration_seconds",
				Help: "Download, convert and upload time of a single object",
				Buckets: []float64{
					0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
				},
			},
			[]string{"kind"},
		),
		inFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webp_conversions_in_flight",
			Help: "Conversions currently running",
		}),
		batches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webp_batches_total",
				Help: "Finished convert-all batches by result",
			},
			[]string{"result"},
		),
		batchProcessed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webp_last_batch_processed",
			Help: "Objects converted by the last finished batch",
		}),
		batchFailedItems: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webp_last_batch_failed",
			Help: "Objects that failed in the last finished batch",
		}),
	}
}

func (m *Metrics) ItemStarted(string) {
	m.inFlight.Inc()
}

func (m *Metrics) ItemFinished(kind string, stage string, d time.Duration) {
	m.inFlight.Dec()
	result := "ok"
	if stage != "" {
		result = stage
	}
	m.conversions.WithLabelValues(kind, result).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) BatchFinished(result string, processed, failed int64) {
	m.batches.WithLabelValues(result).Inc()
	m.batchProcessed.Set(float64(processed))
	m.batchFailedItems.Set(float64(failed))
}
