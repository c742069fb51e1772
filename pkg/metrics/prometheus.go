package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rowsInserted *prometheus.CounterVec
	rowsSkipped  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	cursor       prometheus.Gauge
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rowsInserted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midgard_rows_inserted_total",
				Help: "Interval rows newly inserted, by series",
			},
			[]string{"series"},
		),
		rowsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midgard_rows_skipped_total",
				Help: "Interval rows skipped because their end_time already existed, by series",
			},
			[]string{"series"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midgard_errors_total",
				Help: "Total number of errors encountered, by kind",
			},
			[]string{"kind"},
		),
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midgard_ingestion_cycles_total",
				Help: "Ingestion cycles by outcome",
			},
			[]string{"outcome"},
		),
		cursor: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "midgard_ingestion_cursor_seconds",
				Help: "Current ingestion cursor as epoch seconds",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "midgard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordInserted(series string, n int) {
	r.rowsInserted.WithLabelValues(series).Add(float64(n))
}

func (r *Recorder) RecordSkipped(series string, n int) {
	r.rowsSkipped.WithLabelValues(series).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordCycle(outcome string) {
	r.cycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordCursor(epoch int64) {
	r.cursor.Set(float64(epoch))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
