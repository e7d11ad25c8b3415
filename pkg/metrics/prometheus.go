package metrics

import (
	"strconv"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	snapshots *prometheus.CounterVec
	signals   *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// New registers the pipeline metrics on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		snapshots: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardsignals_snapshots_written_total",
				Help: "Feature snapshots persisted, by window",
			},
			[]string{"window_days"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardsignals_signals_created_total",
				Help: "Signals appended, by kind",
			},
			[]string{"kind"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardsignals_listings_dropped_total",
				Help: "Listings not turned into a signal, by reason",
			},
			[]string{"reason"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardsignals_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardsignals_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSnapshotWritten(windowDays int) {
	r.snapshots.WithLabelValues(strconv.Itoa(windowDays)).Inc()
}

func (r *Recorder) RecordSignal(kind models.SignalKind) {
	r.signals.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) RecordDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ repository.Metrics = (*Recorder)(nil)

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSnapshotWritten(int)      {}
func (Nop) RecordSignal(models.SignalKind) {}
func (Nop) RecordDropped(string)           {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLatency(string, float64)  {}

var _ repository.Metrics = Nop{}
