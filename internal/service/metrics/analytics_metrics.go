package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardsignals",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of query endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardsignals",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by query endpoint",
		},
		[]string{"endpoint"},
	)

	FairValueQualified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardsignals",
			Subsystem: "fair_value",
			Name:      "quotes_total",
			Help:      "Fair value quotes served, by qualification",
		},
		[]string{"qualified"},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cardsignals",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected signal stream clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, FairValueQualified, StreamClients)
	})
}

// Observe records the latency of an endpoint and counts it as an error when failed is set.
func Observe(endpoint string, start time.Time, failed bool) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if failed {
		APIErrors.WithLabelValues(endpoint).Inc()
	}
}
