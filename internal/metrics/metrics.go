// Package metrics exposes Prometheus collectors for the safeguard cycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safeguard"

// Metrics holds the cycle collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	Downloading   prometheus.Gauge
	FetchDuration prometheus.Histogram
	SnapshotBytes prometheus.Gauge
	LastSuccess   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Download cycles by outcome.",
		}, []string{"outcome"}),
		Downloading: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloading",
			Help:      "1 while a safeguard download is in flight.",
		}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of remote safeguard fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SnapshotBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the most recently written snapshot.",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last snapshot write.",
		}),
		gatherer: reg,
	}
}

// Cycle counts one finished cycle.
func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(outcome).Inc()
}

// SetDownloading mirrors the download flag.
func (m *Metrics) SetDownloading(v bool) {
	if m == nil {
		return
	}
	if v {
		m.Downloading.Set(1)
	} else {
		m.Downloading.Set(0)
	}
}

// Fetched records the duration of one fetch.
func (m *Metrics) Fetched(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// Written records a successful snapshot write.
func (m *Metrics) Written(size int, at time.Time) {
	if m == nil {
		return
	}
	m.SnapshotBytes.Set(float64(size))
	m.LastSuccess.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
