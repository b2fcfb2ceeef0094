// Package metrics records pipeline run outcomes as Prometheus metrics and
// writes them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iptv_extract"

// Run is the outcome of one successful pipeline run.
type Run struct {
	Fetched       int            // candidate channels after normalization
	Skipped       int            // malformed entries skipped while parsing
	Kept          int            // channels written
	Dropped       map[string]int // filter reason -> count
	Matched       int            // channels with merged guide data
	Synthetic     int            // channels with filler blocks
	Programmes    int
	PlaylistBytes int64
	GuideBytes    int64
	Duration      time.Duration
}

// Recorder owns a private registry so several pipelines (and tests) do not
// share global state.
type Recorder struct {
	reg *prometheus.Registry

	channels    *prometheus.GaugeVec
	dropped     *prometheus.GaugeVec
	guide       *prometheus.GaugeVec
	programmes  prometheus.Gauge
	bytes       *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	lastOK      prometheus.Gauge
	runs        *prometheus.CounterVec
}

// New returns a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels at each pipeline stage in the last successful run.",
		}, []string{"stage"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channels",
			Name:      "dropped",
			Help:      "Channels removed by the filter in the last successful run.",
		}, []string{"reason"}),
		guide: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guide",
			Name:      "channels",
			Help:      "Channels by guide source in the last successful run.",
		}, []string{"source"}),
		programmes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guide",
			Name:      "programmes",
			Help:      "Programmes written in the last successful run.",
		}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "bytes",
			Help:      "Size of each published file.",
		}, []string{"file"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		lastOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_ok",
			Help:      "1 if the last run succeeded, 0 if it failed.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Runs by result (ok or an error category).",
		}, []string{"result"}),
	}
	r.reg.MustRegister(r.channels, r.dropped, r.guide, r.programmes, r.bytes, r.duration, r.lastSuccess, r.lastOK, r.runs)
	return r
}

// Success records a completed run finished at the given time.
func (r *Recorder) Success(run Run, at time.Time) {
	r.channels.WithLabelValues("fetched").Set(float64(run.Fetched))
	r.channels.WithLabelValues("skipped").Set(float64(run.Skipped))
	r.channels.WithLabelValues("written").Set(float64(run.Kept))
	r.dropped.Reset()
	for reason, n := range run.Dropped {
		r.dropped.WithLabelValues(reason).Set(float64(n))
	}
	r.guide.WithLabelValues("epg").Set(float64(run.Matched))
	r.guide.WithLabelValues("synthetic").Set(float64(run.Synthetic))
	r.programmes.Set(float64(run.Programmes))
	r.bytes.WithLabelValues("playlist").Set(float64(run.PlaylistBytes))
	r.bytes.WithLabelValues("guide").Set(float64(run.GuideBytes))
	r.duration.Set(run.Duration.Seconds())
	r.lastSuccess.Set(float64(at.Unix()))
	r.lastOK.Set(1)
	r.runs.WithLabelValues("ok").Inc()
}

// Failure records a failed run. Stage gauges keep the last successful values.
func (r *Recorder) Failure(category string, d time.Duration) {
	r.duration.Set(d.Seconds())
	r.lastOK.Set(0)
	r.runs.WithLabelValues(category).Inc()
}

// Gatherer exposes the registry, e.g. for promhttp.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile atomically writes all metrics to path for node_exporter's
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
