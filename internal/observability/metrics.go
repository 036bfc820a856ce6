// Package observability sets up tracing and the per-run Prometheus
// metrics and progress counters.
//
// Metrics live on a private registry so a run can export exactly its own
// series, either through the status server's /metrics endpoint or as a
// node_exporter textfile written when the run ends. Label sets are small
// and fixed:
//
//   - gate:    numeric | length | ledger | blacklist
//   - channel: sms | shorten | payout | payout_status
//   - outcome: ok | error
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

const namespace = "outreach"

// Metrics holds the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	// RecordsIn counts input rows read, by command.
	RecordsIn *prometheus.CounterVec

	// RecordsDropped counts rows removed before dispatch, by gate.
	RecordsDropped *prometheus.CounterVec

	// Dispatch counts provider calls by channel and outcome.
	Dispatch *prometheus.CounterVec

	// DispatchLatency observes provider call duration by channel.
	DispatchLatency *prometheus.HistogramVec

	// LedgerSize is the number of known-bad destinations after refresh.
	LedgerSize prometheus.Gauge

	// RunDuration is the wall time of the run, set when it finishes.
	RunDuration prometheus.Gauge

	// LastRun is the unix time the run finished.
	LastRun prometheus.Gauge
}

// NewMetrics builds and registers the run collectors on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_in_total",
			Help:      "Input rows read.",
		}, []string{"command"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Rows removed before dispatch, by gate.",
		}, []string{"gate"}),
		Dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Provider calls by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of provider calls in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		LedgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_size",
			Help:      "Known-bad destinations in the ledger.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.Registry.MustRegister(m.RecordsIn, m.RecordsDropped, m.Dispatch, m.DispatchLatency,
		m.LedgerSize, m.RunDuration, m.LastRun)
	return m
}

// Dropped adds n to the drop counter of gate. Zero is a no-op.
func (m *Metrics) Dropped(gate string, n int) {
	if n > 0 {
		m.RecordsDropped.WithLabelValues(gate).Add(float64(n))
	}
}

// ObserveDispatch counts one provider call.
func (m *Metrics) ObserveDispatch(channel string, res domain.DispatchResult, took time.Duration) {
	outcome := "ok"
	if !res.OK() {
		outcome = "error"
	}
	m.Dispatch.WithLabelValues(channel, outcome).Inc()
	if took > 0 {
		m.DispatchLatency.WithLabelValues(channel).Observe(took.Seconds())
	}
}

// Finish records the run duration and completion time.
func (m *Metrics) Finish(started, now time.Time) {
	m.RunDuration.Set(now.Sub(started).Seconds())
	m.LastRun.Set(float64(now.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
// Compression is left to the status router.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry:           m.Registry,
		DisableCompression: true,
	})
}

// WriteTextfile writes the registry for the node_exporter textfile
// collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
