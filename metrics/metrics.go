package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of collectors the catalog and the database report to.
type Metrics struct {
	DDLTotal        *prometheus.CounterVec
	AlterDuration   prometheus.Histogram
	OpenTables      prometheus.Gauge
	ReplayedRecords *prometheus.CounterVec
	SyncFailures    prometheus.Counter
	Checkpoints     prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DDLTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helincat_ddl_total",
			Help: "Total number of ddl statements handled by the catalog, by operation and result code.",
		}, []string{"op", "rc"}),

		AlterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helincat_alter_duration_seconds",
			Help:    "Duration of alter table calls including meta persist and log append.",
			Buckets: prometheus.DefBuckets,
		}),

		OpenTables: f.NewGauge(prometheus.GaugeOpts{
			Name: "helincat_open_tables",
			Help: "Number of tables registered in the catalog.",
		}),

		ReplayedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helincat_replayed_records_total",
			Help: "Total number of recovery log records seen during replay, by record type and outcome.",
		}, []string{"type", "outcome"}),

		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "helincat_sync_failures_total",
			Help: "Total number of table files that failed to sync.",
		}),

		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Name: "helincat_checkpoints_total",
			Help: "Total number of recovery log checkpoints.",
		}),
	}
}

// Default is registered on the prometheus default registry and used when no other set is given.
var Default = New(prometheus.DefaultRegisterer)

// Handler exposes everything gathered by g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
