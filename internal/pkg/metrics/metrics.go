package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CollectorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_runs_total",
			Help: "collector invocations, labelled by collector and result (ok, empty, failed)",
		},
		[]string{"collector", "result"},
	)
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_failed_attempts_total",
			Help: "failed attempts seen by the retry executor, labelled by operation",
		},
		[]string{"operation"},
	)
	RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_rows_written_total",
			Help: "rows inserted into the store, labelled by record kind",
		},
		[]string{"kind"},
	)
	LiveReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "energy_live_reconnects_total",
			Help: "reconnects of the live energy subscription",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors with the default registry. It is
// safe to call more than once.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(CollectorRuns, RetryAttempts, RowsWritten, LiveReconnects)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
