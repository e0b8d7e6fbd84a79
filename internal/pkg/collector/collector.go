// Package collector holds the router-status, speedtest and weather
// collectors. A collector never returns an error: it logs, notifies and
// yields an empty result instead.
package collector

import (
	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
)

type notifier interface {
	NotifyAll(message string)
}

const (
	resultOK     = "ok"
	resultEmpty  = "empty"
	resultFailed = "failed"
)

func observe(collector, result string) {
	metrics.CollectorRuns.WithLabelValues(collector, result).Inc()
}

func notify(n notifier, msg string) {
	if n != nil {
		n.NotifyAll(msg)
	}
}
