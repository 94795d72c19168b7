// Package metrics exposes Prometheus instrumentation for the outbox bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path label values for forwarded rows.
const (
	PathScan   = "scan"
	PathNotify = "notify"
)

// Bridge holds the per-tenant counters of the drain/sink loop. A nil *Bridge
// is valid and records nothing, so instrumentation stays optional.
type Bridge struct {
	rowsForwarded *prometheus.CounterVec
	rowsDeleted   *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	notifyIdle    *prometheus.CounterVec
	notifyErrors  *prometheus.CounterVec
}

// New creates the bridge counters and registers them with reg.
func New(reg prometheus.Registerer) *Bridge {
	factory := promauto.With(reg)

	return &Bridge{
		rowsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outboxd",
			Name:      "rows_forwarded_total",
			Help:      "Rows handed to the sink, by tenant and read path (scan or notify).",
		}, []string{"tenant", "path"}),
		rowsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outboxd",
			Name:      "rows_deleted_total",
			Help:      "Rows removed from the outbox table after a successful flush.",
		}, []string{"tenant"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outboxd",
			Name:      "flushes_total",
			Help:      "Successful batch publishes to the destination topic.",
		}, []string{"tenant"}),
		notifyIdle: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outboxd",
			Name:      "notify_idle_timeouts_total",
			Help:      "Notification waits that timed out and triggered an idle flush.",
		}, []string{"tenant"}),
		notifyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outboxd",
			Name:      "notify_transient_errors_total",
			Help:      "Transient notification read errors recovered with a keep-alive probe.",
		}, []string{"tenant"}),
	}
}

// RowForwarded records one row handed to the sink over the given path.
func (b *Bridge) RowForwarded(tenant, path string) {
	if b == nil {
		return
	}
	b.rowsForwarded.WithLabelValues(tenant, path).Inc()
}

// RowsDeleted records rows removed from the outbox table.
func (b *Bridge) RowsDeleted(tenant string, n int) {
	if b == nil {
		return
	}
	b.rowsDeleted.WithLabelValues(tenant).Add(float64(n))
}

// FlushObserved records one successful batch publish.
func (b *Bridge) FlushObserved(tenant string) {
	if b == nil {
		return
	}
	b.flushes.WithLabelValues(tenant).Inc()
}

// NotifyIdleTimeout records a notification wait that expired without data.
func (b *Bridge) NotifyIdleTimeout(tenant string) {
	if b == nil {
		return
	}
	b.notifyIdle.WithLabelValues(tenant).Inc()
}

// NotifyTransientError records a recovered notification read error.
func (b *Bridge) NotifyTransientError(tenant string) {
	if b == nil {
		return
	}
	b.notifyErrors.WithLabelValues(tenant).Inc()
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
