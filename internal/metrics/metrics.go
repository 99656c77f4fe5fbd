// Package metrics exposes the broker's Prometheus counters and histograms,
// grounded on vaultaire's internal/gateway/metrics.Collector: package-level
// promauto vectors plus a thin Registry wrapping the Inc/Observe calls so
// callers never touch prometheus types directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerd_commands_total",
			Help: "Total number of dispatched commands by name and status",
		},
		[]string{"command", "status"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brokerd_command_duration_seconds",
			Help:    "Command dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	messagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerd_messages_appended_total",
			Help: "Total number of messages appended across all partitions",
		},
	)

	messagesPolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerd_messages_polled_total",
			Help: "Total number of messages returned to pollers",
		},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerd_bytes_written_total",
			Help: "Total payload bytes appended to segment logs",
		},
	)

	activeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brokerd_clients_active",
			Help: "Number of live client connections",
		},
	)
)

// Registry is the server-wide metrics facade the system and dispatcher hold
// a reference to.
type Registry struct {
	startTime time.Time
}

// NewRegistry creates the metrics facade.
func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// RecordCommand records one dispatched command's outcome and latency.
func (r *Registry) RecordCommand(name, status string, d time.Duration) {
	commandsTotal.WithLabelValues(name, status).Inc()
	commandDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordAppend records a batch of n messages totaling byteCount bytes.
func (r *Registry) RecordAppend(n int, byteCount int) {
	messagesAppended.Add(float64(n))
	bytesWritten.Add(float64(byteCount))
}

// RecordPoll records n messages returned by a poll.
func (r *Registry) RecordPoll(n int) {
	messagesPolled.Add(float64(n))
}

// SetActiveClients reports the current live-connection count.
func (r *Registry) SetActiveClients(n int) {
	activeClients.Set(float64(n))
}

// Uptime returns how long the registry (and thus the server) has been running.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}
