package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tinykv"

// Command outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Registry holds all application metrics.
//
// A nil *Registry is valid and records nothing, so components can run
// without metrics.
type Registry struct {
	registry *prometheus.Registry

	// CommandsTotal counts dispatched commands by name and outcome.
	CommandsTotal *prometheus.CounterVec

	// CommandDuration observes command execution latency, excluding I/O.
	CommandDuration *prometheus.HistogramVec

	// ProtocolErrors counts connections torn down by malformed input.
	ProtocolErrors *prometheus.CounterVec
}

// NewRegistry creates a registry with the command metrics and the standard
// Go runtime and process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands processed, partitioned by command and status.",
			},
			[]string{"cmd", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command execution latency in seconds, partitioned by command.",
				Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"cmd"},
		),
		ProtocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_errors_total",
				Help:      "Connections closed because of malformed frames, partitioned by kind.",
			},
			[]string{"kind"},
		),
	}

	r.registry.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.ProtocolErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveCommand records one dispatched command.
func (r *Registry) ObserveCommand(cmd, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(cmd, status).Inc()
	if status == StatusOK {
		r.CommandDuration.WithLabelValues(cmd).Observe(d.Seconds())
	}
}

// ProtocolError records one connection closed on a protocol fault.
func (r *Registry) ProtocolError(kind string) {
	if r == nil {
		return
	}
	r.ProtocolErrors.WithLabelValues(kind).Inc()
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry: r.registry,
	})
}
