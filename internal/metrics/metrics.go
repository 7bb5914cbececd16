// Package metrics defines the Prometheus collectors (§4.J) incremented by
// the processor and the control-log aggregator. The orchestrator
// collectors are registered but nothing increments them, and Registry is
// not served over HTTP by any rtb command.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector registered by this package.
var Registry = prometheus.NewRegistry()

var (
	DecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "processor",
			Name:      "decode_failures_total",
			Help:      "Wire records that failed to decode and were skipped, by protocol.",
		},
		[]string{"protocol"},
	)

	RecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "processor",
			Name:      "records_processed_total",
			Help:      "Wire records successfully decoded and applied to session state.",
		},
		[]string{"protocol"},
	)

	EnrichmentMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "processor",
			Name:      "driver_enrichment_misses_total",
			Help:      "Car patches broadcast without a resolved driver identity.",
		},
	)

	BusReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "processor",
			Name:      "bus_reconnects_total",
			Help:      "Bus stream read failures that triggered a backoff-and-retry.",
		},
	)

	DBWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "processor",
			Name:      "db_write_failures_total",
			Help:      "Persistence writes that exhausted retries and were dropped, by table.",
		},
		[]string{"table"},
	)

	ControlLogRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "controllog",
			Name:      "requests_total",
			Help:      "Control-log source polls attempted.",
		},
	)

	ControlLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "controllog",
			Name:      "failures_total",
			Help:      "Control-log source polls that returned an error.",
		},
	)

	ControlLogEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "controllog",
			Name:      "entries_total",
			Help:      "Control-log entries observed across all polls.",
		},
	)

	OrchestratorJobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "orchestrator",
			Name:      "jobs_started_total",
			Help:      "Worker jobs started by the orchestrator, by role.",
		},
		[]string{"role"},
	)

	OrchestratorEventsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racetiming",
			Subsystem: "orchestrator",
			Name:      "events_expired_total",
			Help:      "Events torn down after their relay heartbeat expired.",
		},
	)
)

func init() {
	Registry.MustRegister(
		DecodeFailures,
		RecordsProcessed,
		EnrichmentMisses,
		BusReconnects,
		DBWriteFailures,
		ControlLogRequests,
		ControlLogFailures,
		ControlLogEntriesTotal,
		OrchestratorJobsStarted,
		OrchestratorEventsExpired,
	)
}
