// Package telemetry holds the prometheus collectors exported at /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandOps counts storage commands by backend, operation and outcome.
	CommandOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aphorist",
		Subsystem: "store",
		Name:      "command_ops_total",
		Help:      "Storage commands executed, by backend, op and outcome.",
	}, []string{"backend", "op", "outcome"})

	// CommandDuration observes per-command latency.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aphorist",
		Subsystem: "store",
		Name:      "command_duration_seconds",
		Help:      "Storage command latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"backend", "op"})

	// MigrationEntities counts entities processed by the last migration run.
	MigrationEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aphorist",
		Subsystem: "migrate",
		Name:      "entities_total",
		Help:      "Entities handled during migration, by type and outcome.",
	}, []string{"type", "outcome"})

	// MigrationValidationErrors reports the dead-letter size of the last run.
	MigrationValidationErrors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aphorist",
		Subsystem: "migrate",
		Name:      "validation_errors",
		Help:      "Validation errors recorded by the last migration run.",
	})

	// SweepDiscrepancies reports drift found by the last integrity sweep.
	SweepDiscrepancies = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aphorist",
		Subsystem: "sweep",
		Name:      "discrepancies",
		Help:      "Index discrepancies found by the last integrity sweep.",
	})

	// BlocklistFailOpen counts blocklist lookups answered fail-open because
	// the backend was unavailable.
	BlocklistFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aphorist",
		Subsystem: "auth",
		Name:      "blocklist_fail_open_total",
		Help:      "IP blocklist checks that failed open on backend errors.",
	})
)
