// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package metrics declares the process-local counters the tailing core
// updates. Exporting them to a backend is out of scope for this repo
// (spec: "metrics export" is an external collaborator); this package only
// owns the registry and the instruments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the private registry every instrument below is registered
// against. An out-of-scope exporter component would scrape this.
var Registry = prometheus.NewRegistry()

var (
	// TruncatedMessages counts records whose log_message was truncated to
	// the 32765-byte wire limit.
	TruncatedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logshipper",
		Subsystem: "output",
		Name:      "truncated_messages_total",
		Help:      "Number of records whose log_message was truncated before dispatch.",
	})

	// SequenceNumber tracks the current value of the shared docCounter.
	SequenceNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "logshipper",
		Subsystem: "output",
		Name:      "sequence_number",
		Help:      "Current value of the process-global seq_num counter.",
	})

	// CheckpointErrors counts checkpoint store I/O errors (logged, not fatal).
	CheckpointErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logshipper",
		Subsystem: "checkpoint",
		Name:      "errors_total",
		Help:      "Number of checkpoint read/write failures.",
	})

	// SinkErrors counts per-sink write/copy/close failures.
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logshipper",
		Subsystem: "output",
		Name:      "sink_errors_total",
		Help:      "Number of sink operation failures, by sink description.",
	}, []string{"sink"})

	// PendingAtShutdown records each sink's pendingCount() observed during drain.
	PendingAtShutdown = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "logshipper",
		Subsystem: "output",
		Name:      "pending_at_shutdown",
		Help:      "Last observed pendingCount() per sink while draining.",
	}, []string{"sink"})
)

func init() {
	Registry.MustRegister(TruncatedMessages, SequenceNumber, CheckpointErrors, SinkErrors, PendingAtShutdown)
}
