package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conveyor"

var (
	// StatusTransitions считает применённые переходы статусов.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "status_transitions_total",
			Help:      "Applied run status transitions by target status",
		},
		[]string{"status"},
	)

	// SchedulerOperations считает операции Scheduling Manager.
	SchedulerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "operations_total",
			Help:      "Scheduler operations by name and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok, rejected, failed
	)

	// SchedulerOperationDuration — длительность операций.
	SchedulerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "operation_duration_seconds",
			Help:      "Scheduler operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// CacheLookups считает обращения к кэшу run'ов.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cache_lookups_total",
			Help:      "Run cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	// EventsHandled считает события, обработанные executor'ом.
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Events handled by the executor dispatch table",
		},
		[]string{"type", "outcome"},
	)

	// EventsRecorded считает события, прошедшие через Auditor.
	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Recorded events by type",
		},
		[]string{"type"},
	)

	// SinkFailures считает ошибки sink'ов.
	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sink_failures_total",
			Help:      "Event sink failures by sink",
		},
		[]string{"sink"},
	)

	// OutboxDropped считает события, отброшенные переполненным outbox.
	OutboxDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_dropped_total",
			Help:      "Events dropped because the outbox buffer was full",
		},
	)

	// TasksEnqueued считает поставленные задачи.
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "enqueued_total",
			Help:      "Enqueued tasks by name and mode",
		},
		[]string{"task", "mode"}, // mode: inline, queued, delayed
	)

	// TasksProcessed считает обработанные worker'ом задачи.
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "Processed tasks by name and outcome",
		},
		[]string{"task", "outcome"},
	)

	// ClusterCalls считает обращения к кластеру.
	ClusterCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "calls_total",
			Help:      "Cluster executor calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)
