package controller

import "github.com/sbahar619/namespace-label-spreader/internal/metrics"

const subsystem = "controller"

const (
	resultChanged   = "changed"
	resultUnchanged = "unchanged"
	resultError     = "error"
)

var (
	// eventsTotal counts received watch events by type.
	eventsTotal = metrics.MustRegisterCounterVec(subsystem, "events_total",
		"Number of cluster events received from the watch, by event type.",
		"type")

	// reconcileTotal counts reconciliations by result (changed, unchanged, error).
	reconcileTotal = metrics.MustRegisterCounterVec(subsystem, "reconcile_total",
		"Number of label reconciliations, by result.",
		"result")

	reconcileDuration = metrics.MustRegisterHistogramVec(subsystem, "reconcile_duration_seconds",
		"Duration of label reconciliations in seconds.",
		[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		"result")

	watchRestartsTotal = metrics.MustRegisterCounter(subsystem, "watch_restarts_total",
		"Number of times the event watch was re-opened.")
)
