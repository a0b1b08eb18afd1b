package router

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "router"

var (
	processedMessages = metrics.NewCounter(
		"processed",
		namespace,
		"number of messages dispatched to a handler",
		[]string{"type"},
	)

	droppedMessages = metrics.NewCounter(
		"dropped",
		namespace,
		"number of messages dropped before dispatch",
		[]string{"reason"},
	)
	droppedMalformed = droppedMessages.WithLabelValues("malformed")
	droppedUnknown   = droppedMessages.WithLabelValues("unknown_type")
	droppedEcho      = droppedMessages.WithLabelValues("echo")
	droppedStale     = droppedMessages.WithLabelValues("stale")
	droppedNoHandler = droppedMessages.WithLabelValues("no_handler")
	droppedClosed    = droppedMessages.WithLabelValues("closed")

	criticalBypass = metrics.NewCounter(
		"critical_bypass",
		namespace,
		"number of critical messages dispatched without queueing",
		[]string{"direction"},
	)
	criticalBypassIn  = criticalBypass.WithLabelValues("inbound")
	criticalBypassOut = criticalBypass.WithLabelValues("outbound")

	skippedTicks = metrics.NewCounter(
		"skipped_ticks",
		namespace,
		"number of ticks skipped because the previous one was still draining",
		[]string{},
	).WithLabelValues()

	queueDepth = metrics.NewGauge(
		"queue_depth",
		namespace,
		"number of messages waiting for a tick",
		[]string{},
	).WithLabelValues()

	broadcastErrors = metrics.NewCounter(
		"broadcast_errors",
		namespace,
		"number of failed transport broadcasts",
		[]string{"transport"},
	)

	handlerErrors = metrics.NewCounter(
		"handler_errors",
		namespace,
		"number of handlers that returned an error",
		[]string{"type"},
	)
)
