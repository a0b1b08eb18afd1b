package protocol

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "session"

var (
	sessionState = metrics.NewGauge(
		"state",
		namespace,
		"lifecycle phase of the session (0 uninitialized, 1 initializing, 2 active, 3 disposed)",
		[]string{},
	).WithLabelValues()

	maintenancePasses = metrics.NewCounter(
		"maintenance_passes",
		namespace,
		"number of completed maintenance passes",
		[]string{},
	).WithLabelValues()
)
