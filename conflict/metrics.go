package conflict

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "conflict"

var (
	resolutionAttempts = metrics.NewCounter(
		"attempts",
		namespace,
		"number of conflict resolution attempts",
		[]string{},
	).WithLabelValues()

	resolutionChanges = metrics.NewCounter(
		"resolutions",
		namespace,
		"number of attempts that changed the candidate state",
		[]string{},
	).WithLabelValues()
)
