package registry

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "registry"

var (
	deviceCount = metrics.NewGauge(
		"devices",
		namespace,
		"number of devices currently registered in the session",
		[]string{},
	).WithLabelValues()

	prunedDevices = metrics.NewCounter(
		"pruned",
		namespace,
		"number of devices removed for staleness",
		[]string{},
	).WithLabelValues()
)
