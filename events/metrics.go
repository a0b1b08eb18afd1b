package events

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "events"

var publishedEvents = metrics.NewCounter(
	"published",
	namespace,
	"number of collaboration events published on the bus",
	[]string{},
).WithLabelValues()

var droppedEvents = metrics.NewCounter(
	"dropped",
	namespace,
	"number of events dropped because a subscriber was not draining",
	[]string{},
).WithLabelValues()
