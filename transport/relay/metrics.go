package relay

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "relay"

var (
	sentFrames = metrics.NewCounter(
		"sent_frames",
		namespace,
		"number of frames written to the relay",
		[]string{},
	).WithLabelValues()
	receivedFrames = metrics.NewCounter(
		"received_frames",
		namespace,
		"number of frames read off the relay",
		[]string{},
	).WithLabelValues()
	sendErrors = metrics.NewCounter(
		"send_errors",
		namespace,
		"number of failed frame writes",
		[]string{},
	).WithLabelValues()
	reconnects = metrics.NewCounter(
		"reconnects",
		namespace,
		"number of times the connection was re-established",
		[]string{},
	).WithLabelValues()
	connectedState = metrics.NewGauge(
		"connected",
		namespace,
		"1 while the relay connection is live",
		[]string{},
	).WithLabelValues()
)
