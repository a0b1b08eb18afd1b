package mesh

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "mesh"

var sentFrames = metrics.NewCounter(
	"sent_frames",
	namespace,
	"number of frames written to peer streams",
	[]string{},
).WithLabelValues()

var receivedFrames = metrics.NewCounter(
	"received_frames",
	namespace,
	"number of frames read off peer streams",
	[]string{},
).WithLabelValues()

var sendErrors = metrics.NewCounter(
	"send_errors",
	namespace,
	"number of frames that could not be written to a peer",
	[]string{},
).WithLabelValues()

var peerCount = metrics.NewGauge(
	"peers",
	namespace,
	"number of connected mesh peers",
	[]string{},
).WithLabelValues()
