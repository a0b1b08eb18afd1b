package consensus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "consensus"

var (
	rounds = metrics.NewCounter(
		"rounds",
		namespace,
		"number of reweigh rounds run",
		[]string{},
	).WithLabelValues()

	reweighed = metrics.NewCounter(
		"reweighed",
		namespace,
		"number of anchors whose collaborative weight changed",
		[]string{},
	).WithLabelValues()

	weightDistribution = metrics.NewHistogramWithBuckets(
		"weight",
		namespace,
		"collaborative weights written back onto anchors",
		[]string{},
		prometheus.LinearBuckets(0.1, 0.1, 10),
	).WithLabelValues()
)
