package drift

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "drift"

var (
	corrections = metrics.NewCounter(
		"corrections",
		namespace,
		"number of corrections estimated",
		[]string{},
	).WithLabelValues()

	degradedCorrections = metrics.NewCounter(
		"degraded",
		namespace,
		"number of rounds returning the zero correction",
		[]string{},
	).WithLabelValues()

	inlierRatio = metrics.NewHistogramWithBuckets(
		"inlier_ratio",
		namespace,
		"fraction of correspondences supporting the chosen transform",
		[]string{},
		prometheus.LinearBuckets(0.1, 0.1, 10),
	).WithLabelValues()

	correctionMagnitude = metrics.NewHistogramWithBuckets(
		"correction_meters",
		namespace,
		"translation magnitude of applied corrections",
		[]string{},
		prometheus.ExponentialBuckets(0.001, 2, 10),
	).WithLabelValues()
)
