package anchors

import (
	"github.com/nerfedge/spatialsync/metrics"
)

const namespace = "anchors"

var (
	anchorCount = metrics.NewGauge(
		"stored",
		namespace,
		"number of anchors currently stored",
		[]string{},
	).WithLabelValues()

	insertedAnchors = metrics.NewCounter(
		"inserted",
		namespace,
		"number of anchors inserted as new entries",
		[]string{},
	).WithLabelValues()

	mergedAnchors = metrics.NewCounter(
		"merged",
		namespace,
		"number of candidate observations merged into existing anchors",
		[]string{},
	).WithLabelValues()

	prunedAnchors = metrics.NewCounter(
		"pruned",
		namespace,
		"number of anchors removed by the persistence and age rule",
		[]string{},
	).WithLabelValues()
)
