// Package drift estimates the rigid correction realigning a device's local
// frame with session consensus, from matched anchor observations.
package drift

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/seehuhn/mt19937"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerfedge/spatialsync/common/types"
)

// Config holds the estimation parameters.
type Config struct {
	// MinCorrespondences is the floor below which estimation degrades to a
	// zero correction.
	MinCorrespondences int `mapstructure:"min-correspondences"`
	// MatchRadius is the maximum distance in meters between a local anchor
	// and a consensus anchor for the pair to count as a correspondence.
	MatchRadius float64 `mapstructure:"match-radius"`
	// MaxIterations bounds the sampling rounds of the robust fit.
	MaxIterations int `mapstructure:"max-iterations"`
	// InlierThreshold is the residual in meters under which a
	// correspondence supports a sampled transform.
	InlierThreshold float64 `mapstructure:"inlier-threshold"`
	// Smoothing is the fraction of the previously applied correction
	// retained when a new estimate arrives.
	Smoothing float64 `mapstructure:"smoothing"`
	// Seed makes the sampling deterministic.
	Seed int64 `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		MinCorrespondences: 3,
		MatchRadius:        0.10,
		MaxIterations:      32,
		InlierThreshold:    0.05,
		Smoothing:          0.7,
		Seed:               1,
	}
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddInt("min_correspondences", c.MinCorrespondences)
	encoder.AddFloat64("match_radius", c.MatchRadius)
	encoder.AddInt("max_iterations", c.MaxIterations)
	encoder.AddFloat64("inlier_threshold", c.InlierThreshold)
	encoder.AddFloat64("smoothing", c.Smoothing)
	return nil
}

// Stats describes one estimation round.
type Stats struct {
	Correspondences int
	Inliers         int
}

type Opt func(*Corrector)

func WithLogger(log *zap.Logger) Opt {
	return func(c *Corrector) {
		c.log = log
	}
}

func WithConfig(cfg Config) Opt {
	return func(c *Corrector) {
		c.cfg = cfg
	}
}

// Corrector computes smoothed rigid corrections per device. Estimation
// never fails: anything below the correspondence floor, and any degenerate
// geometry, yields the zero correction.
type Corrector struct {
	log *zap.Logger
	cfg Config

	mu   sync.Mutex
	rng  *rand.Rand
	prev map[string]types.Correction
}

func New(opts ...Opt) *Corrector {
	c := &Corrector{
		log:  zap.NewNop(),
		cfg:  DefaultConfig(),
		prev: map[string]types.Correction{},
	}
	for _, opt := range opts {
		opt(c)
	}
	mt := mt19937.New()
	mt.Seed(c.cfg.Seed)
	c.rng = rand.New(mt)
	return c
}

// match pairs each local anchor with the nearest unclaimed consensus anchor
// within the match radius. Inputs are ordered by id first so every device
// derives the same correspondence set from the same stores.
func (c *Corrector) match(local, consensus []types.SpatialAnchor) []correspondence {
	sorted := make([]types.SpatialAnchor, len(local))
	copy(sorted, local)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	claimed := make([]bool, len(consensus))
	var pairs []correspondence
	for _, anchor := range sorted {
		bestDist := c.cfg.MatchRadius
		best := -1
		for i, candidate := range consensus {
			if claimed[i] {
				continue
			}
			if d := anchor.Position.Distance(candidate.Position); d <= bestDist {
				bestDist, best = d, i
			}
		}
		if best >= 0 {
			claimed[best] = true
			pairs = append(pairs, correspondence{local: anchor.Position, consensus: consensus[best].Position})
		}
	}
	return pairs
}

// Correct estimates the correction for a device from its anchors and the
// session consensus set, smoothed against the device's previous correction.
func (c *Corrector) Correct(deviceID string, local, consensus []types.SpatialAnchor) (types.Correction, Stats) {
	pairs := c.match(local, consensus)
	stats := Stats{Correspondences: len(pairs)}
	if len(pairs) < c.cfg.MinCorrespondences {
		degradedCorrections.Inc()
		return types.ZeroCorrection, stats
	}

	transform, inliers, ok := c.estimate(pairs)
	if !ok {
		c.log.Warn("drift estimation failed on degenerate geometry",
			zap.String("device", deviceID),
			zap.Int("correspondences", len(pairs)),
		)
		degradedCorrections.Inc()
		return types.ZeroCorrection, stats
	}
	stats.Inliers = inliers
	inlierRatio.Observe(float64(inliers) / float64(len(pairs)))

	raw := transform.correction()
	smoothed := c.smooth(deviceID, raw)
	corrections.Inc()
	correctionMagnitude.Observe(smoothed.Magnitude())
	c.log.Debug("drift correction estimated",
		zap.String("device", deviceID),
		zap.Int("correspondences", len(pairs)),
		zap.Int("inliers", inliers),
		zap.Object("correction", smoothed),
	)
	return smoothed, stats
}

// estimate runs the sampling consensus fit: minimal three-pair samples,
// inlier counting, then a refit over the best inlier set. When no sample
// reaches the correspondence floor the refit falls back to the full set.
func (c *Corrector) estimate(pairs []correspondence) (rigid, int, bool) {
	c.mu.Lock()
	var bestInliers []int
	for iter := 0; iter < c.cfg.MaxIterations && len(pairs) > 3; iter++ {
		perm := c.rng.Perm(len(pairs))
		sample := []correspondence{pairs[perm[0]], pairs[perm[1]], pairs[perm[2]]}
		candidate, ok := solveRigid(sample)
		if !ok {
			continue
		}
		var inliers []int
		for i, pair := range pairs {
			if candidate.residual(pair) <= c.cfg.InlierThreshold {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}
	c.mu.Unlock()

	chosen := pairs
	if len(bestInliers) >= c.cfg.MinCorrespondences {
		chosen = make([]correspondence, len(bestInliers))
		for i, idx := range bestInliers {
			chosen[i] = pairs[idx]
		}
	}
	transform, ok := solveRigid(chosen)
	return transform, len(chosen), ok
}

func (c *Corrector) smooth(deviceID string, raw types.Correction) types.Correction {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.prev[deviceID]
	var smoothed types.Correction
	for i := range raw {
		smoothed[i] = prev[i]*c.cfg.Smoothing + raw[i]*(1-c.cfg.Smoothing)
	}
	c.prev[deviceID] = smoothed
	return smoothed
}

// Forget drops the smoothing history of a device, typically after it left
// the session.
func (c *Corrector) Forget(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prev, deviceID)
}
