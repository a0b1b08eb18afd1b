// Package consensus recomputes anchor collaborative weights from
// per-device reliability.
package consensus

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerfedge/spatialsync/anchors"
	"github.com/nerfedge/spatialsync/common/types"
)

// Config holds the reliability model parameters.
type Config struct {
	// ReliabilityWindow is the time over which a silent device decays from
	// fully reliable to the floor.
	ReliabilityWindow time.Duration `mapstructure:"reliability-window"`
	// Floor is the minimum reliability assigned to any known device.
	Floor float64 `mapstructure:"floor"`
}

func DefaultConfig() Config {
	return Config{
		ReliabilityWindow: time.Minute,
		Floor:             0.1,
	}
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddDuration("reliability_window", c.ReliabilityWindow)
	encoder.AddFloat64("floor", c.Floor)
	return nil
}

type deviceView interface {
	Get(deviceID string) (types.DeviceState, bool)
	Count() int
}

type anchorView interface {
	Snapshot() []types.SpatialAnchor
	Observations(id string) (map[string]anchors.Observation, bool)
	SetCollaborativeWeight(id string, weight float64) bool
}

type Opt func(*Weigher)

func WithLogger(log *zap.Logger) Opt {
	return func(w *Weigher) {
		w.log = log
	}
}

func WithConfig(cfg Config) Opt {
	return func(w *Weigher) {
		w.cfg = cfg
	}
}

// Weigher writes collaborative weights back onto anchors. The weight is
// diagnostic and feeds merging; it never gates whether an anchor is stored.
type Weigher struct {
	log     *zap.Logger
	cfg     Config
	devices deviceView
	anchors anchorView
}

func New(devices deviceView, anchorStore anchorView, opts ...Opt) *Weigher {
	w := &Weigher{
		log:     zap.NewNop(),
		cfg:     DefaultConfig(),
		devices: devices,
		anchors: anchorStore,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reliability scores how much a device's claims count right now, decaying
// linearly with silence down to the configured floor.
func (w *Weigher) Reliability(lastUpdate, nowMillis int64) float64 {
	window := float64(w.cfg.ReliabilityWindow.Milliseconds())
	rel := 1 - float64(nowMillis-lastUpdate)/window
	if rel > 1 {
		rel = 1
	}
	return max(w.cfg.Floor, rel)
}

// Reweigh recomputes the collaborative weight of every stored anchor and
// returns how many anchors were updated. A single-device session is full
// consensus trivially, weight 1 everywhere.
func (w *Weigher) Reweigh(nowMillis int64) int {
	rounds.Inc()
	single := w.devices.Count() <= 1
	updated := 0
	for _, anchor := range w.anchors.Snapshot() {
		if single {
			if w.anchors.SetCollaborativeWeight(anchor.ID, 1) {
				weightDistribution.Observe(1)
				updated++
			}
			continue
		}
		observations, ok := w.anchors.Observations(anchor.ID)
		if !ok {
			continue
		}
		var weighted, total float64
		for deviceID, observation := range observations {
			// a pruned device's last claim stands in for its last update
			last := observation.Timestamp
			if state, known := w.devices.Get(deviceID); known {
				last = state.LastUpdate
			}
			rel := w.Reliability(last, nowMillis)
			weighted += observation.Confidence * rel
			total += rel
		}
		if total == 0 {
			continue
		}
		if w.anchors.SetCollaborativeWeight(anchor.ID, weighted/total) {
			weightDistribution.Observe(weighted / total)
			updated++
		}
	}
	if updated > 0 {
		reweighed.Add(float64(updated))
		w.log.Debug("consensus round complete", zap.Int("anchors", updated))
	}
	return updated
}
