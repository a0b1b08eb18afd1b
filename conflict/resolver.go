// Package conflict resolves spatially conflicting device state claims.
package conflict

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerfedge/spatialsync/common/types"
)

// Config holds the conflict detection parameters.
type Config struct {
	// Radius is the distance in meters under which two device positions
	// are considered in conflict.
	Radius float64 `mapstructure:"radius"`
}

func DefaultConfig() Config {
	return Config{Radius: 0.5}
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddFloat64("radius", c.Radius)
	return nil
}

type Opt func(*Resolver)

func WithLogger(log *zap.Logger) Opt {
	return func(r *Resolver) {
		r.log = log
	}
}

func WithConfig(cfg Config) Opt {
	return func(r *Resolver) {
		r.cfg = cfg
	}
}

// Resolver deterministically resolves conflicting device states. Resolution
// never fails; with nothing to conflict against it degrades to accepting
// the candidate unchanged.
type Resolver struct {
	log *zap.Logger
	cfg Config

	mu          sync.Mutex
	attempts    uint64
	resolutions uint64
}

func New(opts ...Opt) *Resolver {
	r := &Resolver{
		log: zap.NewNop(),
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the candidate after conflict resolution against the other
// registered devices, and whether resolution changed it.
//
// The host always prevails: a host candidate keeps its own pose, and a
// conflicting set containing the host makes the candidate adopt the host
// pose verbatim. Without a host involved the pose with the greatest
// lastUpdate among candidate and conflicts wins, device id breaking exact
// timestamp ties so every participant resolves identically.
func (r *Resolver) Resolve(candidate types.DeviceState, others []types.DeviceState) (types.DeviceState, bool) {
	var conflicts []types.DeviceState
	for _, other := range others {
		if other.DeviceID == candidate.DeviceID {
			continue
		}
		if other.Position.Distance(candidate.Position) < r.cfg.Radius {
			conflicts = append(conflicts, other)
		}
	}

	resolved := candidate
	switch {
	case len(conflicts) == 0 || candidate.IsHost:
		// nothing to do
	default:
		winner := candidate
		for _, conflict := range conflicts {
			if conflict.IsHost {
				winner = conflict
				break
			}
			if conflict.LastUpdate > winner.LastUpdate ||
				(conflict.LastUpdate == winner.LastUpdate && conflict.DeviceID > winner.DeviceID) {
				winner = conflict
			}
		}
		resolved.Position = winner.Position
		resolved.Orientation = winner.Orientation
	}

	changed := resolved.Position != candidate.Position || resolved.Orientation != candidate.Orientation

	r.mu.Lock()
	r.attempts++
	if changed {
		r.resolutions++
	}
	r.mu.Unlock()
	resolutionAttempts.Inc()
	if changed {
		resolutionChanges.Inc()
		r.log.Debug("resolved conflicting device state",
			zap.String("device", candidate.DeviceID),
			zap.Int("conflicts", len(conflicts)),
			zap.Object("resolved", &resolved),
		)
	}
	return resolved, changed
}

// ResolutionRate reports the fraction of attempts that changed the
// candidate. Zero before the first attempt.
func (r *Resolver) ResolutionRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts == 0 {
		return 0
	}
	return float64(r.resolutions) / float64(r.attempts)
}
