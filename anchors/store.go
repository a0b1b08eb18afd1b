// Package anchors stores the spatial anchors of a session and implements
// the consensus merge applied when devices observe the same physical point.
package anchors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/nerfedge/spatialsync/common/types"
)

type Opt func(*Store)

func WithLogger(log *zap.Logger) Opt {
	return func(s *Store) {
		s.log = log
	}
}

// Observation is one device's latest claim about an anchor.
type Observation struct {
	Confidence float64
	Timestamp  int64
}

type entry struct {
	anchor    types.SpatialAnchor
	observers map[string]Observation
}

// Store is the anchor store. Anchors are merged, never silently
// overwritten; time is always passed in by the caller.
type Store struct {
	log *zap.Logger

	mu      sync.Mutex
	anchors map[string]*entry
}

func New(opts ...Opt) *Store {
	s := &Store{
		log:     zap.NewNop(),
		anchors: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert stores the anchor as a new entry. A colliding id gets replaced
// with a fresh one so an existing anchor is never overwritten. Returns the
// stored anchor.
func (s *Store) Insert(anchor types.SpatialAnchor) types.SpatialAnchor {
	anchor.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.anchors[anchor.ID]; taken || anchor.ID == "" {
		anchor.ID = uuid.NewString()
	}
	s.anchors[anchor.ID] = &entry{
		anchor: anchor,
		observers: map[string]Observation{
			anchor.DeviceID: {Confidence: anchor.Confidence, Timestamp: anchor.Timestamp},
		},
	}
	insertedAnchors.Inc()
	anchorCount.Set(float64(len(s.anchors)))
	return anchor
}

// Merge folds a candidate observation into an existing anchor using a
// confidence and recency weighted average. Each side weighs
// confidence/(age+1), merged confidence is the maximum of the two, and the
// candidate is recorded as an observer of the anchor.
func (s *Store) Merge(existingID string, candidate types.SpatialAnchor, nowMillis int64) (types.SpatialAnchor, error) {
	candidate.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.anchors[existingID]
	if !ok {
		return types.SpatialAnchor{}, fmt.Errorf("merge into unknown anchor %s", existingID)
	}
	existing := ent.anchor

	wCand := candidate.Confidence / float64(candidate.Age(nowMillis)+1)
	wExist := existing.Confidence / float64(existing.Age(nowMillis)+1)
	total := wCand + wExist
	if total == 0 {
		wCand, wExist, total = 1, 1, 2
	}

	merged := existing
	merged.Position = candidate.Position.Scale(wCand).Add(existing.Position.Scale(wExist)).Scale(1 / total)
	merged.Orientation = blendOrientation(candidate.Orientation, existing.Orientation, wCand/total, wExist/total)
	merged.Confidence = max(candidate.Confidence, existing.Confidence)
	merged.PersistenceScore = (candidate.PersistenceScore*wCand + existing.PersistenceScore*wExist) / total
	merged.Timestamp = max(candidate.Timestamp, existing.Timestamp)
	merged.Clamp()

	ent.anchor = merged
	ent.observers[candidate.DeviceID] = Observation{Confidence: candidate.Confidence, Timestamp: candidate.Timestamp}
	mergedAnchors.Inc()
	return merged, nil
}

// blendOrientation interpolates two unit quaternions with normalized
// weights, flipping signs first when they sit on opposite hemispheres.
func blendOrientation(a, b types.Quaternion, wa, wb float64) types.Quaternion {
	dot := a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
	if dot < 0 {
		b = types.Quaternion{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
	}
	return types.Quaternion{
		X: a.X*wa + b.X*wb,
		Y: a.Y*wa + b.Y*wb,
		Z: a.Z*wa + b.Z*wb,
		W: a.W*wa + b.W*wb,
	}.Normalized()
}

func (s *Store) Get(id string) (types.SpatialAnchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.anchors[id]
	if !ok {
		return types.SpatialAnchor{}, false
	}
	return ent.anchor, true
}

// NearestWithin returns the closest anchor within radius meters of the
// position, if any.
func (s *Store) NearestWithin(position types.Vector3, radius float64) (types.SpatialAnchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best     types.SpatialAnchor
		bestDist = radius
		found    bool
	)
	for _, ent := range s.anchors {
		if d := ent.anchor.Position.Distance(position); d <= bestDist {
			best, bestDist, found = ent.anchor, d, true
		}
	}
	return best, found
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.anchors)
}

// Snapshot returns all anchors ordered by id.
func (s *Store) Snapshot() []types.SpatialAnchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(maps.Values(s.anchors))
}

// ConsensusSet returns the anchors validated by at least two devices,
// ordered by id. These are the anchors drift estimation may trust.
func (s *Store) ConsensusSet() []types.SpatialAnchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []*entry
	for _, ent := range s.anchors {
		if len(ent.observers) >= 2 {
			entries = append(entries, ent)
		}
	}
	return s.sortedLocked(entries)
}

func (s *Store) sortedLocked(entries []*entry) []types.SpatialAnchor {
	anchors := make([]types.SpatialAnchor, 0, len(entries))
	for _, ent := range entries {
		anchors = append(anchors, ent.anchor)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].ID < anchors[j].ID })
	return anchors
}

// Observations returns a copy of the per-device observations of an anchor.
func (s *Store) Observations(id string) (map[string]Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.anchors[id]
	if !ok {
		return nil, false
	}
	obs := make(map[string]Observation, len(ent.observers))
	maps.Copy(obs, ent.observers)
	return obs, true
}

// SetCollaborativeWeight writes a recomputed consensus weight back onto an
// anchor. Reports whether the anchor still exists.
func (s *Store) SetCollaborativeWeight(id string, weight float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.anchors[id]
	if !ok {
		return false
	}
	ent.anchor.CollaborativeWeight = weight
	ent.anchor.Clamp()
	return true
}

// Prune removes anchors that score below minPersistence and are older than
// maxAge ms, and returns their ids. Either condition alone keeps the
// anchor alive.
func (s *Store) Prune(nowMillis int64, minPersistence float64, maxAgeMillis int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, ent := range s.anchors {
		if ent.anchor.PersistenceScore < minPersistence && ent.anchor.Age(nowMillis) > maxAgeMillis {
			delete(s.anchors, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		prunedAnchors.Add(float64(len(removed)))
		anchorCount.Set(float64(len(s.anchors)))
		s.log.Debug("pruned anchors", zap.Strings("anchors", removed))
	}
	return removed
}
