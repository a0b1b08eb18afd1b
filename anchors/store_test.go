package anchors_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nerfedge/spatialsync/anchors"
	"github.com/nerfedge/spatialsync/common/types"
)

func anchor(id, device string, pos types.Vector3, confidence float64, ts int64) types.SpatialAnchor {
	return types.SpatialAnchor{
		ID:               id,
		Position:         pos,
		Orientation:      types.IdentityQuaternion,
		Confidence:       confidence,
		Timestamp:        ts,
		DeviceID:         device,
		PersistenceScore: 0.9,
	}
}

func TestStore_InsertNeverOverwrites(t *testing.T) {
	store := anchors.New(anchors.WithLogger(zaptest.NewLogger(t)))

	first := store.Insert(anchor("shared", "dev-a", types.Vector3{X: 1}, 0.8, 100))
	require.Equal(t, "shared", first.ID)

	second := store.Insert(anchor("shared", "dev-b", types.Vector3{X: 2}, 0.7, 200))
	require.NotEqual(t, "shared", second.ID)
	require.NotEmpty(t, second.ID)
	require.Equal(t, 2, store.Count())

	kept, ok := store.Get("shared")
	require.True(t, ok)
	require.Equal(t, types.Vector3{X: 1}, kept.Position)

	// empty id gets generated
	third := store.Insert(anchor("", "dev-c", types.Vector3{X: 3}, 0.5, 300))
	require.NotEmpty(t, third.ID)
}

func TestStore_MergeFavorsFreshConfidentObservation(t *testing.T) {
	const now = int64(10_000)
	store := anchors.New()

	existing := store.Insert(anchor("a1", "dev-a", types.Vector3{}, 0.5, now-1000))
	candidate := anchor("a1-cand", "dev-b", types.Vector3{X: 1}, 0.9, now)

	merged, err := store.Merge(existing.ID, candidate, now)
	require.NoError(t, err)

	// confidence is the max of the two observations
	require.Equal(t, 0.9, merged.Confidence)
	// position sits strictly closer to the fresh confident observation
	// than a 50/50 average would
	require.Greater(t, merged.Position.X, 0.5)
	require.Less(t, merged.Position.X, 1.0)
	// latest observation time wins
	require.Equal(t, now, merged.Timestamp)
	// the merged orientation stays unit length
	require.InDelta(t, 1.0, merged.Orientation.Norm(), 1e-9)

	_, err = store.Merge("missing", candidate, now)
	require.ErrorContains(t, err, "unknown anchor")
}

func TestStore_NearestWithin(t *testing.T) {
	store := anchors.New()
	store.Insert(anchor("near", "dev-a", types.Vector3{X: 0.05}, 0.9, 1))
	store.Insert(anchor("far", "dev-a", types.Vector3{X: 5}, 0.9, 1))

	found, ok := store.NearestWithin(types.Vector3{}, 0.10)
	require.True(t, ok)
	require.Equal(t, "near", found.ID)

	// exactly on the radius still matches
	store.Insert(anchor("edge", "dev-a", types.Vector3{Y: 0.10}, 0.9, 1))
	found, ok = store.NearestWithin(types.Vector3{Y: 0.0}, 0.10)
	require.True(t, ok)
	require.Equal(t, "near", found.ID) // 0.05 beats 0.10

	_, ok = store.NearestWithin(types.Vector3{X: 100}, 0.10)
	require.False(t, ok)
}

func TestStore_PruneByPersistenceAndAge(t *testing.T) {
	const (
		now            = int64(400_000)
		minPersistence = 0.5
		maxAge         = int64(300_000)
	)
	store := anchors.New(anchors.WithLogger(zaptest.NewLogger(t)))

	old := anchor("transient-old", "dev-a", types.Vector3{}, 0.8, now-301_000)
	old.PersistenceScore = 0.4
	store.Insert(old)

	recent := anchor("transient-recent", "dev-a", types.Vector3{X: 1}, 0.8, now-299_000)
	recent.PersistenceScore = 0.4
	store.Insert(recent)

	structural := anchor("structural", "dev-a", types.Vector3{X: 2}, 0.8, now-400_000)
	structural.PersistenceScore = 0.95
	store.Insert(structural)

	removed := store.Prune(now, minPersistence, maxAge)
	require.Equal(t, []string{"transient-old"}, removed)

	_, ok := store.Get("transient-recent")
	require.True(t, ok)
	_, ok = store.Get("structural")
	require.True(t, ok)
}

func TestStore_ConsensusSetNeedsTwoObservers(t *testing.T) {
	const now = int64(1_000)
	store := anchors.New()

	solo := store.Insert(anchor("solo", "dev-a", types.Vector3{}, 0.9, now))
	shared := store.Insert(anchor("shared", "dev-a", types.Vector3{X: 1}, 0.9, now))

	require.Empty(t, store.ConsensusSet())

	_, err := store.Merge(shared.ID, anchor("obs", "dev-b", types.Vector3{X: 1.01}, 0.8, now), now)
	require.NoError(t, err)

	set := store.ConsensusSet()
	require.Len(t, set, 1)
	require.Equal(t, "shared", set[0].ID)

	obs, ok := store.Observations(shared.ID)
	require.True(t, ok)
	require.Len(t, obs, 2)
	require.Equal(t, 0.8, obs["dev-b"].Confidence)

	_, ok = store.Observations("nope")
	require.False(t, ok)
	_ = solo
}

func TestStore_SetCollaborativeWeightClamps(t *testing.T) {
	store := anchors.New()
	a := store.Insert(anchor("a", "dev-a", types.Vector3{}, 0.9, 1))

	require.True(t, store.SetCollaborativeWeight(a.ID, 1.7))
	got, ok := store.Get(a.ID)
	require.True(t, ok)
	require.Equal(t, 1.0, got.CollaborativeWeight)

	require.False(t, store.SetCollaborativeWeight("missing", 0.5))
}

func TestStore_SnapshotSorted(t *testing.T) {
	store := anchors.New()
	store.Insert(anchor("b", "dev-a", types.Vector3{}, 0.9, 1))
	store.Insert(anchor("a", "dev-a", types.Vector3{X: 1}, 0.9, 1))
	store.Insert(anchor("c", "dev-a", types.Vector3{X: 2}, 0.9, 1))

	snap := store.Snapshot()
	require.Len(t, snap, 3)
	require.True(t, snap[0].ID < snap[1].ID && snap[1].ID < snap[2].ID)
}

func TestBlendKeepsHemisphere(t *testing.T) {
	const now = int64(1_000)
	store := anchors.New()
	existing := store.Insert(anchor("a", "dev-a", types.Vector3{}, 0.5, now))

	flipped := anchor("cand", "dev-b", types.Vector3{}, 0.5, now)
	flipped.Orientation = types.Quaternion{W: -1}

	merged, err := store.Merge(existing.ID, flipped, now)
	require.NoError(t, err)
	require.InDelta(t, 1.0, math.Abs(merged.Orientation.W), 1e-9)
}
