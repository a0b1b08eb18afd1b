package conflict_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/conflict"
)

func state(id string, pos types.Vector3, lastUpdate int64) types.DeviceState {
	return types.DeviceState{
		DeviceID:    id,
		DeviceType:  types.HeadsetStandalone,
		Position:    pos,
		Orientation: types.IdentityQuaternion,
		LastUpdate:  lastUpdate,
	}
}

func TestResolver_NoConflictAcceptsCandidate(t *testing.T) {
	resolver := conflict.New(conflict.WithLogger(zaptest.NewLogger(t)))

	candidate := state("a", types.Vector3{X: 1, Y: 1, Z: 1}, 100)
	resolved, changed := resolver.Resolve(candidate, nil)
	require.False(t, changed)
	require.Equal(t, candidate, resolved)

	// another device outside the radius is no conflict either
	far := state("b", types.Vector3{X: 2, Y: 1, Z: 1}, 200)
	resolved, changed = resolver.Resolve(candidate, []types.DeviceState{far})
	require.False(t, changed)
	require.Equal(t, candidate, resolved)

	require.Equal(t, 0.0, resolver.ResolutionRate())
}

func TestResolver_HostAuthority(t *testing.T) {
	resolver := conflict.New()

	host := state("host", types.Vector3{X: 1.1, Y: 1, Z: 1}, 50)
	host.IsHost = true
	host.Orientation = types.Quaternion{X: 0.5, Y: 0.5, Z: 0.5, W: 0.5}
	newer := state("newer", types.Vector3{X: 1.2, Y: 1, Z: 1}, 500)

	candidate := state("a", types.Vector3{X: 1, Y: 1, Z: 1}, 100)
	resolved, changed := resolver.Resolve(candidate, []types.DeviceState{newer, host})
	require.True(t, changed)
	// host wins over the newer non-host state, bit for bit
	require.Equal(t, host.Position, resolved.Position)
	require.Equal(t, host.Orientation, resolved.Orientation)
	// identity of the candidate is preserved
	require.Equal(t, "a", resolved.DeviceID)
	require.Equal(t, int64(100), resolved.LastUpdate)
}

func TestResolver_HostCandidateKeepsOwnPose(t *testing.T) {
	resolver := conflict.New()

	candidate := state("host", types.Vector3{X: 1, Y: 1, Z: 1}, 100)
	candidate.IsHost = true
	newer := state("b", types.Vector3{X: 1.2, Y: 1, Z: 1}, 500)

	resolved, changed := resolver.Resolve(candidate, []types.DeviceState{newer})
	require.False(t, changed)
	require.Equal(t, candidate.Position, resolved.Position)
}

func TestResolver_LatestWriteWins(t *testing.T) {
	resolver := conflict.New()

	// the scenario both sides must agree on: [1,1,1]@100 vs [1.02,1,1]@200
	posA := types.Vector3{X: 1, Y: 1, Z: 1}
	posB := types.Vector3{X: 1.02, Y: 1, Z: 1}

	candA := state("a", posA, 100)
	candB := state("b", posB, 200)

	resolvedA, changedA := resolver.Resolve(candA, []types.DeviceState{state("b", posB, 200)})
	require.True(t, changedA)
	require.Equal(t, posB, resolvedA.Position)

	resolvedB, changedB := resolver.Resolve(candB, []types.DeviceState{state("a", posA, 100)})
	require.False(t, changedB)
	require.Equal(t, posB, resolvedB.Position)
}

func TestResolver_TimestampTieBrokenByDeviceID(t *testing.T) {
	resolver := conflict.New()
	pos1 := types.Vector3{X: 1}
	pos2 := types.Vector3{X: 1.1}

	// same lastUpdate on both sides: the greater device id must win on
	// every participant
	fromA, _ := resolver.Resolve(state("a", pos1, 100), []types.DeviceState{state("b", pos2, 100)})
	fromB, _ := resolver.Resolve(state("b", pos2, 100), []types.DeviceState{state("a", pos1, 100)})
	require.Equal(t, fromA.Position, fromB.Position)
	require.Equal(t, pos2, fromA.Position)
}

func TestResolver_ResolutionRate(t *testing.T) {
	resolver := conflict.New()
	require.Equal(t, 0.0, resolver.ResolutionRate())

	candidate := state("a", types.Vector3{X: 1}, 100)
	conflicting := []types.DeviceState{state("b", types.Vector3{X: 1.1}, 900)}

	resolver.Resolve(candidate, conflicting) // changed
	resolver.Resolve(candidate, nil)         // unchanged
	resolver.Resolve(candidate, conflicting) // changed
	resolver.Resolve(candidate, nil)         // unchanged

	require.Equal(t, 0.5, resolver.ResolutionRate())
}

func TestResolver_CustomRadius(t *testing.T) {
	resolver := conflict.New(conflict.WithConfig(conflict.Config{Radius: 0.05}))

	candidate := state("a", types.Vector3{X: 1}, 100)
	nearby := state("b", types.Vector3{X: 1.1}, 900)

	// 0.1 m apart is outside a 0.05 m radius
	_, changed := resolver.Resolve(candidate, []types.DeviceState{nearby})
	require.False(t, changed)
}
