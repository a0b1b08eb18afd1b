package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/registry"
)

func device(id string, lastUpdate int64) types.DeviceState {
	return types.DeviceState{
		DeviceID:   id,
		DeviceType: types.Web,
		Capability: types.DefaultCapability(types.Web),
		LastUpdate: lastUpdate,
	}
}

func TestRegistry_UpdateAndGet(t *testing.T) {
	reg := registry.New(registry.WithLogger(zaptest.NewLogger(t)))
	reg.Update(device("a", 100))
	reg.Update(device("b", 200))

	state, ok := reg.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(100), state.LastUpdate)
	require.Equal(t, 2, reg.Count())

	_, ok = reg.Get("missing")
	require.False(t, ok)
}

func TestRegistry_HostArbitration(t *testing.T) {
	reg := registry.New(registry.WithLogger(zaptest.NewLogger(t)))

	first := device("a", 100)
	first.IsHost = true
	stored := reg.Update(first)
	require.True(t, stored.IsHost)

	host, ok := reg.Host()
	require.True(t, ok)
	require.Equal(t, "a", host.DeviceID)

	// later claim from another device is demoted
	second := device("b", 200)
	second.IsHost = true
	stored = reg.Update(second)
	require.False(t, stored.IsHost)

	host, ok = reg.Host()
	require.True(t, ok)
	require.Equal(t, "a", host.DeviceID)

	// current host can re-claim
	first.LastUpdate = 300
	stored = reg.Update(first)
	require.True(t, stored.IsHost)

	// and resign
	first.IsHost = false
	reg.Update(first)
	_, ok = reg.Host()
	require.False(t, ok)
}

func TestRegistry_PruneStale(t *testing.T) {
	const staleAfter = 60_000
	reg := registry.New(registry.WithLogger(zaptest.NewLogger(t)))
	reg.Update(device("fresh", 50_000))
	reg.Update(device("stale", 1_000))

	hostState := device("stale-host", 0)
	hostState.IsHost = true
	reg.Update(hostState)

	removed := reg.Prune(65_000, staleAfter)
	require.Equal(t, []string{"stale", "stale-host"}, removed)
	require.Equal(t, 1, reg.Count())

	_, ok := reg.Get("fresh")
	require.True(t, ok)
	_, ok = reg.Host()
	require.False(t, ok)

	// exactly at the threshold is not yet stale
	reg2 := registry.New()
	reg2.Update(device("edge", 5_000))
	require.Empty(t, reg2.Prune(65_000, staleAfter))
}

func TestRegistry_OthersExcludesSelf(t *testing.T) {
	reg := registry.New()
	reg.Update(device("c", 1))
	reg.Update(device("a", 1))
	reg.Update(device("b", 1))

	others := reg.Others("b")
	require.Len(t, others, 2)
	require.Equal(t, "a", others[0].DeviceID)
	require.Equal(t, "c", others[1].DeviceID)

	require.Len(t, reg.Others("nobody"), 3)
}
