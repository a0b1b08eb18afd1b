// Package registry tracks the devices participating in a session.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/nerfedge/spatialsync/common/types"
)

type Opt func(*Registry)

func WithLogger(log *zap.Logger) Opt {
	return func(r *Registry) {
		r.log = log
	}
}

// Registry is the device state store. All methods are safe for concurrent
// use; time is always passed in by the caller so the registry itself stays
// pure data.
type Registry struct {
	log *zap.Logger

	mu      sync.Mutex
	devices map[string]types.DeviceState
	hostID  string
}

func New(opts ...Opt) *Registry {
	r := &Registry{
		log:     zap.NewNop(),
		devices: map[string]types.DeviceState{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update upserts a device state. A host claim is honored only when the
// session has no host yet or the claim comes from the current host; a
// conflicting claim is logged and stored demoted. A host storing itself
// with IsHost false resigns.
func (r *Registry) Update(state types.DeviceState) types.DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case state.IsHost && r.hostID != "" && r.hostID != state.DeviceID:
		r.log.Warn("rejected host claim",
			zap.String("claimant", state.DeviceID),
			zap.String("host", r.hostID),
		)
		state.IsHost = false
	case state.IsHost:
		r.hostID = state.DeviceID
	case r.hostID == state.DeviceID:
		r.hostID = ""
	}
	r.devices[state.DeviceID] = state
	deviceCount.Set(float64(len(r.devices)))
	return state
}

func (r *Registry) Get(deviceID string) (types.DeviceState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.devices[deviceID]
	return state, ok
}

// Host returns the current host device, if any.
func (r *Registry) Host() (types.DeviceState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hostID == "" {
		return types.DeviceState{}, false
	}
	state, ok := r.devices[r.hostID]
	return state, ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Snapshot returns all device states ordered by device id.
func (r *Registry) Snapshot() []types.DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := maps.Values(r.devices)
	sort.Slice(states, func(i, j int) bool { return states[i].DeviceID < states[j].DeviceID })
	return states
}

// Others returns the states of every device except the given one, ordered
// by device id.
func (r *Registry) Others(deviceID string) []types.DeviceState {
	states := r.Snapshot()
	filtered := states[:0]
	for _, state := range states {
		if state.DeviceID != deviceID {
			filtered = append(filtered, state)
		}
	}
	return filtered
}

// Prune removes devices that have not updated within staleAfter ms and
// returns their ids. A pruned host leaves the session hostless.
func (r *Registry) Prune(nowMillis, staleAfter int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, state := range r.devices {
		if state.StaleSince(nowMillis) > staleAfter {
			delete(r.devices, id)
			if r.hostID == id {
				r.hostID = ""
			}
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		prunedDevices.Add(float64(len(removed)))
		deviceCount.Set(float64(len(r.devices)))
		r.log.Debug("pruned stale devices", zap.Strings("devices", removed))
	}
	return removed
}
