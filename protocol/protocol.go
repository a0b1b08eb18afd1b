// Package protocol drives a spatial sync session: one local device joined
// to a room, exchanging device states, anchors and collaboration events
// with its peers and reconciling everything into a shared spatial frame.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/nerfedge/spatialsync/anchors"
	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/conflict"
	"github.com/nerfedge/spatialsync/consensus"
	"github.com/nerfedge/spatialsync/drift"
	"github.com/nerfedge/spatialsync/events"
	"github.com/nerfedge/spatialsync/registry"
	"github.com/nerfedge/spatialsync/router"
	"github.com/nerfedge/spatialsync/transport/mesh"
	"github.com/nerfedge/spatialsync/transport/relay"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("session is already initialized")
	// ErrNotActive is returned by sync operations before Initialize completes.
	ErrNotActive = errors.New("session is not active")
	// ErrDisposed is returned by any operation after Dispose.
	ErrDisposed = errors.New("session is disposed")
)

// State is the lifecycle phase of a session.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Active
	Disposed
)

var stateNames = [...]string{"uninitialized", "initializing", "active", "disposed"}

func (s State) String() string {
	if int(s) >= len(stateNames) {
		return fmt.Sprintf("unknown(%d)", s)
	}
	return stateNames[s]
}

// Config composes the session parameters with the configuration of every
// component the session builds.
type Config struct {
	// StaleDeviceTimeout is how long a device may stay silent before it is
	// dropped from the registry.
	StaleDeviceTimeout time.Duration `mapstructure:"stale-device-timeout"`
	// MaintenanceInterval paces the pruning and consensus pass.
	MaintenanceInterval time.Duration `mapstructure:"maintenance-interval"`
	// AnchorMergeRadius is the search distance in meters under which a new
	// anchor observation folds into an existing anchor.
	AnchorMergeRadius float64 `mapstructure:"anchor-merge-radius"`
	// AnchorMinPersistence and AnchorMaxAge gate pruning. An anchor is
	// dropped only when it scores below the one and is older than the other.
	AnchorMinPersistence float64       `mapstructure:"anchor-min-persistence"`
	AnchorMaxAge         time.Duration `mapstructure:"anchor-max-age"`
	// DriftCorrection enables drift estimation during anchor sync.
	DriftCorrection bool `mapstructure:"drift-correction"`
	// LatencySmoothing is the weight of a fresh latency sample against the
	// stored estimate.
	LatencySmoothing float64 `mapstructure:"latency-smoothing"`

	Router    router.Config    `mapstructure:"router"`
	Relay     relay.Config     `mapstructure:"relay"`
	Mesh      mesh.Config      `mapstructure:"mesh"`
	Conflict  conflict.Config  `mapstructure:"conflict"`
	Consensus consensus.Config `mapstructure:"consensus"`
	Drift     drift.Config     `mapstructure:"drift"`
}

func DefaultConfig() Config {
	return Config{
		StaleDeviceTimeout:   time.Minute,
		MaintenanceInterval:  time.Second,
		AnchorMergeRadius:    0.10,
		AnchorMinPersistence: 0.5,
		AnchorMaxAge:         5 * time.Minute,
		DriftCorrection:      true,
		LatencySmoothing:     0.3,

		Router:    router.DefaultConfig(),
		Relay:     relay.DefaultConfig(),
		Mesh:      mesh.DefaultConfig(),
		Conflict:  conflict.DefaultConfig(),
		Consensus: consensus.DefaultConfig(),
		Drift:     drift.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	if c.StaleDeviceTimeout <= 0 {
		return errors.New("stale device timeout must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		return errors.New("maintenance interval must be positive")
	}
	if c.AnchorMergeRadius <= 0 {
		return errors.New("anchor merge radius must be positive")
	}
	if c.LatencySmoothing < 0 || c.LatencySmoothing > 1 {
		return fmt.Errorf("latency smoothing %v outside [0,1]", c.LatencySmoothing)
	}
	if c.Mesh.Enable {
		if err := c.Mesh.Validate(); err != nil {
			return fmt.Errorf("mesh: %w", err)
		}
	}
	return nil
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddDuration("stale device timeout", c.StaleDeviceTimeout)
	encoder.AddDuration("maintenance interval", c.MaintenanceInterval)
	encoder.AddFloat64("anchor merge radius", c.AnchorMergeRadius)
	encoder.AddFloat64("anchor min persistence", c.AnchorMinPersistence)
	encoder.AddDuration("anchor max age", c.AnchorMaxAge)
	encoder.AddBool("drift correction", c.DriftCorrection)
	encoder.AddFloat64("latency smoothing", c.LatencySmoothing)
	encoder.AddObject("router", &c.Router)
	encoder.AddObject("relay", &c.Relay)
	encoder.AddObject("mesh", &c.Mesh)
	encoder.AddObject("conflict", &c.Conflict)
	encoder.AddObject("consensus", &c.Consensus)
	encoder.AddObject("drift", &c.Drift)
	return nil
}

// Opt for configuring the session.
type Opt func(*Protocol)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(p *Protocol) {
		p.log = logger
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Opt {
	return func(p *Protocol) {
		p.cfg = cfg
	}
}

// WithClock substitutes the clock behind timestamps, staleness and the
// maintenance pass.
func WithClock(clock clockwork.Clock) Opt {
	return func(p *Protocol) {
		p.clock = clock
	}
}

// WithRouter injects a prebuilt router. Initialize then skips building the
// transports and uses the given router as is.
func WithRouter(rtr Router) Opt {
	return func(p *Protocol) {
		p.rtr = rtr
	}
}

// Protocol is one device's session handle. All methods are safe for
// concurrent use.
type Protocol struct {
	// state
	ctx     context.Context
	cancel  context.CancelFunc
	eg      errgroup.Group
	stopped sync.Once
	mu      sync.Mutex
	state   State
	roomID  string
	local   types.DeviceState

	// options
	cfg   Config
	log   *zap.Logger
	clock clockwork.Clock

	// dependencies
	rtr       Router
	mesh      *mesh.Mesh
	registry  *registry.Registry
	anchors   *anchors.Store
	resolver  *conflict.Resolver
	corrector *drift.Corrector
	weigher   *consensus.Weigher
	bus       *events.Bus
}

// New creates a session around the local device. A device without an id
// gets a generated one, a device without capabilities gets the preset of
// its type. The session does nothing until Initialize.
func New(local types.DeviceState, opts ...Opt) *Protocol {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Protocol{
		ctx:    ctx,
		cancel: cancel,
		state:  Uninitialized,
		local:  local,

		cfg:   DefaultConfig(),
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.local.DeviceID == "" {
		p.local.DeviceID = uuid.NewString()
	}
	if p.local.Capability.IsZero() {
		p.local.Capability = types.DefaultCapability(p.local.DeviceType)
	}
	p.registry = registry.New(registry.WithLogger(p.log.Named("registry")))
	p.anchors = anchors.New(anchors.WithLogger(p.log.Named("anchors")))
	p.resolver = conflict.New(
		conflict.WithLogger(p.log.Named("conflict")),
		conflict.WithConfig(p.cfg.Conflict),
	)
	p.corrector = drift.New(
		drift.WithLogger(p.log.Named("drift")),
		drift.WithConfig(p.cfg.Drift),
	)
	p.weigher = consensus.New(p.registry, p.anchors,
		consensus.WithLogger(p.log.Named("consensus")),
		consensus.WithConfig(p.cfg.Consensus),
	)
	p.bus = events.NewBus(events.WithLogger(p.log.Named("events")))
	sessionState.Set(float64(p.state))
	return p
}

// Initialize joins the room and brings the session to Active. With a relay
// endpoint configured a failure to connect is fatal and leaves the session
// Uninitialized so the caller may retry. Without an endpoint and with the
// mesh disabled the session runs local only.
func (p *Protocol) Initialize(ctx context.Context, roomID string) error {
	p.mu.Lock()
	switch p.state {
	case Uninitialized:
	case Disposed:
		p.mu.Unlock()
		return ErrDisposed
	default:
		p.mu.Unlock()
		return ErrAlreadyInitialized
	}
	p.state = Initializing
	p.roomID = roomID
	rtr := p.rtr
	p.mu.Unlock()
	sessionState.Set(float64(Initializing))

	if rtr == nil {
		built := router.New(p.local.DeviceID, nil,
			router.WithLogger(p.log.Named("router")),
			router.WithConfig(p.cfg.Router),
			router.WithClock(p.clock),
		)
		if p.cfg.Relay.Endpoint != "" {
			rl := relay.New(built.HandleIncoming,
				relay.WithLogger(p.log.Named("relay")),
				relay.WithConfig(p.cfg.Relay),
				relay.WithClock(p.clock),
			)
			if err := rl.Connect(ctx, roomID); err != nil {
				built.Close()
				p.setState(Uninitialized)
				return fmt.Errorf("connect relay: %w", err)
			}
			built.AddTransport(rl)
		}
		if p.cfg.Mesh.Enable {
			host, err := mesh.NewHost(p.cfg.Mesh)
			if err != nil {
				built.Close()
				p.setState(Uninitialized)
				return err
			}
			m := mesh.New(host, built.HandleIncoming,
				mesh.WithLogger(p.log.Named("mesh")),
				mesh.WithConfig(p.cfg.Mesh),
			)
			built.AddTransport(m)
			p.mesh = m
		}
		rtr = built
	}
	p.mu.Lock()
	p.rtr = rtr
	p.mu.Unlock()

	rtr.Register(types.MessageStateUpdate, p.handleStateUpdate)
	rtr.Register(types.MessageAnchorUpdate, p.handleAnchorUpdate)
	rtr.Register(types.MessageEvent, p.handleEvent)
	rtr.Register(types.MessageDelta, p.handleDelta)
	rtr.Start()

	local := p.localDevice()
	local.LastUpdate = p.clock.Now().UnixMilli()
	p.registry.Update(local)

	p.eg.Go(func() error {
		for {
			select {
			case <-p.ctx.Done():
				return nil
			case <-p.clock.After(p.cfg.MaintenanceInterval):
				p.Maintain()
			}
		}
	})

	if !p.transition(Initializing, Active) {
		rtr.Close()
		return ErrDisposed
	}
	p.log.Info("session active",
		zap.String("room", roomID),
		zap.Object("device", &local),
		zap.Object("config", &p.cfg),
	)
	return nil
}

// SynchronizeDeviceState reconciles a fresh local measurement with the
// session: conflicts against other devices are resolved, the outcome is
// stored and broadcast, and the state actually stored is returned.
func (p *Protocol) SynchronizeDeviceState(ctx context.Context, state types.DeviceState) (types.DeviceState, error) {
	if err := p.requireActive(); err != nil {
		return types.DeviceState{}, err
	}
	if state.DeviceID == "" {
		state.DeviceID = p.localDevice().DeviceID
	}
	if state.Capability.IsZero() {
		state.Capability = types.DefaultCapability(state.DeviceType)
	}
	state.LastUpdate = p.clock.Now().UnixMilli()
	if err := state.Validate(); err != nil {
		return types.DeviceState{}, err
	}
	resolved, _ := p.resolver.Resolve(state, p.registry.Others(state.DeviceID))
	stored := p.registry.Update(resolved)
	err := p.publish(ctx, types.MessageStateUpdate, types.PriorityHigh,
		&types.StateUpdatePayload{State: stored})
	return stored, err
}

// SynchronizeDelta applies a partial update to the local device and
// broadcasts it.
func (p *Protocol) SynchronizeDelta(ctx context.Context, delta types.DeltaPayload) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	local := p.localDevice()
	current, ok := p.registry.Get(local.DeviceID)
	if !ok {
		current = local
	}
	applyDelta(&current, &delta)
	current.LastUpdate = p.clock.Now().UnixMilli()
	resolved, _ := p.resolver.Resolve(current, p.registry.Others(current.DeviceID))
	p.registry.Update(resolved)
	return p.publish(ctx, types.MessageDelta, types.PriorityNormal, &delta)
}

// SynchronizeAnchors folds new anchor observations into the store and, with
// drift correction enabled, estimates the rigid correction realigning the
// device with session consensus. Returns the merged anchors and the
// correction, zero when degraded or disabled.
func (p *Protocol) SynchronizeAnchors(
	ctx context.Context,
	deviceID string,
	candidates []types.SpatialAnchor,
	driftEnabled bool,
) ([]types.SpatialAnchor, types.Correction, error) {
	if err := p.requireActive(); err != nil {
		return nil, types.ZeroCorrection, err
	}
	if deviceID == "" {
		deviceID = p.localDevice().DeviceID
	}
	now := p.clock.Now().UnixMilli()
	// The consensus set is snapshotted before this batch folds in, so the
	// correction measures the raw observations against what the session had
	// agreed on, not against positions the batch itself just moved.
	consensus := p.anchors.ConsensusSet()
	locals := make([]types.SpatialAnchor, 0, len(candidates))
	merged := make([]types.SpatialAnchor, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == "" {
			candidate.ID = uuid.NewString()
		}
		if candidate.DeviceID == "" {
			candidate.DeviceID = deviceID
		}
		if candidate.Timestamp == 0 {
			candidate.Timestamp = now
		}
		if err := candidate.Validate(); err != nil {
			return nil, types.ZeroCorrection, fmt.Errorf("candidate anchor: %w", err)
		}
		locals = append(locals, candidate)
		merged = append(merged, p.fold(candidate, now, driftEnabled))
	}
	correction := types.ZeroCorrection
	if driftEnabled && p.cfg.DriftCorrection {
		correction, _ = p.corrector.Correct(deviceID, locals, consensus)
	}
	err := p.publish(ctx, types.MessageAnchorUpdate, types.PriorityNormal,
		&types.AnchorUpdatePayload{Anchors: merged, Correction: correction})
	return merged, correction, err
}

// SendCollaborationEvent delivers the event to local subscribers and
// broadcasts it at critical priority, skipping the queue.
func (p *Protocol) SendCollaborationEvent(ctx context.Context, ev types.CollaborationEvent) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	if ev.DeviceID == "" {
		ev.DeviceID = p.localDevice().DeviceID
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = p.clock.Now().UnixMilli()
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	p.bus.Publish(ev)
	return p.publish(ctx, types.MessageEvent, types.PriorityCritical,
		&types.EventPayload{Event: ev})
}

// Maintain runs one housekeeping pass: stale devices pruned, expired
// anchors dropped, consensus weights recomputed. The session runs it every
// MaintenanceInterval on its own, tests may call it directly.
func (p *Protocol) Maintain() {
	if p.State() != Active {
		return
	}
	now := p.clock.Now().UnixMilli()
	for _, id := range p.registry.Prune(now, p.cfg.StaleDeviceTimeout.Milliseconds()) {
		p.corrector.Forget(id)
		p.rtr.ForgetSender(id)
	}
	p.anchors.Prune(now, p.cfg.AnchorMinPersistence, p.cfg.AnchorMaxAge.Milliseconds())
	p.weigher.Reweigh(now)
	maintenancePasses.Inc()
}

// Dispose tears the session down: the maintenance loop stops, queued
// messages are dropped, transports close, local subscribers are
// disconnected. Safe to call more than once, there is no way back.
func (p *Protocol) Dispose() error {
	var err error
	p.stopped.Do(func() {
		p.setState(Disposed)
		p.cancel()
		p.eg.Wait()
		p.mu.Lock()
		rtr := p.rtr
		p.mu.Unlock()
		if rtr != nil {
			err = rtr.Close()
		}
		p.bus.Close()
		p.log.Info("session disposed")
	})
	return err
}

// State reports the lifecycle phase.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LocalDevice returns the local device identity as registered.
func (p *Protocol) LocalDevice() types.DeviceState {
	return p.localDevice()
}

// Devices returns the states of every known session participant.
func (p *Protocol) Devices() []types.DeviceState {
	return p.registry.Snapshot()
}

// Device returns the state of one participant.
func (p *Protocol) Device(deviceID string) (types.DeviceState, bool) {
	return p.registry.Get(deviceID)
}

// Host returns the session host, if one is known.
func (p *Protocol) Host() (types.DeviceState, bool) {
	return p.registry.Host()
}

// Anchors returns every stored anchor.
func (p *Protocol) Anchors() []types.SpatialAnchor {
	return p.anchors.Snapshot()
}

// ConsensusAnchors returns the anchors validated by at least two devices.
func (p *Protocol) ConsensusAnchors() []types.SpatialAnchor {
	return p.anchors.ConsensusSet()
}

// ResolutionRate reports the fraction of state syncs that conflict
// resolution changed.
func (p *Protocol) ResolutionRate() float64 {
	return p.resolver.ResolutionRate()
}

// Events exposes the collaboration event bus for subscriptions.
func (p *Protocol) Events() *events.Bus {
	return p.bus
}

// AddPeer dials a mesh peer at runtime.
func (p *Protocol) AddPeer(ctx context.Context, addr string) error {
	if p.mesh == nil {
		return errors.New("mesh is not enabled")
	}
	return p.mesh.AddPeer(ctx, addr)
}

// RemovePeer drops a mesh peer.
func (p *Protocol) RemovePeer(addr string) error {
	if p.mesh == nil {
		return errors.New("mesh is not enabled")
	}
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("parse into peer.AddrInfo %s: %w", addr, err)
	}
	p.mesh.RemovePeer(info.ID)
	return nil
}

// MeshAddrs returns the multiaddrs peers can dial to reach this device, nil
// without a mesh.
func (p *Protocol) MeshAddrs() []string {
	if p.mesh == nil {
		return nil
	}
	return p.mesh.Addrs()
}

func (p *Protocol) handleStateUpdate(ctx context.Context, msg *types.SyncMessage) error {
	payload, err := msg.StateUpdate()
	if err != nil {
		return err
	}
	state := payload.State
	if err := state.Validate(); err != nil {
		return err
	}
	if state.DeviceID != msg.DeviceID {
		return fmt.Errorf("state update for %s sent by %s", state.DeviceID, msg.DeviceID)
	}
	if state.LastUpdate == 0 {
		state.LastUpdate = msg.Timestamp
	}
	now := p.clock.Now().UnixMilli()
	state.NetworkLatency = p.smoothLatency(state.DeviceID, now-msg.Timestamp)
	resolved, _ := p.resolver.Resolve(state, p.registry.Others(state.DeviceID))
	p.registry.Update(resolved)
	return nil
}

func (p *Protocol) handleAnchorUpdate(ctx context.Context, msg *types.SyncMessage) error {
	payload, err := msg.AnchorUpdate()
	if err != nil {
		return err
	}
	now := p.clock.Now().UnixMilli()
	for _, anchor := range payload.Anchors {
		if err := anchor.Validate(); err != nil {
			p.log.Debug("dropping invalid anchor",
				zap.String("sender", msg.DeviceID),
				zap.Error(err),
			)
			continue
		}
		// The sender vouches for these anchors now, so the observation is
		// attributed to it. Every device then derives the same consensus
		// set no matter whose store folded first.
		anchor.DeviceID = msg.DeviceID
		p.fold(anchor, now, p.cfg.DriftCorrection)
	}
	return nil
}

func (p *Protocol) handleEvent(ctx context.Context, msg *types.SyncMessage) error {
	payload, err := msg.Event()
	if err != nil {
		return err
	}
	if err := payload.Event.Validate(); err != nil {
		return err
	}
	p.bus.Publish(payload.Event)
	return nil
}

func (p *Protocol) handleDelta(ctx context.Context, msg *types.SyncMessage) error {
	payload, err := msg.Delta()
	if err != nil {
		return err
	}
	current, known := p.registry.Get(msg.DeviceID)
	if !known {
		p.log.Debug("dropping delta for unknown device", zap.String("device", msg.DeviceID))
		return nil
	}
	applyDelta(&current, payload)
	current.LastUpdate = max(current.LastUpdate, msg.Timestamp)
	resolved, _ := p.resolver.Resolve(current, p.registry.Others(current.DeviceID))
	p.registry.Update(resolved)
	return nil
}

// fold merges an anchor claim into the nearest stored anchor, inserting
// when nothing is close enough or merging is off. A lone device gets full
// collaborative weight on insert immediately instead of waiting for the
// next consensus pass.
func (p *Protocol) fold(anchor types.SpatialAnchor, nowMillis int64, merge bool) types.SpatialAnchor {
	if merge {
		if existing, found := p.anchors.NearestWithin(anchor.Position, p.cfg.AnchorMergeRadius); found {
			merged, err := p.anchors.Merge(existing.ID, anchor, nowMillis)
			if err == nil {
				return merged
			}
		}
	}
	inserted := p.anchors.Insert(anchor)
	if p.registry.Count() <= 1 {
		p.anchors.SetCollaborativeWeight(inserted.ID, 1)
		inserted.CollaborativeWeight = 1
	}
	return inserted
}

func applyDelta(state *types.DeviceState, delta *types.DeltaPayload) {
	if delta.Position != nil {
		state.Position = *delta.Position
	}
	if delta.Orientation != nil {
		state.Orientation = *delta.Orientation
	}
	if delta.NetworkLatency != nil {
		state.NetworkLatency = *delta.NetworkLatency
	}
}

// smoothLatency folds a one way latency sample in ms into the stored
// estimate. The first sample is taken as is.
func (p *Protocol) smoothLatency(deviceID string, sample int64) float64 {
	if sample < 0 {
		sample = 0
	}
	prev, known := p.registry.Get(deviceID)
	if !known {
		return float64(sample)
	}
	alpha := p.cfg.LatencySmoothing
	return prev.NetworkLatency*(1-alpha) + float64(sample)*alpha
}

func (p *Protocol) publish(ctx context.Context, mtype types.MessageType, prio types.Priority, payload any) error {
	msg, err := types.NewSyncMessage(mtype, p.localDevice().DeviceID, p.clock.Now().UnixMilli(), 0, prio, payload)
	if err != nil {
		return err
	}
	return p.rtr.Publish(ctx, msg)
}

func (p *Protocol) localDevice() types.DeviceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *Protocol) requireActive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Active:
		return nil
	case Disposed:
		return ErrDisposed
	default:
		return ErrNotActive
	}
}

func (p *Protocol) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	sessionState.Set(float64(state))
}

func (p *Protocol) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	sessionState.Set(float64(to))
	return true
}
