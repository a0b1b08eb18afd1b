package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/metrics"
)

var (
	// ErrClosed is returned when publishing after Close.
	ErrClosed = errors.New("router is closed")
	// ErrMalformed tags frames that fail envelope validation.
	ErrMalformed = errors.New("malformed message")
)

// Config configures the dispatch loop.
type Config struct {
	// TickInterval is the period of the drain loop.
	TickInterval time.Duration `mapstructure:"tick-interval"`
	// MaxPerTick caps how many queued messages one tick may move.
	MaxPerTick int `mapstructure:"max-per-tick"`
	// DedupCacheSize bounds how many senders the duplicate filter tracks.
	DedupCacheSize int `mapstructure:"dedup-cache-size"`
}

// DefaultConfig returns the rates the dispatch loop runs with unless
// overridden.
func DefaultConfig() Config {
	return Config{
		TickInterval:   16 * time.Millisecond,
		MaxPerTick:     10,
		DedupCacheSize: 512,
	}
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddDuration("tick interval", c.TickInterval)
	encoder.AddInt("max per tick", c.MaxPerTick)
	encoder.AddInt("dedup cache size", c.DedupCacheSize)
	return nil
}

// Opt for configuring the router.
type Opt func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(r *Router) {
		r.log = logger
	}
}

// WithConfig overrides the default dispatch configuration.
func WithConfig(cfg Config) Opt {
	return func(r *Router) {
		r.cfg = cfg
	}
}

// WithClock substitutes the clock that paces the tick loop.
func WithClock(clock clockwork.Clock) Opt {
	return func(r *Router) {
		r.clock = clock
	}
}

// Router fans session traffic in both directions. Outbound messages are
// queued by priority and flushed on a fixed tick, inbound frames are
// validated, deduplicated and handed to the handler registered for their
// type. Critical traffic skips the queue in both directions.
type Router struct {
	// state
	ctx      context.Context
	cancel   context.CancelFunc
	eg       errgroup.Group
	started  sync.Once
	stopped  sync.Once
	seq      atomic.Uint64
	closed   atomic.Bool
	tickMu   sync.Mutex
	mu       sync.Mutex
	queue    queue
	handlers map[types.MessageType]Handler
	lastSeen *lru.Cache[string, uint64]

	// options
	cfg   Config
	log   *zap.Logger
	clock clockwork.Clock

	// dependencies
	local      string
	transports []Transport
}

// New creates a router for the local device on top of the given transports.
// The router owns the transports and closes them on Close.
func New(local string, transports []Transport, opts ...Opt) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[types.MessageType]Handler),

		cfg:   DefaultConfig(),
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),

		local:      local,
		transports: transports,
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[string, uint64](r.cfg.DedupCacheSize)
	if err != nil {
		r.log.Fatal("failed to create dedup cache", zap.Error(err))
	}
	r.lastSeen = cache
	return r
}

// Register binds the handler invoked for messages of the given type,
// replacing any previous one. Registration is expected before Start.
func (r *Router) Register(mtype types.MessageType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[mtype] = handler
}

// AddTransport attaches another broadcast path. The router owns the
// transport from this point and closes it on Close.
func (r *Router) AddTransport(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports = append(r.transports, t)
}

// Start launches the tick loop. Repeated calls have no effect.
func (r *Router) Start() {
	r.started.Do(func() {
		r.mu.Lock()
		count := len(r.transports)
		r.mu.Unlock()
		r.log.Info("started",
			zap.Inline(&r.cfg),
			zap.Int("transports", count),
		)
		r.eg.Go(func() error {
			for {
				select {
				case <-r.ctx.Done():
					return nil
				case <-r.clock.After(r.cfg.TickInterval):
					r.Tick(r.ctx)
				}
			}
		})
	})
}

// HandleIncoming ingests one raw frame received by a transport. Malformed
// frames are rejected with ErrMalformed. Unknown types, echoes of the local
// device and stale sequence numbers are dropped without error. Critical
// messages dispatch before HandleIncoming returns, everything else waits
// for the tick loop.
func (r *Router) HandleIncoming(ctx context.Context, source string, data []byte) error {
	if r.closed.Load() {
		droppedClosed.Inc()
		return ErrClosed
	}
	if err := validateEnvelope(data); err != nil {
		droppedMalformed.Inc()
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		droppedMalformed.Inc()
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if _, err := types.ParseMessageType(peek.Type); err != nil {
		droppedUnknown.Inc()
		r.log.Debug("dropping message of unknown type",
			zap.String("transport", source),
			zap.String("type", peek.Type),
		)
		return nil
	}
	msg := &types.SyncMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		droppedMalformed.Inc()
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if err := msg.Validate(); err != nil {
		droppedMalformed.Inc()
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if msg.DeviceID == r.local {
		droppedEcho.Inc()
		return nil
	}
	if !r.record(msg.DeviceID, msg.SequenceID) {
		droppedStale.Inc()
		r.log.Debug("dropping stale message",
			zap.String("transport", source),
			zap.Inline(msg),
		)
		return nil
	}
	metrics.ReportMessageLatency(source, r.clock.Since(time.UnixMilli(msg.Timestamp)))
	if msg.Priority == types.PriorityCritical {
		criticalBypassIn.Inc()
		r.dispatch(ctx, msg)
		return nil
	}
	r.enqueue(pending{msg: msg, dir: inbound})
	return nil
}

// Publish queues msg for broadcast, stamping the outgoing sequence number.
// Critical messages reach the transports before Publish returns.
func (r *Router) Publish(ctx context.Context, msg *types.SyncMessage) error {
	if r.closed.Load() {
		return ErrClosed
	}
	msg.SequenceID = r.seq.Add(1)
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if msg.Priority == types.PriorityCritical {
		criticalBypassOut.Inc()
		return r.broadcast(ctx, msg)
	}
	r.enqueue(pending{msg: msg, dir: outbound})
	return nil
}

// Tick drains up to MaxPerTick queued messages in priority order. When the
// previous tick is still draining the call returns immediately, ticks never
// overlap.
func (r *Router) Tick(ctx context.Context) {
	if !r.tickMu.TryLock() {
		skippedTicks.Inc()
		return
	}
	defer r.tickMu.Unlock()
	for i := 0; i < r.cfg.MaxPerTick; i++ {
		r.mu.Lock()
		p, ok := r.queue.pop()
		depth := r.queue.len()
		r.mu.Unlock()
		if !ok {
			break
		}
		queueDepth.Set(float64(depth))
		switch p.dir {
		case inbound:
			r.dispatch(ctx, p.msg)
		case outbound:
			if err := r.broadcast(ctx, p.msg); err != nil {
				r.log.Warn("broadcast failed", zap.Error(err), zap.Inline(p.msg))
			}
		}
	}
}

// Pending reports how many messages wait for a tick.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.len()
}

// ForgetSender clears dedup state for a device, so one that rejoins with a
// fresh sequence counter is not silently muted.
func (r *Router) ForgetSender(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen.Remove(device)
}

// Close stops the tick loop, throws away whatever is still queued and
// closes every transport. Safe to call more than once.
func (r *Router) Close() error {
	var errs error
	r.stopped.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.eg.Wait()
		r.mu.Lock()
		dropped := r.queue.drain()
		r.mu.Unlock()
		if dropped > 0 {
			droppedClosed.Add(float64(dropped))
		}
		queueDepth.Set(0)
		for _, t := range r.snapshotTransports() {
			if err := t.Close(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("close %s: %w", t.Name(), err))
			}
		}
		r.log.Info("stopped", zap.Int("dropped", dropped))
	})
	return errs
}

func (r *Router) enqueue(p pending) {
	r.mu.Lock()
	r.queue.push(p)
	depth := r.queue.len()
	r.mu.Unlock()
	queueDepth.Set(float64(depth))
}

// record tracks the highest sequence seen per sender and reports false when
// the sequence does not advance.
func (r *Router) record(device string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastSeen.Get(device); ok && seq <= last {
		return false
	}
	r.lastSeen.Add(device, seq)
	return true
}

func (r *Router) dispatch(ctx context.Context, msg *types.SyncMessage) {
	r.mu.Lock()
	handler, ok := r.handlers[msg.Type]
	r.mu.Unlock()
	if !ok {
		droppedNoHandler.Inc()
		r.log.Warn("no handler registered", zap.String("type", msg.Type.String()))
		return
	}
	if err := handler(ctx, msg); err != nil {
		handlerErrors.WithLabelValues(msg.Type.String()).Inc()
		r.log.Warn("handler failed", zap.Error(err), zap.Inline(msg))
		return
	}
	processedMessages.WithLabelValues(msg.Type.String()).Inc()
}

func (r *Router) broadcast(ctx context.Context, msg *types.SyncMessage) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	var errs error
	for _, t := range r.snapshotTransports() {
		if err := t.Broadcast(ctx, data); err != nil {
			broadcastErrors.WithLabelValues(t.Name()).Inc()
			errs = errors.Join(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errs
}

func (r *Router) snapshotTransports() []Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	transports := make([]Transport, len(r.transports))
	copy(transports, r.transports)
	return transports
}
