// Package mesh carries session traffic over direct libp2p streams, keeping
// co-located devices in sync even when the relay path is slow or gone.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-msgio"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// Name identifies this transport in logs and metrics.
	Name = "mesh"
	// ProtocolID is the stream protocol devices speak among themselves.
	ProtocolID = "/spatialsync/1"
)

// Receiver consumes raw frames read off peer streams.
type Receiver func(ctx context.Context, source string, data []byte) error

// Config configures the local mesh endpoint.
type Config struct {
	// Enable turns the peer mesh on. The mesh is a latency path next to the
	// relay, never the only path.
	Enable bool `mapstructure:"enable"`
	// Listen addresses for the local host, multiaddr form.
	Listen []string `mapstructure:"listen"`
	// Peers to dial at startup, full multiaddrs including the peer id.
	Peers []string `mapstructure:"peers"`
	// FrameLimit is the largest inbound frame accepted.
	FrameLimit int `mapstructure:"frame-limit"`
	// FramesPerSecond paces inbound frame consumption across all peers.
	FramesPerSecond int `mapstructure:"frames-per-second"`
}

func DefaultConfig() Config {
	return Config{
		FrameLimit:      1 << 20,
		FramesPerSecond: 600,
	}
}

func (c *Config) Validate() error {
	for _, addr := range c.Listen {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("parse listen addr %s: %w", addr, err)
		}
	}
	for _, addr := range c.Peers {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("parse peer addr %s: %w", addr, err)
		}
	}
	if c.FrameLimit <= 0 {
		return errors.New("frame limit must be positive")
	}
	if c.FramesPerSecond <= 0 {
		return errors.New("frames per second must be positive")
	}
	return nil
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddBool("enabled", c.Enable)
	encoder.AddInt("listen addrs", len(c.Listen))
	encoder.AddInt("static peers", len(c.Peers))
	encoder.AddInt("frame limit", c.FrameLimit)
	encoder.AddInt("frames per second", c.FramesPerSecond)
	return nil
}

// Opt for configuring the mesh.
type Opt func(*Mesh)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(m *Mesh) {
		m.log = logger
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Opt {
	return func(m *Mesh) {
		m.cfg = cfg
	}
}

// NewHost builds a libp2p host for the mesh from the listen config.
func NewHost(cfg Config) (host.Host, error) {
	listen := cfg.Listen
	if len(listen) == 0 {
		listen = []string{"/ip4/127.0.0.1/tcp/0"}
	}
	h, err := libp2p.New(libp2p.ListenAddrStrings(listen...))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize libp2p host: %w", err)
	}
	return h, nil
}

// Mesh keeps one outbound stream per peer and fans Broadcast frames over
// all of them. It owns the host and closes it on Close.
type Mesh struct {
	// state
	ctx     context.Context
	cancel  context.CancelFunc
	eg      errgroup.Group
	stopped sync.Once
	mu      sync.Mutex
	writeMu sync.Mutex
	streams map[peer.ID]msgio.WriteCloser

	// options
	cfg Config
	log *zap.Logger

	// dependencies
	h        host.Host
	receiver Receiver
	limit    *rate.Limiter
}

// New wires the mesh on top of h and starts accepting peer streams. Static
// peers from the config are dialed in the background.
func New(h host.Host, receiver Receiver, opts ...Opt) *Mesh {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mesh{
		ctx:     ctx,
		cancel:  cancel,
		streams: make(map[peer.ID]msgio.WriteCloser),

		cfg: DefaultConfig(),
		log: zap.NewNop(),

		h:        h,
		receiver: receiver,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.limit = rate.NewLimiter(
		rate.Every(time.Second/time.Duration(m.cfg.FramesPerSecond)),
		m.cfg.FramesPerSecond,
	)
	m.h.SetStreamHandler(ProtocolID, m.handleStream)
	for _, addr := range m.cfg.Peers {
		m.eg.Go(func() error {
			if err := m.AddPeer(m.ctx, addr); err != nil {
				m.log.Warn("failed to add static peer", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		})
	}
	return m
}

func (m *Mesh) Name() string {
	return Name
}

// ID returns the local peer id.
func (m *Mesh) ID() peer.ID {
	return m.h.ID()
}

// Addrs returns the multiaddrs other devices can dial, peer id included.
func (m *Mesh) Addrs() []string {
	info := peer.AddrInfo{ID: m.h.ID(), Addrs: m.h.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.String())
	}
	return out
}

// AddPeer connects the mesh to a device at addr, a full multiaddr
// including the peer id.
func (m *Mesh) AddPeer(ctx context.Context, addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("parse into peer.AddrInfo %s: %w", addr, err)
	}
	if err := m.h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect %s: %w", info.ID, err)
	}
	m.log.Info("mesh peer added", zap.Stringer("peer", info.ID))
	peerCount.Set(float64(len(m.h.Network().Peers())))
	return nil
}

// RemovePeer drops the connection to a device that left the session.
func (m *Mesh) RemovePeer(p peer.ID) {
	m.mu.Lock()
	if wr, ok := m.streams[p]; ok {
		delete(m.streams, p)
		wr.Close()
	}
	m.mu.Unlock()
	if err := m.h.Network().ClosePeer(p); err != nil {
		m.log.Debug("failed closing peer", zap.Stringer("peer", p), zap.Error(err))
	}
	m.log.Info("mesh peer removed", zap.Stringer("peer", p))
	peerCount.Set(float64(len(m.h.Network().Peers())))
}

// Peers lists the devices currently reachable over the mesh.
func (m *Mesh) Peers() []peer.ID {
	return m.h.Network().Peers()
}

// Broadcast writes one frame to every connected peer. Peers that fail get
// their stream dropped and reopened on the next broadcast.
func (m *Mesh) Broadcast(ctx context.Context, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	var errs error
	for _, p := range m.h.Network().Peers() {
		if err := m.send(ctx, p, data); err != nil {
			sendErrors.Inc()
			errs = errors.Join(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errs
}

// Close drops all streams and shuts the host down. Safe to call more than
// once.
func (m *Mesh) Close() error {
	var err error
	m.stopped.Do(func() {
		m.cancel()
		m.h.RemoveStreamHandler(ProtocolID)
		m.mu.Lock()
		for p, wr := range m.streams {
			wr.Close()
			delete(m.streams, p)
		}
		m.mu.Unlock()
		err = m.h.Close()
		m.eg.Wait()
		m.log.Info("mesh closed")
	})
	return err
}

func (m *Mesh) send(ctx context.Context, p peer.ID, data []byte) error {
	wr, err := m.stream(ctx, p)
	if err != nil {
		return err
	}
	if err := wr.WriteMsg(data); err != nil {
		m.dropStream(p)
		return err
	}
	sentFrames.Inc()
	return nil
}

func (m *Mesh) stream(ctx context.Context, p peer.ID) (msgio.WriteCloser, error) {
	m.mu.Lock()
	wr, ok := m.streams[p]
	m.mu.Unlock()
	if ok {
		return wr, nil
	}
	s, err := m.h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	wr = msgio.NewVarintWriter(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.streams[p]; ok {
		// lost the race, keep the first stream
		wr.Close()
		return cur, nil
	}
	m.streams[p] = wr
	return wr, nil
}

func (m *Mesh) dropStream(p peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wr, ok := m.streams[p]; ok {
		delete(m.streams, p)
		wr.Close()
	}
}

func (m *Mesh) handleStream(stream network.Stream) {
	remote := stream.Conn().RemotePeer()
	m.log.Debug("mesh stream opened", zap.Stringer("peer", remote))
	m.eg.Go(func() error {
		defer stream.Close()
		rd := msgio.NewVarintReaderSize(stream, m.cfg.FrameLimit)
		for {
			data, err := rd.ReadMsg()
			if err != nil {
				return nil
			}
			if err := m.limit.Wait(m.ctx); err != nil {
				return nil
			}
			receivedFrames.Inc()
			if err := m.receiver(m.ctx, Name, data); err != nil {
				m.log.Debug("dropping mesh frame", zap.Stringer("peer", remote), zap.Error(err))
			}
			rd.ReleaseMsg(data)
		}
	})
}
