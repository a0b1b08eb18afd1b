// Package relay connects a session to its websocket relay. The relay server
// fans every frame out to the other devices in the room, so a single
// connection is enough to reach the whole session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Name identifies this transport in logs and metrics.
const Name = "relay"

// ErrNotConnected is returned by Broadcast while no connection is live.
var ErrNotConnected = errors.New("relay is not connected")

// Receiver consumes raw frames read off the relay connection.
type Receiver func(ctx context.Context, source string, data []byte) error

// Config configures the relay client.
type Config struct {
	// Endpoint is the base URL of the session service.
	Endpoint string `mapstructure:"endpoint"`
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	// ReconnectWaitMin is the backoff floor after a lost connection.
	ReconnectWaitMin time.Duration `mapstructure:"reconnect-wait-min"`
	// ReconnectWaitMax caps the backoff. Reconnecting never gives up,
	// only Close stops it.
	ReconnectWaitMax time.Duration `mapstructure:"reconnect-wait-max"`
	// ResolveRetries caps HTTP retries of one session lookup.
	ResolveRetries int `mapstructure:"resolve-retries"`
	// ResolveRetryDelay is the base wait between lookup retries.
	ResolveRetryDelay time.Duration `mapstructure:"resolve-retry-delay"`
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReconnectWaitMin:  500 * time.Millisecond,
		ReconnectWaitMax:  30 * time.Second,
		ResolveRetries:    3,
		ResolveRetryDelay: time.Second,
	}
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("endpoint", c.Endpoint)
	encoder.AddDuration("dial timeout", c.DialTimeout)
	encoder.AddDuration("reconnect wait min", c.ReconnectWaitMin)
	encoder.AddDuration("reconnect wait max", c.ReconnectWaitMax)
	return nil
}

// Opt for configuring the client.
type Opt func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.log = logger
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Opt {
	return func(c *Client) {
		c.cfg = cfg
	}
}

// WithClock substitutes the clock used for pings and reconnect backoff.
func WithClock(clock clockwork.Clock) Opt {
	return func(c *Client) {
		c.clock = clock
	}
}

// Client is the websocket leg of a session. After a successful Connect it
// keeps itself connected until Close, reconnecting with jittered backoff
// whenever the relay drops it.
type Client struct {
	// state
	ctx       context.Context
	cancel    context.CancelFunc
	eg        errgroup.Group
	started   sync.Once
	stopped   sync.Once
	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	roomID    string
	heartbeat time.Duration

	// options
	cfg   Config
	log   *zap.Logger
	clock clockwork.Clock

	// dependencies
	receiver Receiver
	http     httpclient
	dialer   *websocket.Dialer
}

// New creates a relay client delivering received frames to receiver.
func New(receiver Receiver, opts ...Opt) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ctx:    ctx,
		cancel: cancel,

		cfg:   DefaultConfig(),
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),

		receiver: receiver,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = newResolveClient(c.cfg, c.log)
	}
	c.dialer = &websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	return c
}

func (c *Client) Name() string {
	return Name
}

// Connect resolves the room and establishes the websocket connection. An
// error here means the session cannot come up at all, later connection
// losses are handled internally.
func (c *Client) Connect(ctx context.Context, roomID string) error {
	sess, err := c.resolve(ctx, roomID)
	if err != nil {
		return fmt.Errorf("resolve room %s: %w", roomID, err)
	}
	conn, err := c.dial(ctx, sess)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.mu.Lock()
	c.roomID = roomID
	c.heartbeat = time.Duration(sess.HeartbeatSeconds) * time.Second
	c.conn = conn
	c.mu.Unlock()
	connectedState.Set(1)
	c.log.Info("connected to relay",
		zap.String("room", roomID),
		zap.String("url", sess.WebsocketURL),
		zap.Duration("heartbeat", time.Duration(sess.HeartbeatSeconds)*time.Second),
	)
	c.started.Do(func() {
		c.eg.Go(func() error {
			c.run(c.ctx)
			return nil
		})
	})
	return nil
}

// Broadcast writes one frame to the relay, which fans it out to the room.
func (c *Client) Broadcast(ctx context.Context, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		sendErrors.Inc()
		return fmt.Errorf("write frame: %w", err)
	}
	sentFrames.Inc()
	return nil
}

// Close tears the connection down and stops reconnecting. Safe to call
// more than once.
func (c *Client) Close() error {
	c.stopped.Do(func() {
		c.cancel()
		c.eg.Wait()
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		connectedState.Set(0)
		c.log.Info("relay closed")
	})
	return nil
}

// run serves the current connection and dials a new one whenever it breaks,
// until the client closes.
func (c *Client) run(ctx context.Context) {
	for {
		err := c.serve(ctx)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		connectedState.Set(0)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("connection to relay lost", zap.Error(err))
		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *Client) serve(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})
	eg.Go(func() error {
		c.pingLoop(ctx, conn)
		return nil
	})
	err := c.readLoop(ctx, conn)
	cancel()
	eg.Wait()
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	deadline := 2 * c.heartbeatInterval()
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		receivedFrames.Inc()
		if err := c.receiver(ctx, Name, data); err != nil {
			c.log.Debug("dropping relay frame", zap.Error(err))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.heartbeatInterval()):
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("relay ping failed", zap.Error(err))
				return
			}
		}
	}
}

// reconnect dials until it succeeds or the client closes. The wait between
// attempts doubles up to the configured cap, with full jitter so a room
// full of devices does not stampede the relay.
func (c *Client) reconnect(ctx context.Context) bool {
	wait := c.cfg.ReconnectWaitMin
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-c.clock.After(rand.N(wait)):
		}
		err := c.redial(ctx)
		if err == nil {
			reconnects.Inc()
			c.log.Info("reconnected to relay", zap.Int("attempt", attempt))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Warn("relay reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		wait = min(2*wait, c.cfg.ReconnectWaitMax)
	}
}

func (c *Client) redial(ctx context.Context) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	sess, err := c.resolve(ctx, roomID)
	if err != nil {
		return fmt.Errorf("resolve room %s: %w", roomID, err)
	}
	conn, err := c.dial(ctx, sess)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.mu.Lock()
	c.heartbeat = time.Duration(sess.HeartbeatSeconds) * time.Second
	c.conn = conn
	c.mu.Unlock()
	connectedState.Set(1)
	return nil
}

func (c *Client) dial(ctx context.Context, sess *session) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, sess.WebsocketURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) heartbeatInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heartbeat <= 0 {
		return 30 * time.Second
	}
	return c.heartbeat
}
