package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/nerfedge/spatialsync/transport/relay"
)

// fixture runs a session lookup server and a websocket relay that records
// everything the client sends.
type fixture struct {
	sessions *httptest.Server
	ws       *httptest.Server

	conns    chan *websocket.Conn
	received chan []byte
	pings    chan struct{}

	mu   sync.Mutex
	live []*websocket.Conn
}

func newFixture(t *testing.T, heartbeatSeconds int) *fixture {
	f := &fixture{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan []byte, 16),
		pings:    make(chan struct{}, 4),
	}
	upgrader := websocket.Upgrader{}
	f.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.live = append(f.live, conn)
		f.mu.Unlock()
		conn.SetPingHandler(func(appData string) error {
			select {
			case f.pings <- struct{}{}:
			default:
			}
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		})
		f.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.received <- data
		}
	}))
	t.Cleanup(f.ws.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{room}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"websocketUrl":     "ws" + strings.TrimPrefix(f.ws.URL, "http"),
			"heartbeatSeconds": heartbeatSeconds,
		})
	})
	f.sessions = httptest.NewServer(mux)
	t.Cleanup(f.sessions.Close)
	t.Cleanup(f.closeConns)
	return f
}

func (f *fixture) closeConns() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.live {
		conn.Close()
	}
}

func testConfig(endpoint string) relay.Config {
	cfg := relay.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.ReconnectWaitMin = 10 * time.Millisecond
	cfg.ReconnectWaitMax = 100 * time.Millisecond
	cfg.ResolveRetries = 0
	cfg.ResolveRetryDelay = 10 * time.Millisecond
	return cfg
}

func TestConnectBroadcastReceive(t *testing.T) {
	f := newFixture(t, 30)
	got := make(chan []byte, 1)
	c := relay.New(
		func(_ context.Context, source string, data []byte) error {
			require.Equal(t, relay.Name, source)
			got <- data
			return nil
		},
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig(f.sessions.URL)),
	)
	require.NoError(t, c.Connect(context.Background(), "room-1"))
	defer c.Close()

	require.NoError(t, c.Broadcast(context.Background(), []byte("hello")))
	select {
	case data := <-f.received:
		require.Equal(t, []byte("hello"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the relay to see the frame")
	}

	server := <-f.conns
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("from-peer")))
	select {
	case data := <-got:
		require.Equal(t, []byte("from-peer"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the receiver")
	}
}

func TestConnectDialsWebsocketEndpointDirectly(t *testing.T) {
	f := newFixture(t, 30)
	f.sessions.Close() // must not be consulted

	c := relay.New(
		func(context.Context, string, []byte) error { return nil },
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig("ws"+strings.TrimPrefix(f.ws.URL, "http"))),
	)
	require.NoError(t, c.Connect(context.Background(), "room-1"))
	defer c.Close()

	require.NoError(t, c.Broadcast(context.Background(), []byte("direct")))
	select {
	case data := <-f.received:
		require.Equal(t, []byte("direct"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the relay to see the frame")
	}
}

func TestConnectFailsWhenRoomUnknown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	c := relay.New(
		func(context.Context, string, []byte) error { return nil },
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig(srv.URL)),
	)
	err := c.Connect(context.Background(), "nowhere")
	require.Error(t, err)
	require.ErrorContains(t, err, "resolve room")
	require.ErrorIs(t, c.Broadcast(context.Background(), []byte("x")), relay.ErrNotConnected)
}

func TestResolveRejectsBadSessions(t *testing.T) {
	for name, tc := range map[string]struct {
		body    string
		wantErr string
	}{
		"not json":       {body: "oops", wantErr: "unmarshal session data"},
		"wrong type":     {body: `{"websocketUrl":42,"heartbeatSeconds":30}`, wantErr: "validate session data"},
		"no heartbeat":   {body: `{"websocketUrl":"ws://relay.test"}`, wantErr: "validate session data"},
		"not websockets": {body: `{"websocketUrl":"http://relay.test","heartbeatSeconds":30}`, wantErr: "scheme"},
	} {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			hc := relay.NewMockhttpclient(ctrl)
			hc.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte(tc.body), nil)

			c := relay.New(
				func(context.Context, string, []byte) error { return nil },
				relay.WithLogger(zaptest.NewLogger(t)),
				relay.WithHttpclient(hc),
			)
			err := c.Connect(context.Background(), "room-1")
			require.Error(t, err)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestReconnectsAfterDrop(t *testing.T) {
	f := newFixture(t, 30)
	c := relay.New(
		func(context.Context, string, []byte) error { return nil },
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig(f.sessions.URL)),
	)
	require.NoError(t, c.Connect(context.Background(), "room-1"))
	defer c.Close()

	first := <-f.conns
	first.Close()

	select {
	case <-f.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the reconnect")
	}
	require.Eventually(t, func() bool {
		return c.Broadcast(context.Background(), []byte("after")) == nil
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case data := <-f.received:
		require.Equal(t, []byte("after"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the frame on the new connection")
	}
}

func TestHeartbeatPings(t *testing.T) {
	f := newFixture(t, 1)
	c := relay.New(
		func(context.Context, string, []byte) error { return nil },
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig(f.sessions.URL)),
	)
	require.NoError(t, c.Connect(context.Background(), "room-1"))
	defer c.Close()

	select {
	case <-f.pings:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a heartbeat ping")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, 30)
	c := relay.New(
		func(context.Context, string, []byte) error { return nil },
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithConfig(testConfig(f.sessions.URL)),
	)
	require.NoError(t, c.Connect(context.Background(), "room-1"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Broadcast(context.Background(), []byte("x")), relay.ErrNotConnected)
}
