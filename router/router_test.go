package router_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/router"
)

func newRouter(tb testing.TB, transports ...router.Transport) *router.Router {
	return router.New("local", transports, router.WithLogger(zaptest.NewLogger(tb)))
}

func message(tb testing.TB, mtype types.MessageType, device string, seq uint64, prio types.Priority) *types.SyncMessage {
	tb.Helper()
	msg, err := types.NewSyncMessage(mtype, device, time.Now().UnixMilli(), seq, prio, struct{}{})
	require.NoError(tb, err)
	return msg
}

func frame(tb testing.TB, mtype types.MessageType, device string, seq uint64, prio types.Priority) []byte {
	tb.Helper()
	data, err := message(tb, mtype, device, seq, prio).Bytes()
	require.NoError(tb, err)
	return data
}

func TestPublishOrdersByPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := router.NewMockTransport(ctrl)
	tr.EXPECT().Name().AnyTimes().Return("mock")
	var order []types.Priority
	tr.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Times(4).DoAndReturn(
		func(_ context.Context, data []byte) error {
			var msg types.SyncMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			order = append(order, msg.Priority)
			return nil
		})

	r := newRouter(t, tr)
	for _, prio := range []types.Priority{
		types.PriorityLow,
		types.PriorityCritical,
		types.PriorityNormal,
		types.PriorityHigh,
	} {
		require.NoError(t, r.Publish(context.Background(), message(t, types.MessageEvent, "local", 0, prio)))
	}

	// the critical message went out on Publish already, the rest drain in
	// priority order on the tick
	r.Tick(context.Background())
	require.Equal(t, []types.Priority{
		types.PriorityCritical,
		types.PriorityHigh,
		types.PriorityNormal,
		types.PriorityLow,
	}, order)
	require.Zero(t, r.Pending())
}

func TestTickCapsDispatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := router.NewMockTransport(ctrl)
	tr.EXPECT().Name().AnyTimes().Return("mock")
	sent := 0
	tr.EXPECT().Broadcast(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(
		func(context.Context, []byte) error {
			sent++
			return nil
		})

	r := newRouter(t, tr)
	for i := 0; i < 15; i++ {
		require.NoError(t, r.Publish(context.Background(), message(t, types.MessageEvent, "local", 0, types.PriorityNormal)))
	}

	r.Tick(context.Background())
	require.Equal(t, 10, sent)
	require.Equal(t, 5, r.Pending())

	r.Tick(context.Background())
	require.Equal(t, 15, sent)
	require.Zero(t, r.Pending())
}

func TestCriticalBypassesQueueInbound(t *testing.T) {
	r := newRouter(t)
	handled := 0
	r.Register(types.MessageEvent, func(context.Context, *types.SyncMessage) error {
		handled++
		return nil
	})

	require.NoError(t, r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "remote", 1, types.PriorityCritical)))
	require.Equal(t, 1, handled)
	require.Zero(t, r.Pending())

	require.NoError(t, r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "remote", 2, types.PriorityHigh)))
	require.Equal(t, 1, handled)
	require.Equal(t, 1, r.Pending())

	r.Tick(context.Background())
	require.Equal(t, 2, handled)
}

func TestDropsStaleSequences(t *testing.T) {
	r := newRouter(t)
	handled := 0
	r.Register(types.MessageEvent, func(context.Context, *types.SyncMessage) error {
		handled++
		return nil
	})

	for _, seq := range []uint64{5, 5, 4, 6} {
		require.NoError(t, r.HandleIncoming(context.Background(), "relay",
			frame(t, types.MessageEvent, "remote", seq, types.PriorityCritical)))
	}
	require.Equal(t, 2, handled)

	// a device that rejoined restarts its counter
	r.ForgetSender("remote")
	require.NoError(t, r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "remote", 1, types.PriorityCritical)))
	require.Equal(t, 3, handled)
}

func TestUnknownTypeDropped(t *testing.T) {
	r := newRouter(t)
	r.Register(types.MessageEvent, func(context.Context, *types.SyncMessage) error {
		t.Fatal("handler should not run")
		return nil
	})

	raw := `{"type":"teleport","deviceId":"remote","timestamp":1,"sequenceId":1,"priority":"critical","payload":{}}`
	require.NoError(t, r.HandleIncoming(context.Background(), "relay", []byte(raw)))
	require.Zero(t, r.Pending())
}

func TestMalformedFrames(t *testing.T) {
	r := newRouter(t)
	for name, raw := range map[string]string{
		"garbage":            "not even json",
		"empty object":       `{}`,
		"missing sender":     `{"type":"event","timestamp":1,"sequenceId":1,"priority":"low","payload":{}}`,
		"unknown priority":   `{"type":"event","deviceId":"remote","timestamp":1,"sequenceId":1,"priority":"urgent","payload":{}}`,
		"negative timestamp": `{"type":"event","deviceId":"remote","timestamp":-5,"sequenceId":1,"priority":"low","payload":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := r.HandleIncoming(context.Background(), "relay", []byte(raw))
			require.ErrorIs(t, err, router.ErrMalformed)
		})
	}
}

func TestOwnEchoDropped(t *testing.T) {
	r := newRouter(t)
	r.Register(types.MessageEvent, func(context.Context, *types.SyncMessage) error {
		t.Fatal("handler should not run")
		return nil
	})

	require.NoError(t, r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "local", 1, types.PriorityCritical)))
	require.Zero(t, r.Pending())
}

func TestNoHandlerDropsQuietly(t *testing.T) {
	r := newRouter(t)
	require.NoError(t, r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "remote", 1, types.PriorityNormal)))
	require.Equal(t, 1, r.Pending())
	r.Tick(context.Background())
	require.Zero(t, r.Pending())
}

func TestCloseIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := router.NewMockTransport(ctrl)
	tr.EXPECT().Name().AnyTimes().Return("mock")
	tr.EXPECT().Close().Times(1).Return(nil)

	r := newRouter(t, tr)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	err := r.Publish(context.Background(), message(t, types.MessageEvent, "local", 0, types.PriorityNormal))
	require.ErrorIs(t, err, router.ErrClosed)
	err = r.HandleIncoming(context.Background(), "relay",
		frame(t, types.MessageEvent, "remote", 1, types.PriorityNormal))
	require.ErrorIs(t, err, router.ErrClosed)
}

func TestCloseDropsQueued(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := router.NewMockTransport(ctrl)
	tr.EXPECT().Name().AnyTimes().Return("mock")
	tr.EXPECT().Close().Times(1).Return(nil)

	r := newRouter(t, tr)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Publish(context.Background(), message(t, types.MessageEvent, "local", 0, types.PriorityNormal)))
	}
	require.Equal(t, 3, r.Pending())
	require.NoError(t, r.Close())
	require.Zero(t, r.Pending())
}

func TestStartDrainsOnTicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := router.NewMockTransport(ctrl)
	tr.EXPECT().Name().AnyTimes().Return("mock")
	sent := make(chan struct{})
	tr.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(
		func(context.Context, []byte) error {
			close(sent)
			return nil
		})
	tr.EXPECT().Close().Times(1).Return(nil)

	clock := clockwork.NewFakeClock()
	r := router.New("local", []router.Transport{tr},
		router.WithLogger(zaptest.NewLogger(t)),
		router.WithClock(clock),
	)
	require.NoError(t, r.Publish(context.Background(), message(t, types.MessageEvent, "local", 0, types.PriorityNormal)))

	r.Start()
	clock.BlockUntil(1)
	clock.Advance(router.DefaultConfig().TickInterval)
	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the tick to drain the queue")
	}
	require.NoError(t, r.Close())
}
