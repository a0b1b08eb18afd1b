package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerfedge/spatialsync/common/types"
)

func Test_SyncMessageRoundsTripTypedPayload(t *testing.T) {
	state := types.DeviceState{
		DeviceID:   "dev-a",
		DeviceType: types.HeadsetStandalone,
		Position:   types.Vector3{X: 1, Y: 2, Z: 3},
		IsHost:     true,
		LastUpdate: 1000,
	}
	msg, err := types.NewSyncMessage(
		types.MessageStateUpdate, "dev-a", 1000, 7, types.PriorityNormal,
		&types.StateUpdatePayload{State: state},
	)
	require.NoError(t, err)
	require.NoError(t, msg.Validate())

	data, err := msg.Bytes()
	require.NoError(t, err)

	var decoded types.SyncMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())
	require.Equal(t, uint64(7), decoded.SequenceID)

	payload, err := decoded.StateUpdate()
	require.NoError(t, err)
	require.Equal(t, state, payload.State)
}

func Test_SyncMessageRejectsUnknownDiscriminants(t *testing.T) {
	var msg types.SyncMessage
	err := json.Unmarshal([]byte(`{"type":"teleport","deviceId":"d","timestamp":1,"sequenceId":1,"payload":{},"priority":"normal"}`), &msg)
	require.ErrorContains(t, err, "unknown message type")

	err = json.Unmarshal([]byte(`{"type":"event","deviceId":"d","timestamp":1,"sequenceId":1,"payload":{},"priority":"urgent"}`), &msg)
	require.ErrorContains(t, err, "unknown priority")
}

func Test_SyncMessageValidate(t *testing.T) {
	for _, tc := range []struct {
		desc string
		msg  types.SyncMessage
		err  string
	}{
		{
			desc: "no sender",
			msg:  types.SyncMessage{Type: types.MessageEvent, Payload: []byte(`{}`)},
			err:  "no sender",
		},
		{
			desc: "no payload",
			msg:  types.SyncMessage{Type: types.MessageDelta, DeviceID: "d"},
			err:  "no payload",
		},
		{
			desc: "valid",
			msg: types.SyncMessage{
				Type: types.MessageDelta, DeviceID: "d",
				Payload: []byte(`{}`), Priority: types.PriorityLow,
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.err == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.err)
			}
		})
	}
}

func Test_PayloadDecodeChecksDiscriminant(t *testing.T) {
	msg, err := types.NewSyncMessage(
		types.MessageEvent, "dev-a", 1, 1, types.PriorityCritical,
		&types.EventPayload{Event: types.CollaborationEvent{Type: "select", DeviceID: "dev-a"}},
	)
	require.NoError(t, err)

	_, err = msg.StateUpdate()
	require.ErrorContains(t, err, "not state-update")

	payload, err := msg.Event()
	require.NoError(t, err)
	require.Equal(t, "select", payload.Event.Type)
}

func Test_PriorityOrderIsDispatchOrder(t *testing.T) {
	require.Less(t, types.PriorityCritical, types.PriorityHigh)
	require.Less(t, types.PriorityHigh, types.PriorityNormal)
	require.Less(t, types.PriorityNormal, types.PriorityLow)
}

func Test_AnchorClamp(t *testing.T) {
	anchor := types.SpatialAnchor{
		ID: "a", DeviceID: "d",
		Confidence: 1.7, PersistenceScore: -0.2, CollaborativeWeight: 2,
	}
	anchor.Clamp()
	require.Equal(t, 1.0, anchor.Confidence)
	require.Equal(t, 0.0, anchor.PersistenceScore)
	require.Equal(t, 1.0, anchor.CollaborativeWeight)
	require.NoError(t, anchor.Validate())
}

func Test_DefaultCapabilityPerClass(t *testing.T) {
	for _, dt := range []types.DeviceType{
		types.HeadsetPro, types.HeadsetStandalone, types.HeadsetTethered, types.Web, types.Mobile,
	} {
		capability := types.DefaultCapability(dt)
		require.False(t, capability.IsZero(), "no preset for %s", dt)
	}
	require.Equal(t, 120, types.DefaultCapability(types.HeadsetPro).MaxFPS)
	require.Equal(t, 30, types.DefaultCapability(types.Mobile).MaxFPS)
}

func Test_ParseDeviceType(t *testing.T) {
	dt, err := types.ParseDeviceType("headset-standalone")
	require.NoError(t, err)
	require.Equal(t, types.HeadsetStandalone, dt)

	_, err = types.ParseDeviceType("smartwatch")
	require.ErrorContains(t, err, "unknown device type")
}
