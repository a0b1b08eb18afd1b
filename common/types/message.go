package types

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Priority orders message dispatch. Lower values dispatch first; critical
// messages additionally bypass the queue entirely.
type Priority uint8

var priorityNames = [...]string{"critical", "high", "normal", "low"}

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	if int(p) >= len(priorityNames) {
		return fmt.Sprintf("unknown(%d)", p)
	}
	return priorityNames[p]
}

// ParsePriority maps a wire name onto a Priority.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if name == s {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if int(p) >= len(priorityNames) {
		return nil, fmt.Errorf("unknown priority %d", p)
	}
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MessageType is the payload discriminant of a SyncMessage. The set is
// closed; receivers drop envelopes with any other value.
type MessageType uint8

var messageTypeNames = [...]string{"state-update", "anchor-update", "event", "delta"}

const (
	MessageStateUpdate MessageType = iota
	MessageAnchorUpdate
	MessageEvent
	MessageDelta
)

func (t MessageType) String() string {
	if int(t) >= len(messageTypeNames) {
		return fmt.Sprintf("unknown(%d)", t)
	}
	return messageTypeNames[t]
}

// ParseMessageType maps a wire name onto a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	for i, name := range messageTypeNames {
		if name == s {
			return MessageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

func (t MessageType) MarshalJSON() ([]byte, error) {
	if int(t) >= len(messageTypeNames) {
		return nil, fmt.Errorf("unknown message type %d", t)
	}
	return json.Marshal(t.String())
}

func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SyncMessage is the wire envelope carried by every transport path. Payload
// stays raw until the discriminant has been validated.
type SyncMessage struct {
	Type       MessageType     `json:"type"`
	DeviceID   string          `json:"deviceId"`
	Timestamp  int64           `json:"timestamp"`
	SequenceID uint64          `json:"sequenceId"`
	Payload    json.RawMessage `json:"payload"`
	Priority   Priority        `json:"priority"`
}

// StateUpdatePayload carries a full device state refresh.
type StateUpdatePayload struct {
	State DeviceState `json:"state"`
}

// AnchorUpdatePayload carries a device's merged anchors after an anchor
// synchronization pass, plus the correction it derived, so peers can fold
// the same observations into their own stores.
type AnchorUpdatePayload struct {
	Anchors    []SpatialAnchor `json:"anchors"`
	Correction Correction      `json:"correction"`
}

// EventPayload carries a collaboration event.
type EventPayload struct {
	Event CollaborationEvent `json:"event"`
}

// DeltaPayload is a partial state update. Nil fields are left untouched on
// the receiver; a delta for an unknown device is dropped.
type DeltaPayload struct {
	Position       *Vector3    `json:"position,omitempty"`
	Orientation    *Quaternion `json:"orientation,omitempty"`
	NetworkLatency *float64    `json:"networkLatency,omitempty"`
}

// NewSyncMessage builds an envelope around an encoded payload.
func NewSyncMessage(
	mtype MessageType,
	deviceID string,
	timestamp int64,
	seq uint64,
	prio Priority,
	payload any,
) (*SyncMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", mtype, err)
	}
	return &SyncMessage{
		Type:       mtype,
		DeviceID:   deviceID,
		Timestamp:  timestamp,
		SequenceID: seq,
		Payload:    raw,
		Priority:   prio,
	}, nil
}

func (m *SyncMessage) Validate() error {
	if int(m.Type) >= len(messageTypeNames) {
		return fmt.Errorf("unknown message type %d", m.Type)
	}
	if m.DeviceID == "" {
		return fmt.Errorf("%s message has no sender", m.Type)
	}
	if int(m.Priority) >= len(priorityNames) {
		return fmt.Errorf("%s message from %s has unknown priority %d", m.Type, m.DeviceID, m.Priority)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message from %s has no payload", m.Type, m.DeviceID)
	}
	return nil
}

// Bytes encodes the envelope for the wire.
func (m *SyncMessage) Bytes() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", m.Type, err)
	}
	return data, nil
}

func decodePayload[T any](m *SyncMessage, want MessageType) (*T, error) {
	if m.Type != want {
		return nil, fmt.Errorf("message is %s, not %s", m.Type, want)
	}
	var v T
	if err := json.Unmarshal(m.Payload, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload from %s: %w", m.Type, m.DeviceID, err)
	}
	return &v, nil
}

// StateUpdate decodes the payload of a state-update message.
func (m *SyncMessage) StateUpdate() (*StateUpdatePayload, error) {
	return decodePayload[StateUpdatePayload](m, MessageStateUpdate)
}

// AnchorUpdate decodes the payload of an anchor-update message.
func (m *SyncMessage) AnchorUpdate() (*AnchorUpdatePayload, error) {
	return decodePayload[AnchorUpdatePayload](m, MessageAnchorUpdate)
}

// Event decodes the payload of an event message.
func (m *SyncMessage) Event() (*EventPayload, error) {
	return decodePayload[EventPayload](m, MessageEvent)
}

// Delta decodes the payload of a delta message.
func (m *SyncMessage) Delta() (*DeltaPayload, error) {
	return decodePayload[DeltaPayload](m, MessageDelta)
}

func (m *SyncMessage) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("type", m.Type.String())
	encoder.AddString("sender", m.DeviceID)
	encoder.AddUint64("seq", m.SequenceID)
	encoder.AddString("priority", m.Priority.String())
	encoder.AddInt64("timestamp", m.Timestamp)
	encoder.AddInt("payload_bytes", len(m.Payload))
	return nil
}
