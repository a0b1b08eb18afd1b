package types

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap/zapcore"
)

// CollaborationEvent is a user interaction shared with the session:
// selections, annotations, pointer rays. Events are dispatched at critical
// priority and never persisted.
type CollaborationEvent struct {
	Type            string          `json:"type"`
	UserID          string          `json:"userId"`
	DeviceID        string          `json:"deviceId"`
	SpatialPosition Vector3         `json:"spatialPosition"`
	Data            json.RawMessage `json:"data,omitempty"`
	Timestamp       int64           `json:"timestamp"`
}

func (e *CollaborationEvent) Validate() error {
	if e.Type == "" {
		return errors.New("collaboration event has no type")
	}
	if e.DeviceID == "" {
		return errors.New("collaboration event has no device id")
	}
	return nil
}

func (e *CollaborationEvent) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("type", e.Type)
	encoder.AddString("user", e.UserID)
	encoder.AddString("device", e.DeviceID)
	encoder.AddObject("position", e.SpatialPosition)
	encoder.AddInt64("timestamp", e.Timestamp)
	return nil
}
