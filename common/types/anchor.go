package types

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// SpatialAnchor is a persistent point-in-space reference used to align the
// coordinate frames of the devices sharing a session. Anchors are
// session-scoped and never persisted across sessions.
type SpatialAnchor struct {
	ID          string     `json:"id"`
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
	// Confidence is the observing device's own estimate, in [0,1].
	Confidence float64 `json:"confidence"`
	// Timestamp is the observation time in milliseconds.
	Timestamp int64 `json:"timestamp"`
	// DeviceID is the device that produced this observation.
	DeviceID string `json:"deviceId"`
	// PersistenceScore estimates long-term stability in [0,1]. Structural
	// features score around 0.95, transient content such as people around 0.3.
	PersistenceScore float64 `json:"persistenceScore"`
	// CollaborativeWeight is derived from multi-device consensus. It is
	// recomputed every consensus round and is never authoritative.
	CollaborativeWeight float64 `json:"collaborativeWeight"`
}

// Clamp forces the bounded fields into [0,1].
func (a *SpatialAnchor) Clamp() {
	a.Confidence = clamp01(a.Confidence)
	a.PersistenceScore = clamp01(a.PersistenceScore)
	a.CollaborativeWeight = clamp01(a.CollaborativeWeight)
}

// Age returns the milliseconds elapsed since the anchor observation.
// Negative ages from clock skew count as zero.
func (a *SpatialAnchor) Age(nowMillis int64) int64 {
	if nowMillis < a.Timestamp {
		return 0
	}
	return nowMillis - a.Timestamp
}

func (a *SpatialAnchor) Validate() error {
	if a.ID == "" {
		return errors.New("anchor id is empty")
	}
	if a.DeviceID == "" {
		return fmt.Errorf("anchor %s has no device id", a.ID)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("anchor %s confidence %f out of [0,1]", a.ID, a.Confidence)
	}
	if a.PersistenceScore < 0 || a.PersistenceScore > 1 {
		return fmt.Errorf("anchor %s persistence score %f out of [0,1]", a.ID, a.PersistenceScore)
	}
	return nil
}

func (a *SpatialAnchor) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("id", a.ID)
	encoder.AddString("device", a.DeviceID)
	encoder.AddObject("position", a.Position)
	encoder.AddFloat64("confidence", a.Confidence)
	encoder.AddFloat64("persistence", a.PersistenceScore)
	encoder.AddFloat64("weight", a.CollaborativeWeight)
	encoder.AddInt64("timestamp", a.Timestamp)
	return nil
}

// Correction is a rigid 6-DOF frame correction: translation in meters
// followed by a small-angle rotation vector in radians.
type Correction [6]float64

// ZeroCorrection is returned whenever drift estimation is degraded.
var ZeroCorrection = Correction{}

func (c Correction) IsZero() bool {
	return c == Correction{}
}

// Translation returns the positional part of the correction.
func (c Correction) Translation() Vector3 {
	return Vector3{X: c[0], Y: c[1], Z: c[2]}
}

// Rotation returns the small-angle rotation part of the correction.
func (c Correction) Rotation() Vector3 {
	return Vector3{X: c[3], Y: c[4], Z: c[5]}
}

// Magnitude returns the translation length in meters, the dominant term
// for deciding whether a correction is worth applying.
func (c Correction) Magnitude() float64 {
	return c.Translation().Length()
}

func (c Correction) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddObject("translation", c.Translation())
	encoder.AddObject("rotation", c.Rotation())
	return nil
}
