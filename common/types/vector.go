package types

import (
	"math"

	"go.uber.org/zap/zapcore"
)

// Vector3 is a position or direction in session space, meters.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector3) Dot(o Vector3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Distance returns the euclidean distance to o in meters.
func (v Vector3) Distance(o Vector3) float64 {
	return v.Sub(o).Length()
}

func (v Vector3) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddFloat64("x", v.X)
	encoder.AddFloat64("y", v.Y)
	encoder.AddFloat64("z", v.Z)
	return nil
}

// Quaternion is an orientation in session space. Stored x, y, z, w.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion is the no-rotation orientation.
var IdentityQuaternion = Quaternion{W: 1}

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalized returns q scaled to unit length. The zero quaternion
// normalizes to identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

func (q Quaternion) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddFloat64("x", q.X)
	encoder.AddFloat64("y", q.Y)
	encoder.AddFloat64("z", q.Z)
	encoder.AddFloat64("w", q.W)
	return nil
}

// Plane is one clipping plane of a view frustum, in normal/offset form.
type Plane struct {
	Normal   Vector3 `json:"normal"`
	Distance float64 `json:"distance"`
}

// ViewFrustum holds the six clipping planes of a device camera, ordered
// left, right, top, bottom, near, far.
type ViewFrustum [6]Plane

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
