package types

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// DeviceType identifies the hardware class of a session participant. The
// set is closed: unknown types are rejected at the wire boundary.
type DeviceType uint8

var deviceTypeNames = [...]string{"headset-pro", "headset-standalone", "headset-tethered", "web", "mobile"}

const (
	HeadsetPro DeviceType = iota
	HeadsetStandalone
	HeadsetTethered
	Web
	Mobile
)

func (d DeviceType) String() string {
	if int(d) >= len(deviceTypeNames) {
		return fmt.Sprintf("unknown(%d)", d)
	}
	return deviceTypeNames[d]
}

// ParseDeviceType maps a wire name onto a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	for i, name := range deviceTypeNames {
		if name == s {
			return DeviceType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown device type %q", s)
}

func (d DeviceType) MarshalJSON() ([]byte, error) {
	if int(d) >= len(deviceTypeNames) {
		return nil, fmt.Errorf("unknown device type %d", d)
	}
	return json.Marshal(d.String())
}

func (d *DeviceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDeviceType(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d DeviceType) MarshalText() ([]byte, error) {
	if int(d) >= len(deviceTypeNames) {
		return nil, fmt.Errorf("unknown device type %d", d)
	}
	return []byte(d.String()), nil
}

func (d *DeviceType) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Resolution is a render target size in pixels.
type Resolution struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// RenderingCapability describes what a device can sustain. Used by
// consumers to pick level of detail, carried here so every participant
// sees the capabilities of its peers.
type RenderingCapability struct {
	MaxFPS        int        `json:"maxFPS" mapstructure:"max-fps"`
	MaxResolution Resolution `json:"maxResolution" mapstructure:"max-resolution"`
	MemoryLimitMB int        `json:"memoryLimitMB" mapstructure:"memory-limit-mb"`
	ComputeUnits  int        `json:"computeUnits" mapstructure:"compute-units"`
}

func (r RenderingCapability) IsZero() bool {
	return r == RenderingCapability{}
}

func (r RenderingCapability) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddInt("max_fps", r.MaxFPS)
	encoder.AddInt("width", r.MaxResolution.Width)
	encoder.AddInt("height", r.MaxResolution.Height)
	encoder.AddInt("memory_mb", r.MemoryLimitMB)
	encoder.AddInt("compute_units", r.ComputeUnits)
	return nil
}

var capabilityPresets = map[DeviceType]RenderingCapability{
	HeadsetPro:        {MaxFPS: 120, MaxResolution: Resolution{Width: 3660, Height: 3200}, MemoryLimitMB: 4096, ComputeUnits: 16},
	HeadsetStandalone: {MaxFPS: 90, MaxResolution: Resolution{Width: 2064, Height: 2208}, MemoryLimitMB: 2048, ComputeUnits: 8},
	HeadsetTethered:   {MaxFPS: 120, MaxResolution: Resolution{Width: 2880, Height: 2720}, MemoryLimitMB: 3072, ComputeUnits: 12},
	Web:               {MaxFPS: 60, MaxResolution: Resolution{Width: 1920, Height: 1080}, MemoryLimitMB: 1024, ComputeUnits: 4},
	Mobile:            {MaxFPS: 30, MaxResolution: Resolution{Width: 1170, Height: 2532}, MemoryLimitMB: 512, ComputeUnits: 2},
}

// DefaultCapability returns the baseline rendering capability for a device
// class, used when a caller leaves capabilities unset.
func DefaultCapability(d DeviceType) RenderingCapability {
	return capabilityPresets[d]
}

// DeviceState is the registry entry for one session participant. Only the
// owning device's local updates and inbound state updates carrying the same
// DeviceID may mutate it.
type DeviceState struct {
	DeviceID    string              `json:"deviceId"`
	DeviceType  DeviceType          `json:"deviceType"`
	Position    Vector3             `json:"position"`
	Orientation Quaternion          `json:"orientation"`
	ViewFrustum ViewFrustum         `json:"viewFrustum"`
	Capability  RenderingCapability `json:"renderingCapability"`
	// NetworkLatency is the exponentially smoothed delivery latency in ms.
	NetworkLatency float64 `json:"networkLatency"`
	IsHost         bool    `json:"isHost"`
	// LastUpdate is the millisecond timestamp of the latest accepted update.
	LastUpdate int64 `json:"lastUpdate"`
}

func (d *DeviceState) Validate() error {
	if d.DeviceID == "" {
		return fmt.Errorf("device state has no device id")
	}
	if int(d.DeviceType) >= len(deviceTypeNames) {
		return fmt.Errorf("device %s has unknown type %d", d.DeviceID, d.DeviceType)
	}
	return nil
}

// StaleSince reports the milliseconds since the last accepted update.
func (d *DeviceState) StaleSince(nowMillis int64) int64 {
	if nowMillis < d.LastUpdate {
		return 0
	}
	return nowMillis - d.LastUpdate
}

func (d *DeviceState) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("device", d.DeviceID)
	encoder.AddString("type", d.DeviceType.String())
	encoder.AddObject("position", d.Position)
	encoder.AddBool("host", d.IsHost)
	encoder.AddFloat64("latency_ms", d.NetworkLatency)
	encoder.AddInt64("last_update", d.LastUpdate)
	return nil
}
