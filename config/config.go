// Package config composes the configuration of a sync session and loads
// it from an optional JSON or YAML file.
package config

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/protocol"
)

// DeviceConfig identifies the local device. A zero capability is filled
// from the preset of the device type.
type DeviceConfig struct {
	ID         string                    `mapstructure:"id"`
	Type       types.DeviceType          `mapstructure:"type"`
	Capability types.RenderingCapability `mapstructure:"capability"`
}

// Config is the top level configuration of a session participant.
type Config struct {
	// RoomID names the shared session. Required whenever a relay endpoint
	// is configured.
	RoomID string `mapstructure:"room-id"`
	// IsHost claims host authority for the local device. At most one
	// device per session should set it.
	IsHost  bool            `mapstructure:"is-host"`
	Device  DeviceConfig    `mapstructure:"device"`
	Logging LoggerConfig    `mapstructure:"logging"`
	Session protocol.Config `mapstructure:"session"`
}

func DefaultConfig() Config {
	return Config{
		Device:  DeviceConfig{Type: types.Web},
		Logging: defaultLoggerConfig(),
		Session: protocol.DefaultConfig(),
	}
}

// LocalDevice materializes the registry entry the session registers for
// the local device.
func (c *Config) LocalDevice() types.DeviceState {
	capability := c.Device.Capability
	if capability.IsZero() {
		capability = types.DefaultCapability(c.Device.Type)
	}
	return types.DeviceState{
		DeviceID:   c.Device.ID,
		DeviceType: c.Device.Type,
		Capability: capability,
		IsHost:     c.IsHost,
	}
}

func (c *Config) Validate() error {
	if c.Session.Relay.Endpoint != "" && c.RoomID == "" {
		return errors.New("a relay endpoint requires a room id")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging level: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func (c *Config) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("room", c.RoomID)
	encoder.AddBool("host", c.IsHost)
	encoder.AddString("device", c.Device.ID)
	encoder.AddString("device type", c.Device.Type.String())
	encoder.AddObject("session", &c.Session)
	return nil
}

// Load reads the configuration file at path from fs on top of the
// defaults. An empty path returns the defaults unchanged.
func Load(path string, fs afero.Fs) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	vip := viper.New()
	vip.SetFs(fs)
	vip.SetConfigFile(path)
	if err := vip.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		withZeroFields(),
		withIgnoreUntagged(),
		withErrorUnused(),
	}
	if err := vip.Unmarshal(&cfg, opts...); err != nil {
		return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

func withZeroFields() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ZeroFields = true
	}
}

func withIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
