package config_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/config"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("", afero.NewMemMapFs())
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.json", `{
		"room-id": "lab-42",
		"is-host": true,
		"device": {"id": "headset-1", "type": "headset-pro"},
		"logging": {"level": "debug"},
		"session": {
			"stale-device-timeout": "45s",
			"drift-correction": false,
			"relay": {"endpoint": "https://sessions.example.com", "dial-timeout": "3s"},
			"mesh": {"enable": true, "listen": ["/ip4/0.0.0.0/tcp/0"]},
			"conflict": {"radius": 0.75}
		}
	}`)

	cfg, err := config.Load("/config.json", fs)
	require.NoError(t, err)
	require.Equal(t, "lab-42", cfg.RoomID)
	require.True(t, cfg.IsHost)
	require.Equal(t, "headset-1", cfg.Device.ID)
	require.Equal(t, types.HeadsetPro, cfg.Device.Type)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 45*time.Second, cfg.Session.StaleDeviceTimeout)
	require.False(t, cfg.Session.DriftCorrection)
	require.Equal(t, "https://sessions.example.com", cfg.Session.Relay.Endpoint)
	require.Equal(t, 3*time.Second, cfg.Session.Relay.DialTimeout)
	require.True(t, cfg.Session.Mesh.Enable)
	require.Equal(t, []string{"/ip4/0.0.0.0/tcp/0"}, cfg.Session.Mesh.Listen)
	require.Equal(t, 0.75, cfg.Session.Conflict.Radius)

	// untouched sections keep their defaults
	defaults := config.DefaultConfig()
	require.Equal(t, defaults.Session.MaintenanceInterval, cfg.Session.MaintenanceInterval)
	require.Equal(t, defaults.Session.Router, cfg.Session.Router)
	require.Equal(t, defaults.Session.Drift, cfg.Session.Drift)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.json", `{"room": "typo-for-room-id"}`)

	_, err := config.Load("/config.json", fs)
	require.ErrorContains(t, err, "unmarshal config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nowhere.json", afero.NewMemMapFs())
	require.ErrorContains(t, err, "read config")
}

func TestLoadValidates(t *testing.T) {
	for name, content := range map[string]string{
		"endpoint without room": `{"session": {"relay": {"endpoint": "https://sessions.example.com"}}}`,
		"bad logging level":     `{"room-id": "r", "logging": {"level": "chatty"}}`,
		"bad mesh addr":         `{"room-id": "r", "session": {"mesh": {"enable": true, "listen": ["not-a-multiaddr"]}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/config.json", content)
			_, err := config.Load("/config.json", fs)
			require.ErrorContains(t, err, "validate config")
		})
	}
}

func TestLocalDeviceAppliesCapabilityPreset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Device = config.DeviceConfig{ID: "tablet-7", Type: types.Mobile}
	cfg.IsHost = true

	device := cfg.LocalDevice()
	require.Equal(t, "tablet-7", device.DeviceID)
	require.Equal(t, types.Mobile, device.DeviceType)
	require.Equal(t, types.DefaultCapability(types.Mobile), device.Capability)
	require.True(t, device.IsHost)

	// an explicit capability is kept as given
	custom := types.RenderingCapability{
		MaxFPS:        45,
		MaxResolution: types.Resolution{Width: 800, Height: 600},
		MemoryLimitMB: 256,
		ComputeUnits:  1,
	}
	cfg.Device.Capability = custom
	require.Equal(t, custom, cfg.LocalDevice().Capability)
}

func TestLoggerConfigBuild(t *testing.T) {
	for _, encoder := range []string{config.ConsoleLogEncoder, config.JSONLogEncoder} {
		logger, err := config.LoggerConfig{Level: "info", Encoder: encoder}.Build()
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	_, err := config.LoggerConfig{Level: "info", Encoder: "yaml"}.Build()
	require.ErrorContains(t, err, "unknown log encoder")

	_, err = config.LoggerConfig{Level: "loud", Encoder: config.ConsoleLogEncoder}.Build()
	require.ErrorContains(t, err, "parse logging level")
}
