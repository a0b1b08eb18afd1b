package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log encoder kinds.
const (
	ConsoleLogEncoder = "console"
	JSONLogEncoder    = "json"
)

// LoggerConfig selects the level and encoding of the session logger.
type LoggerConfig struct {
	Level   string `mapstructure:"level"`
	Encoder string `mapstructure:"encoder"`
}

func defaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:   zapcore.WarnLevel.String(),
		Encoder: ConsoleLogEncoder,
	}
}

// Build constructs the logger described by the config.
func (l LoggerConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	switch l.Encoder {
	case ConsoleLogEncoder:
		cfg.Encoding = ConsoleLogEncoder
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case JSONLogEncoder:
		cfg.Encoding = JSONLogEncoder
	default:
		return nil, fmt.Errorf("unknown log encoder %q", l.Encoder)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
