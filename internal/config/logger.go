package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewLogger builds a zap logger. Unknown levels fall back to info.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == FormatConsole {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
