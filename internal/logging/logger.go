// Package logging builds the host's zap logger, following the teacher's
// LogConfig-plus-lumberjack-rotation shape (internal/logs/communication.go
// in the pack), generalized from "log upstream communication" to "log host
// lifecycle and dispatch events" and always kept off stdout, which is
// reserved for the JSON-RPC transport.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"starmcp-go/internal/config"
)

// New builds a *zap.Logger per cfg. Console output always targets stderr;
// stdout is never touched so it stays clean for the MCP transport.
func New(cfg *config.LogConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &config.LogConfig{Level: "info", EnableConsole: true}
	}

	level := parseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.EnableConsole {
		consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level))
	}

	if cfg.EnableFile {
		fileCore, err := newFileCore(cfg, level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		cores = append(cores, fileCore)
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func newFileCore(cfg *config.LogConfig, level zapcore.Level) (zapcore.Core, error) {
	filename := cfg.Filename
	if filename == "" {
		filename = "starmcp.log"
	}
	if cfg.LogDir != "" {
		filename = filepath.Join(cfg.LogDir, filename)
	}

	writer := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    orDefault(cfg.MaxSize, 20),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAge, 14),
		Compress:   cfg.Compress,
	}

	var encoder zapcore.Encoder
	if cfg.JSONFormat {
		encoder = zapcore.NewJSONEncoder(fileEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(fileEncoderConfig())
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(writer), level), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// parseLevel follows the spec's "RUST_LOG-style, default info" requirement.
func parseLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "info", "":
		return zap.InfoLevel
	default:
		return zap.InfoLevel
	}
}
