// Package config provides the host's configuration type and loader.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultExtensionsDir is used when neither a flag, env var, nor config
	// file sets one.
	DefaultExtensionsDir = "./extensions"

	// DefaultDebounceWindow is the fsnotify coalescing window for rapid
	// bursts of events against the same path (editor save sequences).
	DefaultDebounceWindow = 200 * time.Millisecond

	// DefaultHTTPTimeout is the default for Config.HTTPTimeout.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultShutdownTimeout bounds how long the MCP adapter waits for
	// in-flight dispatches to drain on transport close.
	DefaultShutdownTimeout = 10 * time.Second

	// EventChannelBufferSize bounds each subscriber channel of the event bus.
	EventChannelBufferSize = 32
)

// Duration is a time.Duration that marshals to/from its human-readable
// string form in JSON/YAML config files instead of raw nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is the host's complete runtime configuration. It is populated by
// internal/config.Load, which layers (lowest to highest precedence) built-in
// defaults, a config file, and environment variables (STARMCP_ prefix);
// cmd/starmcp then applies CLI flags on top. It follows the teacher's
// mapstructure/json dual-tagged struct convention.
type Config struct {
	// ExtensionsDir is the directory scanned for *.star files.
	ExtensionsDir string `json:"extensions_dir" mapstructure:"extensions-dir"`

	// TestMode switches the process into the Test Runner entry mode,
	// loading only *_test.star files instead of serving MCP.
	TestMode bool `json:"test_mode" mapstructure:"test"`

	// DebugAddr, if non-empty, binds the optional status/diagnostics HTTP
	// server (see internal/status). Empty by default: inert unless opted
	// into explicitly.
	DebugAddr string `json:"debug_addr,omitempty" mapstructure:"debug-addr"`

	// HTTPTimeout is loaded from configuration but is not passed to the http
	// capability module, which applies its own fixed 30s default (or a
	// per-call timeout).
	HTTPTimeout Duration `json:"http_timeout,omitempty" mapstructure:"http-timeout"`

	// DebounceWindow is the fsnotify coalescing window for the loader.
	DebounceWindow Duration `json:"debounce_window,omitempty" mapstructure:"debounce-window"`

	// ShutdownTimeout bounds the MCP adapter's drain-on-close wait.
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" mapstructure:"shutdown-timeout"`

	// Logging configures the host's own structured logging.
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// LogConfig configures the host's structured logger, following the
// teacher's LogConfig field shape (internal/config/config.go in the pack).
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename,omitempty" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`     // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`
	MaxAge        int    `json:"max_age" mapstructure:"max-age"` // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		ExtensionsDir:   DefaultExtensionsDir,
		HTTPTimeout:     Duration(DefaultHTTPTimeout),
		DebounceWindow:  Duration(DefaultDebounceWindow),
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
		Logging: &LogConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			Filename:      "starmcp.log",
			MaxSize:       20,
			MaxBackups:    5,
			MaxAge:        14,
			Compress:      true,
			JSONFormat:    true,
		},
	}
}
