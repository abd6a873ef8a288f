package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// durationHook lets mapstructure decode "30s"-style strings straight into
// the config.Duration wrapper type viper.Unmarshal otherwise can't see
// through (it only special-cases the stdlib time.Duration type).
func durationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(Duration(0)) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		return Duration(parsed), nil
	}
}

// EnvPrefix is the environment-variable namespace scripts and operators use
// to override configuration, following the spec's "RUST_LOG-style" naming
// for the log level in particular (STARMCP_LOG_LEVEL / STARMCP_LOGGING_LEVEL).
const EnvPrefix = "STARMCP"

// Load builds a Config by layering defaults, an optional config file, and
// environment variables, using viper the way the teacher's dependency set
// calls for (the teacher's own config_loader.go predates viper adoption in
// the retrieved pack, but viper remains a direct dependency of the teacher's
// go.mod; this loader is the first concrete consumer).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("extensions-dir", defaults.ExtensionsDir)
	v.SetDefault("http-timeout", defaults.HTTPTimeout.Duration().String())
	v.SetDefault("debounce-window", defaults.DebounceWindow.Duration().String())
	v.SetDefault("shutdown-timeout", defaults.ShutdownTimeout.Duration().String())
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.enable-console", defaults.Logging.EnableConsole)
	v.SetDefault("logging.enable-file", defaults.Logging.EnableFile)
	v.SetDefault("logging.filename", defaults.Logging.Filename)
	v.SetDefault("logging.max-size", defaults.Logging.MaxSize)
	v.SetDefault("logging.max-backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.max-age", defaults.Logging.MaxAge)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
	v.SetDefault("logging.json-format", defaults.Logging.JSONFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("logging.level", EnvPrefix+"_LOG_LEVEL", EnvPrefix+"_LOGGING_LEVEL"); err != nil {
		return nil, fmt.Errorf("config: binding log level env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	cfg := &Config{Logging: &LogConfig{}}
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
