// Package config loads the settings of the rest command from a YAML
// file and REST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adamwoolhether/rest/client/progress"
	"github.com/adamwoolhether/rest/client/throttle"
)

// EnvPrefix prefixes every environment override, e.g. REST_TIMEOUT or
// REST_THROTTLE_RPS.
const EnvPrefix = "REST"

// Config holds the command settings.
type Config struct {
	BaseURL      string            `mapstructure:"base_url" validate:"omitempty,http_url"`
	Timeout      time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	UserAgent    string            `mapstructure:"user_agent"`
	Headers      map[string]string `mapstructure:"headers"`
	CacheDir     string            `mapstructure:"cache_dir" validate:"required"`
	PollInterval time.Duration     `mapstructure:"poll_interval" validate:"gt=0"`
	BatchLimit   int               `mapstructure:"batch_limit" validate:"gte=0"`
	LogLevel     string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Debug        bool              `mapstructure:"debug"`
	Throttle     throttle.Config   `mapstructure:"throttle"`
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Resolve joins a relative target with BaseURL. Absolute URLs are
// returned unchanged.
func (c Config) Resolve(target string) string {
	if c.BaseURL == "" || strings.Contains(target, "://") {
		return target
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/")
}

// Dir returns the default directory holding config.yaml.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rest"
	}
	return filepath.Join(home, ".rest")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(Dir(), "cache")
	}
	return filepath.Join(dir, "rest")
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("user_agent", "rest/1.0")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("poll_interval", progress.DefaultInterval)
	v.SetDefault("batch_limit", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("throttle.rps", 0)
	v.SetDefault("throttle.burst", 0)
	v.SetDefault("throttle.per_host", false)
}

// New returns a viper instance with defaults and environment overrides
// registered. With path empty, config.yaml is searched for in [Dir].
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Read loads the config file into v. A missing file is only an error
// when it was named explicitly.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Load reads path (or the default file) and the environment into a
// validated Config.
func Load(path string) (Config, error) {
	v := New(path)
	if err := Read(v); err != nil {
		return Config{}, err
	}
	return Decode(v)
}
