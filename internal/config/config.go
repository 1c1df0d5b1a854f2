// Package config provides configuration management for robotvd using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort          = 34892
	defaultStreamTimeout       = 10 * time.Second
	defaultProtocolVersionMin  = 3
	defaultWriteTimeout        = 10 * time.Millisecond
	defaultAllowListPath       = "allowed_hosts.conf"
	defaultRingAudioBytes      = 64 * 1024
	defaultRingVideoBytes      = 2 * 1024 * 1024
	defaultTimeshiftThreshold  = 32 * 1024 * 1024
	defaultAllowListReloadCron = "@every 30s"
	defaultHostDBDriver        = "sqlite"
	defaultHostDBDSN           = "robotv.db"
	defaultDiagAPIAddr         = "127.0.0.1:34893"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Relay       RelayConfig       `mapstructure:"relay"`
	HostDB      HostDBConfig      `mapstructure:"hostdb"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// ServerConfig holds the live-streaming TCP server's configuration.
type ServerConfig struct {
	Host                string   `mapstructure:"host"`
	Port                int      `mapstructure:"port"`
	StreamTimeout        Duration `mapstructure:"stream_timeout"`
	ProtocolVersionFloor uint32   `mapstructure:"protocol_version_floor"`
	AllowListPath        string   `mapstructure:"allow_list_path"`
	AllowListReloadCron  string   `mapstructure:"allow_list_reload_cron"`
	WriteTimeout         Duration `mapstructure:"write_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RelayConfig holds demux/send-queue tuning.
type RelayConfig struct {
	RingAudioSize       ByteSize `mapstructure:"ring_audio_size"`
	RingVideoSize       ByteSize `mapstructure:"ring_video_size"`
	TimeshiftThreshold  ByteSize `mapstructure:"timeshift_threshold"`
	DefaultWaitIFrame   bool     `mapstructure:"default_wait_iframe"`
	PreferredLanguage   string   `mapstructure:"preferred_language"`
}

// HostDBConfig holds the reference host database's connection settings
// (channels/timers/recordings collaborator, used for integration tests and
// --dev-host mode; the production plugin is expected to be embedded in a
// host that supplies its own implementation of internal/hostapi).
type HostDBConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN    string `mapstructure:"dsn"`
}

// DiagnosticsConfig holds the read-only diagnostics HTTP API's settings.
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ROBOTV_ and use underscores for
// nesting. Example: ROBOTV_SERVER_PORT=34892.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/robotv")
		v.AddConfigPath("$HOME/.robotv")
	}

	v.SetEnvPrefix("ROBOTV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.stream_timeout", defaultStreamTimeout.String())
	v.SetDefault("server.protocol_version_floor", defaultProtocolVersionMin)
	v.SetDefault("server.allow_list_path", defaultAllowListPath)
	v.SetDefault("server.allow_list_reload_cron", defaultAllowListReloadCron)
	v.SetDefault("server.write_timeout", defaultWriteTimeout.String())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("relay.ring_audio_size", defaultRingAudioBytes)
	v.SetDefault("relay.ring_video_size", defaultRingVideoBytes)
	v.SetDefault("relay.timeshift_threshold", defaultTimeshiftThreshold)
	v.SetDefault("relay.default_wait_iframe", true)
	v.SetDefault("relay.preferred_language", "eng")

	v.SetDefault("hostdb.driver", defaultHostDBDriver)
	v.SetDefault("hostdb.dsn", defaultHostDBDSN)

	v.SetDefault("diagnostics.enabled", true)
	v.SetDefault("diagnostics.address", defaultDiagAPIAddr)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.HostDB.Driver] {
		return fmt.Errorf("hostdb.driver must be one of: sqlite, postgres, mysql")
	}
	if c.HostDB.DSN == "" {
		return fmt.Errorf("hostdb.dsn is required")
	}

	if c.Relay.RingAudioSize <= 0 {
		return fmt.Errorf("relay.ring_audio_size must be positive")
	}
	if c.Relay.RingVideoSize <= 0 {
		return fmt.Errorf("relay.ring_video_size must be positive")
	}

	return nil
}

// Address returns the server's listen address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
