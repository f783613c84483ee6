package config

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/loykin/rtmon/internal/logger"
	"github.com/loykin/rtmon/internal/oracle"
)

// EnvPrefix prefixes environment overrides, e.g. RTMON_SERVER_LISTEN.
const EnvPrefix = "RTMON"

// Config represents the top-level TOML structure.
type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Listen     string `toml:"listen" mapstructure:"listen"`
	BasePath   string `toml:"base_path" mapstructure:"base_path"`
	Socket     string `toml:"socket" mapstructure:"socket"`
	SocketMode uint32 `toml:"socket_mode" mapstructure:"socket_mode"`
	PIDFile    string `toml:"pidfile" mapstructure:"pidfile"`
	LogFile    string `toml:"logfile" mapstructure:"logfile"`
}

type MonitorConfig struct {
	WakeSignal string `toml:"wake_signal" mapstructure:"wake_signal"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string `toml:"dsns" mapstructure:"dsns"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     "127.0.0.1:8090",
			BasePath:   "/api",
			Socket:     "/tmp/rtmon.sock",
			SocketMode: 0o660,
		},
		Log:     LogConfig{Level: "info", Format: "text", TimeStamps: true},
		Metrics: MetricsConfig{Enabled: true, Listen: "127.0.0.1:9090"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.socket", d.Server.Socket)
	v.SetDefault("server.socket_mode", d.Server.SocketMode)
	v.SetDefault("server.pidfile", "")
	v.SetDefault("server.logfile", "")
	v.SetDefault("monitor.wake_signal", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.color", false)
	v.SetDefault("log.timestamps", d.Log.TimeStamps)
	v.SetDefault("log.source", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 0)
	v.SetDefault("log.max_backups", 0)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsns", []string{})
}

// LoadConfig reads path (TOML) on top of the defaults and applies RTMON_*
// environment overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" && c.Server.Socket == "" {
		errs = append(errs, errors.New("server: listen and socket are both empty"))
	}
	if c.Server.SocketMode > 0o777 {
		errs = append(errs, fmt.Errorf("server: socket_mode %#o is not a permission mask", c.Server.SocketMode))
	}
	if _, err := oracle.ParseSignal(c.Monitor.WakeSignal); err != nil {
		errs = append(errs, fmt.Errorf("monitor: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics: enabled without listen address"))
	}
	if c.History.Enabled {
		if len(c.History.DSNs) == 0 {
			errs = append(errs, errors.New("history: enabled without dsns"))
		}
		for i, d := range c.History.DSNs {
			if strings.TrimSpace(d) == "" {
				errs = append(errs, fmt.Errorf("history: dsns[%d] is empty", i))
			}
		}
	}
	return errors.Join(errs...)
}

// WakeSignal returns the signal sent to a task at each period boundary;
// zero means none.
func (c *Config) WakeSignal() syscall.Signal {
	sig, _ := oracle.ParseSignal(c.Monitor.WakeSignal)
	return sig
}

// LoggerConfig converts the [log] section. A non-empty server.logfile
// takes precedence over log.file.
func (c *Config) LoggerConfig() logger.Config {
	file := c.Log.File
	if c.Server.LogFile != "" {
		file = c.Server.LogFile
	}
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      c.Log.Level,
			Format:     c.Log.Format,
			Color:      c.Log.Color,
			TimeStamps: c.Log.TimeStamps,
			Source:     c.Log.Source,
		},
		File: logger.FileConfig{
			Path:       file,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// HistoryDSNs returns the sinks to open, or nil when history is disabled.
func (c *Config) HistoryDSNs() []string {
	if !c.History.Enabled {
		return nil
	}
	return c.History.DSNs
}
