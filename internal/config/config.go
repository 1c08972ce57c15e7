// Package config provides Viper-based configuration loading for the arena server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ArenaConfig holds the TCP listener and event loop settings.
type ArenaConfig struct {
	// Host is the bind address for the game listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the game listener. Zero selects a random port.
	Port int `mapstructure:"port"`
	// WriteTimeout bounds every write to a client; zero disables the deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// InboxSize is the capacity of the event loop's inbox channel.
	InboxSize int `mapstructure:"inbox_size"`
	// ReadChunkSize is the maximum number of bytes a reader posts per event.
	ReadChunkSize int `mapstructure:"read_chunk_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (a ArenaConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// RangeConfig is an inclusive integer interval.
type RangeConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// GameConfig holds the battle rules.
type GameConfig struct {
	// HitPoints is the interval each side's starting hitpoints are drawn from.
	HitPoints RangeConfig `mapstructure:"hitpoints"`
	// PowerMoves is the interval each side's starting powermove charges are drawn from.
	PowerMoves RangeConfig `mapstructure:"powermoves"`
	// Damage is the interval a regular attack (and a powermove's base) is drawn from.
	Damage RangeConfig `mapstructure:"damage"`
	// PowerMoveMultiplier scales the base damage of a landed powermove.
	PowerMoveMultiplier int `mapstructure:"powermove_multiplier"`
	// PowerMoveHitPercent is the chance, in percent, that a powermove lands.
	PowerMoveHitPercent int `mapstructure:"powermove_hit_percent"`
	// LineBufferSize is the per-session input capacity before a forced flush.
	LineBufferSize int `mapstructure:"line_buffer_size"`
	// RematchOnDrop makes the survivor of a dropped match look for a new opponent immediately.
	RematchOnDrop bool `mapstructure:"rematch_on_drop"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" metrics listen address.
func (m MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Arena   ArenaConfig   `mapstructure:"arena"`
	Game    GameConfig    `mapstructure:"game"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateArena(c.Arena); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateMetrics(c.Metrics); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateArena(a ArenaConfig) error {
	var errs []string
	if a.Port < 0 || a.Port > 65535 {
		errs = append(errs, fmt.Sprintf("arena.port must be 0-65535, got %d", a.Port))
	}
	if a.WriteTimeout < 0 {
		errs = append(errs, "arena.write_timeout must not be negative")
	}
	if a.InboxSize < 1 {
		errs = append(errs, fmt.Sprintf("arena.inbox_size must be >= 1, got %d", a.InboxSize))
	}
	if a.ReadChunkSize < 1 {
		errs = append(errs, fmt.Sprintf("arena.read_chunk_size must be >= 1, got %d", a.ReadChunkSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRange(name string, r RangeConfig, floor int) []string {
	var errs []string
	if r.Min < floor {
		errs = append(errs, fmt.Sprintf("%s.min must be >= %d, got %d", name, floor, r.Min))
	}
	if r.Max < r.Min {
		errs = append(errs, fmt.Sprintf("%s.max must be >= %s.min (%d), got %d", name, name, r.Min, r.Max))
	}
	return errs
}

func validateGame(g GameConfig) error {
	var errs []string
	errs = append(errs, validateRange("game.hitpoints", g.HitPoints, 1)...)
	errs = append(errs, validateRange("game.powermoves", g.PowerMoves, 0)...)
	errs = append(errs, validateRange("game.damage", g.Damage, 0)...)
	if g.PowerMoveMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("game.powermove_multiplier must be >= 1, got %d", g.PowerMoveMultiplier))
	}
	if g.PowerMoveHitPercent < 0 || g.PowerMoveHitPercent > 100 {
		errs = append(errs, fmt.Sprintf("game.powermove_hit_percent must be 0-100, got %d", g.PowerMoveHitPercent))
	}
	if g.LineBufferSize < 2 {
		errs = append(errs, fmt.Sprintf("game.line_buffer_size must be >= 2, got %d", g.LineBufferSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateMetrics(m MetricsConfig) error {
	if !m.Enabled {
		return nil
	}
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("metrics.port must be 0-65535, got %d", m.Port)
	}
	return nil
}

// flagBindings maps command-line flag names to configuration keys.
var flagBindings = map[string]string{
	"host":         "arena.host",
	"port":         "arena.port",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"metrics-host": "metrics.host",
	"metrics-port": "metrics.port",
}

// RegisterFlags declares the override flags understood by Load on fs.
//
// Postcondition: Every key in flagBindings is defined on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "bind address for the game listener")
	fs.Int("port", 0, "TCP port for the game listener")
	fs.String("log-level", "", "minimum log level (debug, info, warn, error)")
	fs.String("log-format", "", "log output format (json, console)")
	fs.String("metrics-host", "", "bind address for the metrics endpoint")
	fs.Int("metrics-port", 0, "TCP port for the metrics endpoint")
}

// Load builds the configuration from defaults, the optional YAML file at path,
// ARENA_ environment variables and any flags explicitly set on flags, in
// increasing order of precedence, and validates the result.
//
// Precondition: path is empty or names a readable configuration file; flags may be nil.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagBindings {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag %q: %w", name, err)
			}
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arena.host", "0.0.0.0")
	v.SetDefault("arena.port", 30100)
	v.SetDefault("arena.write_timeout", "10s")
	v.SetDefault("arena.inbox_size", 256)
	v.SetDefault("arena.read_chunk_size", 512)

	v.SetDefault("game.hitpoints.min", 20)
	v.SetDefault("game.hitpoints.max", 30)
	v.SetDefault("game.powermoves.min", 1)
	v.SetDefault("game.powermoves.max", 3)
	v.SetDefault("game.damage.min", 2)
	v.SetDefault("game.damage.max", 6)
	v.SetDefault("game.powermove_multiplier", 3)
	v.SetDefault("game.powermove_hit_percent", 50)
	v.SetDefault("game.line_buffer_size", 300)
	v.SetDefault("game.rematch_on_drop", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "127.0.0.1")
	v.SetDefault("metrics.port", 9100)
}

// Default returns the built-in configuration without consulting files,
// environment or flags.
//
// Postcondition: The returned Config passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: default values failed to unmarshal: " + err.Error())
	}
	return cfg
}
