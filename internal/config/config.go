// Package config loads AMRWatch settings from a YAML file, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/amrwatch/internal/eventlog"
	"github.com/HerbHall/amrwatch/internal/probe"
	"github.com/HerbHall/amrwatch/internal/tracker"
)

// EnvPrefix is prepended to every environment override, e.g.
// AMRWATCH_MONITOR_INTERVAL=30s.
const EnvPrefix = "AMRWATCH"

// Config is the complete runtime configuration.
type Config struct {
	Targets []Target      `mapstructure:"targets"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Log     LogConfig     `mapstructure:"log"`
	Alert   AlertConfig   `mapstructure:"alert"`
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
}

// Target is one monitored robot.
type Target struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// MonitorConfig controls the poll loop and the prober.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Method      string        `mapstructure:"method"`
	Concurrency int           `mapstructure:"concurrency"`
}

// LogConfig controls the CSV event log.
type LogConfig struct {
	Dir        string        `mapstructure:"dir"`
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// AlertConfig controls the audible transition alert.
type AlertConfig struct {
	Beep bool `mapstructure:"beep"`
}

// ServerConfig controls the HTTP API. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig controls the SQLite mirror. An empty Path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultTargets is the reference fleet.
func DefaultTargets() []Target {
	return []Target{
		{Name: "Utac01", Address: "10.158.17.140"},
		{Name: "Utac02", Address: "10.158.17.43"},
		{Name: "Utac03", Address: "10.158.17.69"},
		{Name: "Utac04", Address: "10.158.17.38"},
	}
}

func setDefaults(v *viper.Viper) {
	targets := make([]map[string]any, 0, 4)
	for _, t := range DefaultTargets() {
		targets = append(targets, map[string]any{"name": t.Name, "address": t.Address})
	}
	v.SetDefault("targets", targets)
	v.SetDefault("monitor.interval", 10*time.Second)
	v.SetDefault("monitor.timeout", time.Second)
	v.SetDefault("monitor.method", probe.MethodExec)
	v.SetDefault("monitor.concurrency", 1)
	v.SetDefault("log.dir", ".")
	v.SetDefault("log.attempts", eventlog.DefaultAttempts)
	v.SetDefault("log.retry_delay", eventlog.DefaultRetryDelay)
	v.SetDefault("alert.beep", true)
	v.SetDefault("server.addr", "")
	v.SetDefault("store.path", "")
}

// Load reads the configuration. An empty path uses defaults and environment
// overrides only; a non-empty path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Monitor.Method = strings.ToLower(strings.TrimSpace(cfg.Monitor.Method))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("targets[%d]: name is required", i))
		case seen[t.Name]:
			errs = append(errs, fmt.Errorf("targets[%d]: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
		if t.Address == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: address is required", i))
		}
	}

	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.Timeout <= 0 {
		errs = append(errs, errors.New("monitor.timeout must be positive"))
	}
	if c.Monitor.Method != probe.MethodICMP && c.Monitor.Method != probe.MethodExec {
		errs = append(errs, fmt.Errorf("monitor.method %q: must be %q or %q",
			c.Monitor.Method, probe.MethodICMP, probe.MethodExec))
	}
	if c.Monitor.Concurrency < 1 {
		errs = append(errs, errors.New("monitor.concurrency must be at least 1"))
	}
	if c.Log.Attempts < 1 {
		errs = append(errs, errors.New("log.attempts must be at least 1"))
	}
	if c.Log.RetryDelay <= 0 {
		errs = append(errs, errors.New("log.retry_delay must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// TrackerTargets converts the configured targets for the monitor.
func (c *Config) TrackerTargets() []tracker.Target {
	out := make([]tracker.Target, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = tracker.Target{Name: t.Name, Address: t.Address}
	}
	return out
}
