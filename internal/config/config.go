// Package config handles subsystem configuration loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LevelTrace sits below slog's Debug level. ParseLogLevel accepts it as
// "trace"; no log call in this module currently emits at this level, so
// selecting it logs the same records as Debug.
const LevelTrace = slog.Level(-8)

// ParseLogLevel converts the configured log_level string to a slog.Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is a slog.HandlerOptions.ReplaceAttr hook that
// renders LevelTrace as "TRACE" instead of slog's default "DEBUG-4".
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/oddimorf/config.yaml, /config/config.yaml,
// /etc/oddimorf/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "oddimorf", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/oddimorf/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the subsystem's full runtime configuration, matching the
// on-disk shape described by spec §6: uid, name, broker endpoint, and the
// two local schema lists used to build data items and controls at startup.
type Config struct {
	UID           string           `yaml:"uid"`
	Name          string           `yaml:"name"`
	Broker        BrokerConfig     `yaml:"broker"`
	DataSchema    []DataSchema     `yaml:"dataSchema"`
	ControlSchema []map[string]any `yaml:"controlSchema"`
	LogLevel      string           `yaml:"log_level"`
}

// BrokerConfig describes the control-plane MQTT(S) broker endpoint.
type BrokerConfig struct {
	IP     string `yaml:"ip"`
	Port   int    `yaml:"port"`
	UseTLS bool   `yaml:"useTls"`
}

// DataSchema describes one produced stream: its key and its record layout
// as a comma-separated field-type token list (schema.Parse's input).
type DataSchema struct {
	Key       string `yaml:"key"`
	DataTypes string `yaml:"dataTypes"`
}

// NormalizedUID returns the configured UID with hyphens stripped to the
// canonical 32-character hex form used on the wire (spec §3, §6). It
// validates the configured value is a well-formed UUID before stripping,
// rather than accepting arbitrary strings.
func NormalizedUID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid uid %q: %w", raw, err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Load reads configuration from a YAML file, applies defaults for any
// unset fields, and validates the result. After Load returns successfully,
// all fields are usable without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults. Called
// automatically by Load.
func (c *Config) applyDefaults() {
	if c.Broker.Port == 0 {
		c.Broker.Port = 1883
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if _, err := NormalizedUID(c.UID); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Broker.IP == "" {
		return fmt.Errorf("broker.ip is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port %d out of range (1-65535)", c.Broker.Port)
	}
	for _, d := range c.DataSchema {
		if d.Key == "" {
			return fmt.Errorf("dataSchema entry missing key")
		}
	}
	for _, entry := range c.ControlSchema {
		if _, ok := entry["uid"].(string); !ok {
			return fmt.Errorf("controlSchema entry missing uid")
		}
		if _, ok := entry["type"].(string); !ok {
			return fmt.Errorf("controlSchema entry missing type")
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
