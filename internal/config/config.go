// Package config handles configuration loading and validation for clipguard.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the complete agent configuration.
type Config struct {
	Agent   AgentConfig   `toml:"agent" json:"agent" yaml:"agent"`
	Paths   PathsConfig   `toml:"paths" json:"paths" yaml:"paths"`
	Detect  DetectConfig  `toml:"detect" json:"detect" yaml:"detect"`
	Notify  NotifyConfig  `toml:"notify" json:"notify" yaml:"notify"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// AgentConfig tunes the reactor and its bounded resources.
type AgentConfig struct {
	// TickMs is the clipboard poll interval in milliseconds.
	TickMs int `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms"`

	// MaxConnections caps simultaneously open control connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// BindCapacity caps the number of bound fingerprints.
	BindCapacity int `toml:"bind_capacity" json:"bind_capacity" yaml:"bind_capacity"`

	// MaxLineBytes is the longest control line accepted before the
	// connection is dropped.
	MaxLineBytes int `toml:"max_line_bytes" json:"max_line_bytes" yaml:"max_line_bytes"`

	// AlertText replaces blocked clipboard content.
	AlertText string `toml:"alert_text" json:"alert_text" yaml:"alert_text"`

	// DedupeBinds makes a repeated BIND refresh the existing entry instead
	// of taking another slot.
	DedupeBinds bool `toml:"dedupe_binds" json:"dedupe_binds" yaml:"dedupe_binds"`

	// ClipboardBackend is "auto", "x11", "command" or "memory".
	ClipboardBackend string `toml:"clipboard_backend" json:"clipboard_backend" yaml:"clipboard_backend"`

	// Display overrides $DISPLAY for the x11 backend.
	Display string `toml:"display" json:"display" yaml:"display"`

	// RequireSameUser rejects control peers running as another uid.
	RequireSameUser bool `toml:"require_same_user" json:"require_same_user" yaml:"require_same_user"`
}

// PathsConfig locates the agent's files.
type PathsConfig struct {
	SaltFile   string `toml:"salt_file" json:"salt_file" yaml:"salt_file"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	AuditLog   string `toml:"audit_log" json:"audit_log" yaml:"audit_log"`
}

// DetectConfig selects the sensitivity rules.
type DetectConfig struct {
	// Markers are lowercase substrings that make canonical text sensitive.
	Markers []string `toml:"markers" json:"markers" yaml:"markers"`

	// Validators enables the checksum-validating address rules.
	Validators bool `toml:"validators" json:"validators" yaml:"validators"`
}

// NotifyConfig controls desktop notifications on block.
type NotifyConfig struct {
	Enabled   bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	TimeoutMs int  `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// Tick returns the poll interval.
func (a AgentConfig) Tick() time.Duration {
	return time.Duration(a.TickMs) * time.Millisecond
}

// Timeout returns the notification display time.
func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// Load reads configuration from path. A missing file yields the defaults.
// The decoder is chosen by extension: .toml, .json, .yaml or .yml, with TOML
// as the fallback. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies CLIPGUARD_* environment variables. Malformed
// numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CLIPGUARD_SOCKET_PATH"); v != "" {
		c.Paths.SocketPath = v
	}
	if v := os.Getenv("CLIPGUARD_SALT_FILE"); v != "" {
		c.Paths.SaltFile = v
	}
	if v := os.Getenv("CLIPGUARD_AUDIT_LOG"); v != "" {
		c.Paths.AuditLog = v
	}
	if v := os.Getenv("CLIPGUARD_CLIPBOARD_BACKEND"); v != "" {
		c.Agent.ClipboardBackend = v
	}
	if v := os.Getenv("CLIPGUARD_ALERT_TEXT"); v != "" {
		c.Agent.AlertText = v
	}
	if v, ok := envInt("CLIPGUARD_TICK_MS"); ok {
		c.Agent.TickMs = v
	}
	if v, ok := envInt("CLIPGUARD_BIND_CAPACITY"); ok {
		c.Agent.BindCapacity = v
	}
	if v, ok := envInt("CLIPGUARD_MAX_CONNECTIONS"); ok {
		c.Agent.MaxConnections = v
	}
	if v, ok := envBool("CLIPGUARD_DEDUPE_BINDS"); ok {
		c.Agent.DedupeBinds = v
	}
	if v, ok := envBool("CLIPGUARD_NOTIFY"); ok {
		c.Notify.Enabled = v
	}
	if v := os.Getenv("CLIPGUARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CLIPGUARD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Detect.Markers = append([]string(nil), c.Detect.Markers...)
	return &clone
}

// EnsureDirectories creates the parent directories of every configured path.
func (c *Config) EnsureDirectories() error {
	for _, p := range []string{c.Paths.SaltFile, c.Paths.SocketPath, c.Paths.AuditLog} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", filepath.Dir(p), err)
		}
	}
	return nil
}
