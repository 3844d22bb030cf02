package config

import (
	"os"
	"path/filepath"

	"clipguard/internal/clipboard"
	"clipguard/internal/detect"
)

// Default values.
const (
	DefaultTickMs         = 500
	DefaultMaxConnections = 8
	DefaultBindCapacity   = 256
	DefaultMaxLineBytes   = 4096
	DefaultBackend        = "auto"
	DefaultNotifyTimeout  = 5000
)

// Backends lists the accepted clipboard_backend values.
var Backends = []string{"auto", "x11", "command", "memory"}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			TickMs:           DefaultTickMs,
			MaxConnections:   DefaultMaxConnections,
			BindCapacity:     DefaultBindCapacity,
			MaxLineBytes:     DefaultMaxLineBytes,
			AlertText:        clipboard.DefaultAlertText,
			DedupeBinds:      true,
			ClipboardBackend: DefaultBackend,
			RequireSameUser:  true,
		},
		Paths: PathsConfig{
			SaltFile:   filepath.Join(DataDir(), "device_salt"),
			SocketPath: filepath.Join(RuntimeDir(), "clipguard.sock"),
			AuditLog:   filepath.Join(RuntimeDir(), "clipguard_audit.log"),
		},
		Detect: DetectConfig{
			Markers:    detect.DefaultMarkers(),
			Validators: true,
		},
		Notify: NotifyConfig{
			Enabled:   true,
			TimeoutMs: DefaultNotifyTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(StateDir(), "clipguard.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// DataDir is $XDG_DATA_HOME/clipguard, falling back to
// ~/.local/share/clipguard.
func DataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "clipguard")
	}
	return filepath.Join(homeDir(), ".local", "share", "clipguard")
}

// RuntimeDir is $XDG_RUNTIME_DIR, falling back to DataDir.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return DataDir()
}

// StateDir is $XDG_STATE_HOME/clipguard, where logs live.
func StateDir() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "clipguard")
	}
	return filepath.Join(homeDir(), ".local", "state", "clipguard")
}

// ConfigDir is $XDG_CONFIG_HOME/clipguard.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "clipguard")
	}
	return filepath.Join(homeDir(), ".config", "clipguard")
}

// ConfigPath returns the configuration file to load: $CLIPGUARD_CONFIG, or
// the first existing config.{toml,yaml,yml,json} in ConfigDir, or
// config.toml there.
func ConfigPath() string {
	if v := os.Getenv("CLIPGUARD_CONFIG"); v != "" {
		return v
	}
	dir := ConfigDir()
	for _, name := range []string{"config.toml", "config.yaml", "config.yml", "config.json"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "config.toml")
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.TempDir()
}
