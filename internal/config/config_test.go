package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("XDG_DATA_HOME", "/home/u/.local/share")

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500*time.Millisecond, cfg.Agent.Tick())
	assert.Equal(t, 8, cfg.Agent.MaxConnections)
	assert.Equal(t, 256, cfg.Agent.BindCapacity)
	assert.True(t, cfg.Agent.DedupeBinds)
	assert.Equal(t, "/home/u/.local/share/clipguard/device_salt", cfg.Paths.SaltFile)
	assert.Equal(t, "/run/user/1000/clipguard.sock", cfg.Paths.SocketPath)
	assert.Equal(t, "/run/user/1000/clipguard_audit.log", cfg.Paths.AuditLog)
	assert.Equal(t, []string{"bc1", "0x", "lnbc", "tb1", "ltc1", "lntb"}, cfg.Detect.Markers)
}

func TestRuntimeDirFallback(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/data")

	assert.Equal(t, "/data/clipguard", RuntimeDir())
	assert.Equal(t, "/data/clipguard/clipguard.sock", DefaultConfig().Paths.SocketPath)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTickMs, cfg.Agent.TickMs)
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "c.toml", "[agent]\ntick_ms = 250\ndedupe_binds = false\n[detect]\nmarkers = [\"xyz\"]\n"},
		{"json", "c.json", `{"agent":{"tick_ms":250,"dedupe_binds":false},"detect":{"markers":["xyz"]}}`},
		{"yaml", "c.yaml", "agent:\n  tick_ms: 250\n  dedupe_binds: false\ndetect:\n  markers: [xyz]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 250, cfg.Agent.TickMs)
			assert.False(t, cfg.Agent.DedupeBinds)
			assert.Equal(t, []string{"xyz"}, cfg.Detect.Markers)
			assert.Equal(t, DefaultBindCapacity, cfg.Agent.BindCapacity, "unset keys keep defaults")
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLIPGUARD_SOCKET_PATH", "/tmp/x.sock")
	t.Setenv("CLIPGUARD_TICK_MS", "1000")
	t.Setenv("CLIPGUARD_BIND_CAPACITY", "not-a-number")
	t.Setenv("CLIPGUARD_DEDUPE_BINDS", "false")
	t.Setenv("CLIPGUARD_CLIPBOARD_BACKEND", "memory")
	t.Setenv("CLIPGUARD_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.sock", cfg.Paths.SocketPath)
	assert.Equal(t, 1000, cfg.Agent.TickMs)
	assert.Equal(t, DefaultBindCapacity, cfg.Agent.BindCapacity)
	assert.False(t, cfg.Agent.DedupeBinds)
	assert.Equal(t, "memory", cfg.Agent.ClipboardBackend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"tick too small", func(c *Config) { c.Agent.TickMs = 1 }, "agent.tick_ms"},
		{"zero connections", func(c *Config) { c.Agent.MaxConnections = 0 }, "agent.max_connections"},
		{"zero capacity", func(c *Config) { c.Agent.BindCapacity = 0 }, "agent.bind_capacity"},
		{"tiny line", func(c *Config) { c.Agent.MaxLineBytes = 10 }, "agent.max_line_bytes"},
		{"no alert", func(c *Config) { c.Agent.AlertText = "" }, "agent.alert_text"},
		{"bad backend", func(c *Config) { c.Agent.ClipboardBackend = "wayland" }, "agent.clipboard_backend"},
		{"no salt", func(c *Config) { c.Paths.SaltFile = "" }, "paths.salt_file"},
		{"long socket", func(c *Config) { c.Paths.SocketPath = "/" + strings.Repeat("s", 200) }, "paths.socket_path"},
		{"no rules", func(c *Config) { c.Detect.Markers = nil; c.Detect.Validators = false }, "detect.markers"},
		{"blank marker", func(c *Config) { c.Detect.Markers = []string{"bc1", " "} }, "detect.markers[1]"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			var fields []string
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Detect.Markers[0] = "changed"
	assert.Equal(t, "bc1", cfg.Detect.Markers[0])
}

func TestLoggerConfig(t *testing.T) {
	l := DefaultConfig().Logging
	l.Level = "warn"
	l.Format = "json"

	cfg, err := l.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", strings.ToLower(cfg.Level.String()))
	assert.Equal(t, int64(10), cfg.MaxSizeMB)
}

func TestConfigPathPrefersExisting(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLIPGUARD_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "clipguard", "config.toml"), ConfigPath())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "clipguard"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clipguard", "config.yaml"), nil, 0600))
	assert.Equal(t, filepath.Join(dir, "clipguard", "config.yaml"), ConfigPath())

	t.Setenv("CLIPGUARD_CONFIG", "/etc/cg.toml")
	assert.Equal(t, "/etc/cg.toml", ConfigPath())
}

// =============================================================================
// Loader
// =============================================================================

func TestLoaderReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[detect]\nmarkers = [\"aaa\"]\n"), 0600))

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, cfg.Detect.Markers)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[detect]\nmarkers = [\"bbb\"]\n"), 0600))

	// A write may surface as a truncate followed by the content, so wait for
	// the final state.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if len(c.Detect.Markers) == 1 && c.Detect.Markers[0] == "bbb" {
				assert.Equal(t, []string{"bbb"}, l.Config().Detect.Markers)
				return
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent]\ntick_ms = 500\n"), 0600))

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[agent]\ntick_ms = 1\n"), 0600))

	select {
	case err := <-l.Errors():
		assert.ErrorIs(t, err, ErrInvalidConfig)
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
	}
	assert.Equal(t, 500, l.Config().Agent.TickMs)
}

func TestLoaderCloseEndsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent]\ntick_ms = 500\n"), 0600))

	l := NewLoader(path)
	require.NoError(t, l.Watch())

	drained := make(chan struct{})
	go func() {
		for range l.Errors() {
		}
		close(drained)
	}()

	require.NoError(t, l.Close())
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("Errors not closed")
	}
	assert.NoError(t, l.Close())
	l.report(errors.New("late"))
}
