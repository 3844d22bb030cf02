package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("LevelString(%v) does not round trip: %q", level, LevelString(level))
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("json: got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("empty: got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Component != "clipguard" {
		t.Errorf("unexpected component %q", cfg.Component)
	}
	if cfg.Output != "stderr" {
		t.Errorf("unexpected output %q", cfg.Output)
	}
	if !strings.HasSuffix(cfg.FilePath, filepath.Join("clipguard", "clipguard.log")) {
		t.Errorf("unexpected log path %q", cfg.FilePath)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"salt", true},
		{"device_salt", true},
		{"nonce", true},
		{"secret", true},
		{"text", true},
		{"raw_text", true},
		{"clipboard_content", true},
		{"address", true},
		{"fingerprint", false},
		{"rule", false},
		{"conn", false},
		{"op", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestRedactionInOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.WithComponent("monitor").Info("blocked", "text", "bc1qsecret", "fingerprint", "abcd")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["text"] != "[REDACTED]" {
		t.Errorf("text not redacted: %v", rec["text"])
	}
	if rec["fingerprint"] != "abcd" {
		t.Errorf("fingerprint should pass through: %v", rec["fingerprint"])
	}
	if rec["component"] != "monitor" {
		t.Errorf("component = %v", rec["component"])
	}
	if strings.Contains(buf.String(), "bc1qsecret") {
		t.Error("clipboard text leaked into log output")
	}
}

func TestWithConn(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.WithConn("c-1").Info("accepted")
	if !strings.Contains(buf.String(), "conn=c-1") {
		t.Errorf("missing conn attribute: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelWarn
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record missing")
	}
}

func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing record: %s", data)
	}
	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("log file mode = %v", info.Mode().Perm())
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	rotator.maxBytes = 32
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	line := []byte("0123456789abcdef0123456789\n")
	for i := 0; i < 5; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups, err := rotator.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 backups after pruning, got %d: %v", len(backups), backups)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if !bytes.Equal(data, line) {
		t.Errorf("current file should hold only the last line, got %q", data)
	}
}

func TestNop(t *testing.T) {
	Nop().Error("discarded")
}
