package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"clipguard/internal/logging"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalidConfig }

// ValidateConfig checks every section and returns ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	errs = append(errs, validateAgent(&c.Agent)...)
	errs = append(errs, validatePaths(&c.Paths)...)
	errs = append(errs, validateDetect(&c.Detect)...)
	errs = append(errs, validateNotify(&c.Notify)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateAgent(a *AgentConfig) ValidationErrors {
	var errs ValidationErrors
	if a.TickMs < 50 || a.TickMs > 60000 {
		errs = append(errs, *RangeError("agent.tick_ms", 50, 60000))
	}
	if a.MaxConnections < 1 || a.MaxConnections > 1024 {
		errs = append(errs, *RangeError("agent.max_connections", 1, 1024))
	}
	if a.BindCapacity < 1 || a.BindCapacity > 1<<16 {
		errs = append(errs, *RangeError("agent.bind_capacity", 1, 1<<16))
	}
	if a.MaxLineBytes < 128 || a.MaxLineBytes > 1<<20 {
		errs = append(errs, *RangeError("agent.max_line_bytes", 128, 1<<20))
	}
	if a.AlertText == "" {
		errs = append(errs, *RequiredFieldError("agent.alert_text"))
	}
	if !slices.Contains(Backends, a.ClipboardBackend) {
		errs = append(errs, ValidationError{
			Field:   "agent.clipboard_backend",
			Message: fmt.Sprintf("unknown backend %q (valid: %s)", a.ClipboardBackend, strings.Join(Backends, ", ")),
		})
	}
	return errs
}

func validatePaths(p *PathsConfig) ValidationErrors {
	var errs ValidationErrors
	for field, v := range map[string]string{
		"paths.salt_file":   p.SaltFile,
		"paths.socket_path": p.SocketPath,
		"paths.audit_log":   p.AuditLog,
	} {
		if v == "" {
			errs = append(errs, *RequiredFieldError(field))
		}
	}
	// sun_path is 108 bytes on Linux including the terminator.
	if len(p.SocketPath) > 107 {
		errs = append(errs, ValidationError{Field: "paths.socket_path", Message: "path too long for a unix socket"})
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

func validateDetect(d *DetectConfig) ValidationErrors {
	var errs ValidationErrors
	if len(d.Markers) == 0 && !d.Validators {
		errs = append(errs, ValidationError{
			Field:   "detect.markers",
			Message: "at least one marker is required when validators are disabled",
		})
	}
	for i, m := range d.Markers {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("detect.markers[%d]", i), Message: "empty marker"})
		}
	}
	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	if n.Enabled && n.TimeoutMs < 0 {
		return ValidationErrors{{Field: "notify.timeout_ms", Message: "timeout cannot be negative"}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output includes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "required field is missing"}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("value must be between %v and %v", min, max)}
}

// LoggerConfig converts the logging section for the logging package.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	cfg.FilePath = l.FilePath
	cfg.MaxSizeMB = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	return cfg, nil
}
