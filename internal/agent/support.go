package agent

import (
	"os"

	"clipguard/internal/audit"
	"clipguard/internal/clipboard"
	"clipguard/internal/config"
	"clipguard/internal/logging"
)

// auditor wraps the audit writer so a missing log never stops the agent.
// A nil *auditor records nothing.
type auditor struct {
	w   *audit.Writer
	log *logging.Logger
}

func openAuditor(path string, log *logging.Logger) *auditor {
	log = log.WithComponent("audit")
	w, err := audit.Open(path)
	if err != nil {
		log.Error("audit log disabled", "path", path, "error", err)
		return &auditor{log: log}
	}
	return &auditor{w: w, log: log}
}

func (a *auditor) record(op, detail string) {
	if a == nil || a.w == nil {
		return
	}
	if _, err := a.w.Append(op, detail); err != nil {
		a.log.Error("audit append failed", "op", op, "error", err)
	}
}

func (a *auditor) close() error {
	if a == nil || a.w == nil {
		return nil
	}
	return a.w.Close()
}

// openHost builds the configured clipboard backend. "auto" prefers native
// X11 when a display is reachable and falls back to the command tools.
func openHost(cfg config.AgentConfig, log *logging.Logger) (clipboard.Host, string, error) {
	switch cfg.ClipboardBackend {
	case "memory":
		return clipboard.NewMemoryHost(), "memory", nil
	case "x11":
		h, err := clipboard.NewX11Host(cfg.Display, "CLIPBOARD", log)
		if err != nil {
			return nil, "", err
		}
		return h, "x11", nil
	case "command":
		return commandHost()
	}

	if cfg.Display != "" || os.Getenv("DISPLAY") != "" {
		h, err := clipboard.NewX11Host(cfg.Display, "CLIPBOARD", log)
		if err == nil {
			return h, "x11", nil
		}
		log.Warn("x11 clipboard unavailable, using command tools", "error", err)
	}
	return commandHost()
}

func commandHost() (clipboard.Host, string, error) {
	h, err := clipboard.NewCommandHost()
	if err != nil {
		return nil, "", err
	}
	return h, "command", nil
}
