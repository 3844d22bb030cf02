package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipguard/internal/audit"
	"clipguard/internal/bindtable"
	"clipguard/internal/clipboard"
	"clipguard/internal/config"
	"clipguard/internal/control"
	"clipguard/internal/detect"
	"clipguard/internal/notify"
)

// loop is the single owner of the bind table, the monitor and the last
// observed clipboard text. Every other goroutine talks to it through a
// channel.
func (a *Agent) loop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Agent.Tick())
	defer ticker.Stop()

	a.monitor.Tick()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopping", "reason", context.Cause(ctx))
			return nil

		case <-ticker.C:
			a.monitor.Tick()

		case req := <-a.server.Requests():
			control.Dispatch(a, req)

		case ev := <-a.host.Events():
			a.monitor.HandleEvent(ev)

		case cfg := <-a.reloads:
			a.applyConfig(cfg)
		}
	}
}

// HandleCommand implements control.Handler on the reactor goroutine.
func (a *Agent) HandleCommand(cmd control.Command) control.Response {
	switch cmd.Op {
	case control.OpPing:
		return control.Pong()

	case control.OpBind:
		return a.bind(cmd.Arg, "fp")

	case control.OpUnbind:
		return a.unbind(cmd.Arg, "fp")

	case control.OpBindAddr, control.OpUnbindAddr:
		if cmd.Arg == "" {
			return control.Err(control.ReasonInvalidAddr)
		}
		fp, err := a.secrets.Fingerprint(cmd.Arg)
		if err != nil {
			a.log.Error("fingerprint address failed", "error", err)
			return control.Err(control.ReasonInternal)
		}
		if cmd.Op == control.OpBindAddr {
			return a.bind(fp, "addr")
		}
		return a.unbind(fp, "addr")

	case control.OpList:
		entries := a.table.List()
		out := make([]control.ListEntry, len(entries))
		for i, e := range entries {
			out[i] = control.ListEntry{Fingerprint: e.Fingerprint, CreatedAt: e.CreatedAt}
		}
		return control.List(out)

	default:
		return control.Err(control.ReasonUnknown)
	}
}

func (a *Agent) bind(fp, source string) control.Response {
	switch err := a.table.Bind(fp); {
	case err == nil:
		a.log.Info("fingerprint bound", "fingerprint", fp, "source", source, "bound", a.table.Len())
		a.auditor.record(audit.OpBind, fmt.Sprintf("fp=%s source=%s", fp, source))
		return control.OK()
	case errors.Is(err, bindtable.ErrFull):
		a.log.Warn("bind table full", "capacity", a.table.Capacity())
		return control.Err(control.ReasonFull)
	default:
		return control.Err(control.ReasonInvalidFP)
	}
}

func (a *Agent) unbind(fp, source string) control.Response {
	if err := a.table.Unbind(fp); err != nil {
		return control.Err(control.ReasonNotFound)
	}
	a.log.Info("fingerprint unbound", "fingerprint", fp, "source", source)
	a.auditor.record(audit.OpUnbind, fmt.Sprintf("fp=%s source=%s", fp, source))
	return control.OK()
}

func (a *Agent) lookup(fp string) (bool, error) {
	return a.table.Contains(fp), nil
}

// onDecision records sensitive decisions. Plain text that was never
// fingerprinted leaves no trace.
func (a *Agent) onDecision(d clipboard.Decision) {
	if d.Reason == clipboard.ReasonNotSensitive {
		return
	}

	detail := fmt.Sprintf("%s reason=%s", d.Match.String(), d.Reason)
	if d.Fingerprint != "" {
		detail += " fp=" + d.Fingerprint
	}

	if d.Action == clipboard.ActionAllow {
		a.auditor.record(audit.OpAllow, detail)
		return
	}

	a.auditor.record(audit.OpBlock, fmt.Sprintf("%s claimed=%t", detail, d.Claimed))
	body := "Clipboard content looked like a payment address that was not confirmed, so it was replaced."
	if d.Match.Chain != "" {
		body = fmt.Sprintf("Clipboard content looked like an unconfirmed %s address, so it was replaced.", d.Match.Chain)
	}
	if err := a.notifier.Notify("Paste blocked", body); err != nil && !errors.Is(err, notify.ErrRateLimited) {
		a.log.Debug("notification failed", "error", err)
	}
}

func (a *Agent) applyConfig(cfg *config.Config) {
	a.monitor.SetClassifier(buildClassifier(cfg.Detect))
	a.log.Info("detection rules reloaded", "markers", len(cfg.Detect.Markers), "validators", cfg.Detect.Validators)
	a.auditor.record(audit.OpReload, fmt.Sprintf("markers=%d validators=%t", len(cfg.Detect.Markers), cfg.Detect.Validators))
}

func buildClassifier(d config.DetectConfig) *detect.Classifier {
	rules := []detect.Rule{detect.NewMarkerRule(d.Markers...)}
	if d.Validators {
		rules = append(rules, detect.Validators()...)
	}
	return detect.New(rules...)
}
