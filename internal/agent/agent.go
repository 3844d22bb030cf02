// Package agent assembles the clipboard guard: device secrets, the bind
// table, the control server, the clipboard monitor and the audit trail, all
// driven by one reactor goroutine.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"clipguard/internal/audit"
	"clipguard/internal/bindtable"
	"clipguard/internal/clipboard"
	"clipguard/internal/config"
	"clipguard/internal/control"
	"clipguard/internal/fingerprint"
	"clipguard/internal/logging"
	"clipguard/internal/notify"
)

// Options supplies collaborators that would otherwise be built from the
// configuration.
type Options struct {
	// Host replaces the configured clipboard backend.
	Host clipboard.Host

	// Notifier replaces the desktop notifier.
	Notifier notify.Notifier

	Logger *logging.Logger
}

// Agent is one running guard instance. Its salt and nonce live only here.
type Agent struct {
	cfg *config.Config
	log *logging.Logger

	secrets  *fingerprint.Secrets
	table    *bindtable.Table
	server   *control.Server
	host     clipboard.Host
	backend  string
	monitor  *clipboard.Monitor
	auditor  *auditor
	notifier notify.Notifier

	reloads chan *config.Config
	started bool

	closeOnce sync.Once
	closeErr  error
}

// New performs startup: salt, socket and clipboard failures are returned
// as errors and leave nothing running. An unusable audit log or notifier is
// logged and skipped.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	a := &Agent{
		cfg:     cfg,
		log:     opts.Logger.WithComponent("agent"),
		reloads: make(chan *config.Config, 1),
	}
	defer func() {
		if !a.started {
			a.Close()
		}
	}()

	salt, err := fingerprint.LoadDeviceSalt(cfg.Paths.SaltFile)
	if err != nil {
		return nil, err
	}
	if a.secrets, err = fingerprint.NewSessionSecrets(salt); err != nil {
		return nil, err
	}

	a.table = bindtable.New(bindtable.Options{
		Capacity:        cfg.Agent.BindCapacity,
		AllowDuplicates: !cfg.Agent.DedupeBinds,
	})

	a.auditor = openAuditor(cfg.Paths.AuditLog, opts.Logger)

	a.server, err = control.NewServer(control.ServerConfig{
		SocketPath:      cfg.Paths.SocketPath,
		MaxConnections:  cfg.Agent.MaxConnections,
		MaxLineBytes:    cfg.Agent.MaxLineBytes,
		RequireSameUser: cfg.Agent.RequireSameUser,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := a.server.Start(); err != nil {
		return nil, fmt.Errorf("start control server: %w", err)
	}

	if opts.Host != nil {
		a.host, a.backend = opts.Host, "custom"
	} else if a.host, a.backend, err = openHost(cfg.Agent, opts.Logger); err != nil {
		return nil, err
	}

	a.monitor, err = clipboard.NewMonitor(clipboard.MonitorConfig{
		Host:        a.host,
		Classifier:  buildClassifier(cfg.Detect),
		Fingerprint: a.secrets.Fingerprint,
		Lookup:      a.lookup,
		AlertText:   cfg.Agent.AlertText,
		OnDecision:  a.onDecision,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.notifier = opts.Notifier
	if a.notifier == nil {
		a.notifier = openNotifier(cfg.Notify, a.log)
	}

	a.auditor.record(audit.OpStartup, fmt.Sprintf("pid=%d backend=%s capacity=%d", os.Getpid(), a.backend, cfg.Agent.BindCapacity))
	a.started = true
	a.log.Info("agent started",
		"backend", a.backend,
		"socket", cfg.Paths.SocketPath,
		"audit_log", cfg.Paths.AuditLog,
		"tick", cfg.Agent.Tick().String(),
	)
	return a, nil
}

func openNotifier(cfg config.NotifyConfig, log *logging.Logger) notify.Notifier {
	if !cfg.Enabled {
		return notify.Nop{}
	}
	d, err := notify.NewDesktop(notify.Config{Timeout: cfg.Timeout()})
	if err != nil {
		log.Warn("desktop notifications unavailable", "error", err)
		return notify.Nop{}
	}
	return d
}

// SocketPath returns the control socket path.
func (a *Agent) SocketPath() string { return a.server.SocketPath() }

// Backend names the clipboard backend in use.
func (a *Agent) Backend() string { return a.backend }

// Reload queues a new configuration for the reactor. Only detection rules
// take effect without a restart. A pending reload is replaced.
func (a *Agent) Reload(cfg *config.Config) {
	for {
		select {
		case a.reloads <- cfg:
			return
		default:
		}
		select {
		case <-a.reloads:
		default:
		}
	}
}

// Close releases every resource. It is safe to call more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.server != nil {
			errs = append(errs, a.server.Stop())
		}
		if a.host != nil {
			errs = append(errs, a.host.Close())
		}
		if a.notifier != nil {
			errs = append(errs, a.notifier.Close())
		}
		if a.started {
			a.auditor.record(audit.OpShutdown, fmt.Sprintf("pid=%d", os.Getpid()))
		}
		errs = append(errs, a.auditor.close())
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Run drives the reactor until ctx is done, then closes the agent.
func (a *Agent) Run(ctx context.Context) error {
	defer a.Close()
	return a.loop(ctx)
}
