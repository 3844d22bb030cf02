package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clipguard/internal/agent"
	"clipguard/internal/config"
	"clipguard/internal/logging"
	"clipguard/internal/security"
)

func newAgentCommand(opts *rootOptions) *cobra.Command {
	var (
		backend string
		level   string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the clipboard guard in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, hardenErr := security.Harden()

			loader := config.NewLoader(opts.configPath)
			defer loader.Close()
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.socketPath != "" {
				cfg.Paths.SocketPath = opts.socketPath
			}
			if backend != "" {
				cfg.Agent.ClipboardBackend = backend
			}
			if level != "" {
				cfg.Logging.Level = level
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			logCfg, err := cfg.Logging.LoggerConfig()
			if err != nil {
				return err
			}
			log, err := logging.New(logCfg)
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			defer log.Close()
			logging.SetDefault(log)

			if hardenErr != nil {
				log.Warn("process hardening incomplete", "error", hardenErr)
			}
			for _, w := range proc.Warnings {
				log.Warn(w, "pid", proc.PID, "euid", proc.EUID)
			}

			a, err := agent.New(cfg, agent.Options{Logger: log})
			if err != nil {
				return err
			}

			if !noWatch {
				loader.OnChange(a.Reload)
				if err := loader.Watch(); err != nil {
					log.Warn("config watch disabled", "path", loader.Path(), "error", err)
				}
				go func() {
					for err := range loader.Errors() {
						log.Warn("config reload rejected", "error", err)
					}
				}()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "clipguard %s guarding clipboard (%s), control socket %s\n",
				Version, a.Backend(), a.SocketPath())
			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "clipboard backend: auto, x11, command or memory")
	cmd.Flags().StringVar(&level, "log-level", "", "log level: debug, info, warn or error")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload detection rules when the config file changes")
	return cmd
}
