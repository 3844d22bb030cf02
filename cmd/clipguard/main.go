// clipguard - clipboard guard for cryptocurrency addresses
//
//	clipguard agent               Run the guard in the foreground
//	clipguard bindaddr <address>  Authorize an address for this session
//	clipguard bind <fingerprint>  Authorize a precomputed fingerprint
//	clipguard unbindaddr <addr>   Revoke an address
//	clipguard unbind <fp>         Revoke a fingerprint
//	clipguard list                Show bound fingerprints
//	clipguard ping                Check the agent is alive
//	clipguard verify [path]       Verify the audit log chain
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clipguard/internal/audit"
	"clipguard/internal/config"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	socketPath string
}

// load reads the configuration named by --config and applies --socket.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.socketPath != "" {
		cfg.Paths.SocketPath = o.socketPath
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "clipguard",
		Short:         "Block pastes of unconfirmed cryptocurrency addresses",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default "+config.ConfigPath()+")")
	cmd.PersistentFlags().StringVar(&opts.socketPath, "socket", "", "control socket path (overrides config)")

	cmd.AddCommand(newAgentCommand(opts))
	cmd.AddCommand(newControlCommands(opts)...)
	cmd.AddCommand(newVerifyCommand(opts))
	return cmd
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clipguard: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// verifyExit maps an audit verification error to its exit status.
func verifyExit(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: audit.ExitCode(err), err: err}
}
