package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clipguard/internal/control"
)

const dialTimeout = 3 * time.Second

// withClient dials the agent named by the configuration and runs fn.
func withClient(cmd *cobra.Command, opts *rootOptions, fn func(*control.Client) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	c, err := control.Dial(cmd.Context(), cfg.Paths.SocketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("agent not reachable: %w", err)
	}
	defer c.Close()
	return fn(c)
}

func simpleCommand(opts *rootOptions, use, short string, call func(*control.Client, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(c *control.Client) error {
				if err := call(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), control.LineOK)
				return nil
			})
		},
	}
}

func newControlCommands(opts *rootOptions) []*cobra.Command {
	ping := &cobra.Command{
		Use:   "ping",
		Short: "Check that the agent is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(c *control.Client) error {
				if err := c.Ping(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), control.LinePong)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show bound fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(c *control.Client) error {
				entries, err := c.List()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %s\n", e.Fingerprint, e.CreatedAt.Local().Format(time.DateTime))
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "no bound fingerprints")
				}
				return nil
			})
		},
	}

	return []*cobra.Command{
		simpleCommand(opts, "bindaddr <address>", "Authorize an address for this session", (*control.Client).BindAddr),
		simpleCommand(opts, "unbindaddr <address>", "Revoke an authorized address", (*control.Client).UnbindAddr),
		simpleCommand(opts, "bind <fingerprint>", "Authorize a precomputed fingerprint", (*control.Client).Bind),
		simpleCommand(opts, "unbind <fingerprint>", "Revoke a fingerprint", (*control.Client).Unbind),
		list,
		ping,
	}
}
