package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipguard/internal/audit"
)

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [audit-log]",
		Short: "Verify the audit log hash chain",
		Long: `Verify recomputes every record's hash from its predecessor.

Exit status: 0 chain intact, 1 read error, 2 log missing,
3 malformed record, 4 hash mismatch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				path = cfg.Paths.AuditLog
			}

			res, err := audit.VerifyFile(path)
			if err != nil {
				return verifyExit(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "audit OK (%d records, head %s)\n", res.Records, res.Head)
			return nil
		},
	}
}
