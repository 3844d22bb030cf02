// auditverify checks a clipguard audit log without starting the agent.
//
//	auditverify [--quiet] [--config file] [path]
//
// With no path the configured audit log is verified, honoring
// paths.audit_log and CLIPGUARD_* overrides. The exit status is 0 when the
// chain is intact, 1 on a read error, 2 when the log is missing, 3 for a
// malformed record and 4 for a hash mismatch.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"clipguard/internal/audit"
	"clipguard/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		quiet      bool
		configPath string
	)

	fs := pflag.NewFlagSet("auditverify", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVarP(&quiet, "quiet", "q", false, "print nothing, report only through the exit status")
	fs.StringVarP(&configPath, "config", "c", "", "config file naming the default audit log")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: auditverify [--quiet] [--config file] [audit-log]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return audit.ExitOK
		}
		return audit.ExitIOError
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return audit.ExitIOError
	}

	var path string
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "auditverify: %v\n", err)
			return audit.ExitIOError
		}
		path = cfg.Paths.AuditLog
	}

	res, err := audit.VerifyFile(path)
	if err != nil {
		if !quiet {
			fmt.Fprintf(stderr, "auditverify: %v\n", err)
		}
		return audit.ExitCode(err)
	}
	if !quiet {
		fmt.Fprintf(stdout, "audit OK (%d records)\n", res.Records)
	}
	return audit.ExitOK
}
