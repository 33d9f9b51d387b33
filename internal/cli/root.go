// Package cli wires the beansync commands: clone, pull, push, diff,
// detect-transfers, and the rule subcommands. Commands print their
// results on stdout; diagnostics go to the zap logger on stderr.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/remote"
	"github.com/beansync/beansync/internal/rules"
)

// Exit codes. Usage and configuration problems, remote-service
// failures, and local-archive failures are distinguishable so wrapper
// scripts can retry the right thing.
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitRemote  = 3
	exitArchive = 4
)

var (
	// Global flags
	configFile string
	dryRun     bool
	verbose    bool
	quiet      bool

	// Window flags, shared by every windowed command.
	flagFrom      string
	flagTo        string
	flagThisMonth bool
	flagLastMonth bool
	flagThisYear  bool
	flagLastYear  bool
)

var rootCmd = &cobra.Command{
	Use:   "beansync",
	Short: "beansync - two-way sync between a ledger service and a plain-text archive",
	Long: `beansync keeps a local plain-text accounting archive in step with a
hosted ledger service. The archive is the durable record: pull merges
remote changes in and writes local corrections back, push promotes
local edits, and every mutation lands in an append-only changelog next
to the archive.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps failures onto exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode classifies an error by its origin.
func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	if remote.IsRemoteError(err) {
		return exitRemote
	}
	var ae *archive.Error
	if errors.As(err, &ae) {
		return exitArchive
	}
	var ve *rules.ValidationErrors
	if errors.As(err, &ve) {
		return exitUsage
	}
	return exitError
}

// usageError marks bad flag combinations and malformed arguments.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "configuration file path (default: ./beansync.toml if present)")
	pf.BoolVarP(&dryRun, "dry-run", "n", false, "show intended changes without writing anything")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress diagnostics")

	pf.StringVar(&flagFrom, "from", "", "window start date (YYYY-MM-DD)")
	pf.StringVar(&flagTo, "to", "", "window end date (YYYY-MM-DD)")
	pf.BoolVar(&flagThisMonth, "this-month", false, "window over the current calendar month")
	pf.BoolVar(&flagLastMonth, "last-month", false, "window over the previous calendar month")
	pf.BoolVar(&flagThisYear, "this-year", false, "window over the current calendar year")
	pf.BoolVar(&flagLastYear, "last-year", false, "window over the previous calendar year")
}
