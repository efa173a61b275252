// Package cli is the stockroom command line: local inventory edits that are
// forwarded to the bridge, CSV exchange, accounts and scanner access.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"stockroom/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DB         string
	Server     string
	Wait       time.Duration
	Format     string // "json" | "text"
	Verbose    bool

	// dialer and resolver replace the WebSocket transport and LAN discovery
	// in tests.
	dialer   session.Dialer
	resolver session.Resolver
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockroom",
		Short: "Stockroom inventory client",
		Long: `Stockroom keeps a local inventory and mirrors tagged items to the bridge
that fronts the RFID reader.

Edits are applied locally first and then sent; commands wait up to --wait for
the bridge to acknowledge them before exiting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Wait < 0 {
				return NewExitError(ExitCommandError, "--wait must not be negative")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (default $STOCKROOM_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "local database DSN (overrides db_dsn)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "bridge address, e.g. ws://192.168.1.20:4000 (default: discover)")
	cmd.PersistentFlags().DurationVar(&opts.Wait, "wait", 5*time.Second, "how long to wait for the bridge before exiting")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(newSignupCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newResetPasswordCommand(opts))
	cmd.AddCommand(newCategoryCommand(opts))
	cmd.AddCommand(newItemCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newLookupCommand(opts))
	cmd.AddCommand(newPullCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))

	return cmd
}
