package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Logger is built in PersistentPreRunE from --verbose and writes to
	// the command's stderr.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chronicle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: "chronicle - versioned terminology store",
		Long: `A bitemporal, multi-path versioned terminology store.

Chronicle reads and writes IBDF change-set files, resolves what each
component looked like at any time on any development path, builds is-a
taxonomies and computes the change set between two snapshots.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewTaxonomyCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))

	return cmd
}

// newLogger logs at Warn, or Debug with --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or a quiet one when a subcommand
// runs without the root (as in tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		o.Logger = newLogger(io.Discard, false)
	}
	return o.Logger
}
