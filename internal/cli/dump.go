package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/stream"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database string
	Output   string // binary IBDF output path
	Debug    string // canonical JSON lines output path, "-" for stdout
}

// DumpResult summarizes a dump.
type DumpResult struct {
	Records int64  `json:"records"`
	Output  string `json:"output,omitempty"`
	Debug   string `json:"debug,omitempty"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write a snapshot database as IBDF and/or JSON",
		Long: `Write every chronology, stamp alias and stamp comment in a snapshot
database to an IBDF file, a canonical JSON lines file, or both.

With neither --output nor --debug the JSON lines go to stdout.

Example:
  chronicle dump --db ./terms.db -o terms.ibdf
  chronicle dump --db ./terms.db --debug - | jq .kind`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "IBDF output file")
	cmd.Flags().StringVar(&opts.Debug, "debug", "", "canonical JSON lines output file (- for stdout)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	debugPath := opts.Debug
	if opts.Output == "" && debugPath == "" {
		debugPath = "-"
	}

	s, err := openSession(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer s.close()

	var (
		sinks   []stream.RecordWriter
		created []*os.File
	)
	cleanup := func() {
		for _, f := range created {
			f.Close()
			os.Remove(f.Name())
		}
	}
	open := func(path string) (io.Writer, error) {
		if path == "-" {
			return cmd.OutOrStdout(), nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		created = append(created, f)
		return f, nil
	}

	if opts.Output != "" {
		w, err := open(opts.Output)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "creating output", err)
		}
		sinks = append(sinks, stream.NewWriter(w))
	}
	if debugPath != "" {
		w, err := open(debugPath)
		if err != nil {
			cleanup()
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "creating debug output", err)
		}
		sinks = append(sinks, stream.NewDebugWriter(w))
	}

	n, err := s.eng.Export(ctx, sinks...)
	if err != nil {
		cleanup()
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "export failed", err)
	}
	for _, f := range created {
		if err := f.Close(); err != nil {
			cleanup()
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "closing "+f.Name(), err)
		}
	}

	if debugPath == "-" {
		// stdout carries the records
		return nil
	}
	result := DumpResult{Records: n, Output: opts.Output, Debug: opts.Debug}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Wrote %d record(s)\n", n)
		if result.Output != "" {
			fmt.Fprintf(w, "  IBDF: %s\n", result.Output)
		}
		if result.Debug != "" {
			fmt.Fprintf(w, "  JSON: %s\n", result.Debug)
		}
	})
}
