package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stream"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
	Permits  int
}

// ImportResult summarizes an import.
type ImportResult struct {
	Files        int   `json:"files"`
	Records      int64 `json:"records"`
	Chronologies int   `json:"chronologies"`
	Stamps       int   `json:"stamps"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.ibdf>...",
		Short: "Import IBDF files into a snapshot database",
		Long: `Import one or more IBDF change-set files into a snapshot database.

Files are applied in argument order. Versions already present are merged,
so importing the same file twice leaves the database unchanged.

Example:
  chronicle import --db ./terms.db base.ibdf delta-2024.ibdf`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database (required)")
	cmd.Flags().IntVar(&opts.Permits, "permits", 0, "max records decoded ahead of the store (0 = default)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer s.close()

	result := ImportResult{Files: len(files)}
	for _, path := range files {
		n, err := importFile(cmd, s, path, opts.Permits)
		result.Records += n
		if err != nil {
			code := ErrCodeImportFailed
			if ir.IsCorrupt(err) {
				code = ErrCodeCorrupt
			}
			return formatter.Fail(ExitCommandError, code, fmt.Sprintf("importing %s", path), err)
		}
		formatter.VerboseLog("Imported %d record(s) from %s", n, path)
	}

	if err := s.save(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to save database", err)
	}
	result.Chronologies = s.eng.Store().Len()
	result.Stamps = s.eng.Interner().Len()

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Imported %d record(s) from %d file(s)\n", result.Records, result.Files)
		fmt.Fprintf(w, "  %d chronologies, %d stamps in %s\n", result.Chronologies, result.Stamps, opts.Database)
	})
}

func importFile(cmd *cobra.Command, s *session, path string, permits int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &ir.IOError{Op: "open " + path, Err: err}
	}
	defer f.Close()

	ropts := []stream.ReaderOption{stream.WithPermits(permits)}
	if fi, err := f.Stat(); err == nil {
		ropts = append(ropts, stream.WithTotalBytes(fi.Size()))
	}
	return s.eng.Import(cmd.Context(), f, ropts...)
}
