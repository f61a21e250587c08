package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Database   string
	Config     string
	Coordinate string
	Time       int64
	Strict     bool
}

// ResolveResult is the latest version(s) of one component.
type ResolveResult struct {
	Ref        string            `json:"ref"`
	Nid        int32             `json:"nid"`
	Coordinate string            `json:"coordinate"`
	State      string            `json:"state"` // "present" | "absent" | "contradicted"
	Versions   []json.RawMessage `json:"versions"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <uuid|name>...",
		Short: "Show the latest version of components under a coordinate",
		Long: `Resolve the latest version of each component visible from a named stamp
coordinate.

Components are given by UUID or by well-known metadata name. Coordinates
are declared in CUE files under --config; without --config the built-in
"master" coordinate (master path, latest time) is used.

Example:
  chronicle resolve --db ./terms.db 6b0e4a8c-56a4-4c4e-9d6f-1f2a3b4c5d6e
  chronicle resolve --db ./terms.db --config ./coords --coordinate dev-view --time 1700000000000 root`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "directory of CUE coordinate definitions")
	cmd.Flags().StringVarP(&opts.Coordinate, "coordinate", "c", "master", "coordinate name")
	cmd.Flags().Int64Var(&opts.Time, "time", 0, "override the coordinate time (epoch ms)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 when a result is contradicted")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResolve(opts *ResolveOptions, refs []string, cmd *cobra.Command) error {
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

	cfg, err := s.config(opts.Config)
	if err != nil {
		return failLoad(formatter, err)
	}
	c, err := lookupName("coordinate", cfg.Coordinates, opts.Coordinate)
	if err != nil {
		return failLoad(formatter, err)
	}
	if opts.Time != 0 {
		c = c.WithTime(opts.Time)
	}

	resolve := s.env().Resolve
	results := make([]ResolveResult, 0, len(refs))
	contradicted := 0
	for _, ref := range refs {
		nid, err := resolve(ref)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUnknownRef, fmt.Sprintf("resolving %q", ref), err)
		}
		latest, err := s.eng.Resolve(nid, c)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUnknownRef, fmt.Sprintf("resolving %q", ref), err)
		}
		r, err := newResolveResult(ref, nid, opts.Coordinate, latest)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "rendering result", err)
		}
		if latest.IsContradicted() {
			contradicted++
		}
		results = append(results, r)
	}

	if err := formatter.Success(results, func(w io.Writer) { printResolveResults(w, results) }); err != nil {
		return err
	}
	if opts.Strict && contradicted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d contradicted result(s)", ErrCodeAmbiguous, contradicted))
	}
	return nil
}

func newResolveResult(ref string, nid ir.Nid, coord string, latest coordinate.Latest) (ResolveResult, error) {
	r := ResolveResult{
		Ref:        ref,
		Nid:        int32(nid),
		Coordinate: coord,
		State:      "present",
		Versions:   []json.RawMessage{},
	}
	switch {
	case latest.IsAbsent():
		r.State = "absent"
	case latest.IsContradicted():
		r.State = "contradicted"
	}
	for _, v := range latest.Versions() {
		data, err := ir.MarshalCanonical(ir.VersionDoc(v))
		if err != nil {
			return r, err
		}
		r.Versions = append(r.Versions, data)
	}
	return r, nil
}

func printResolveResults(w io.Writer, results []ResolveResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%s (nid %d) @ %s: %s\n", r.Ref, r.Nid, r.Coordinate, r.State)
		for _, v := range r.Versions {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
}

// failLoad reports a config or lookup error with its load error code.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		_ = formatter.Error(le.Code, le.Message, nil)
		return WrapExitError(ExitCommandError, le.Code, err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, "loading config", err)
}
