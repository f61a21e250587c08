package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/diff"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	OutputDir            string
	OutputName           string
	Author               string
	ModuleParents        string
	RetireTime           int64
	IgnoreTime           bool
	IgnoreSiblingModules bool
	KeepModuleMetadata   bool
	Debug                string
	Permits              int
	FailOnDiff           bool
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <initial.ibdf> <new.ibdf>",
		Short: "Compute the change set between two IBDF snapshots",
		Long: `Compute the IBDF change set that turns the initial snapshot into the new
one: added chronologies, changed versions, and retirements for
chronologies missing from the new snapshot.

--author and --module-parents take a well-known metadata name or a nid.

Example:
  chronicle diff --out ./out v1.ibdf v2.ibdf
  chronicle diff --out ./out --ignore-time --fail-on-diff v1.ibdf v2.ibdf`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OutputDir, "out", "", "output directory (required)")
	cmd.Flags().StringVar(&opts.OutputName, "name", diff.DefaultOutputName, "output file name")
	cmd.Flags().StringVar(&opts.Author, "author", ir.MetaUserAuthor.Name, "author of synthesized retirements")
	cmd.Flags().StringVar(&opts.ModuleParents, "module-parents", ir.MetaModuleParentAssemblage.Name, "module parent assemblage")
	cmd.Flags().Int64Var(&opts.RetireTime, "retire-time", 0, "time of synthesized retirements (epoch ms, default now)")
	cmd.Flags().BoolVar(&opts.IgnoreTime, "ignore-time", false, "compare versions without their stamp time")
	cmd.Flags().BoolVar(&opts.IgnoreSiblingModules, "ignore-sibling-modules", false, "treat modules with the same parent as equal")
	cmd.Flags().BoolVar(&opts.KeepModuleMetadata, "keep-module-metadata", false, "do not retire module concepts missing from the new snapshot")
	cmd.Flags().StringVar(&opts.Debug, "debug", "", "also write the change set as JSON lines to this file")
	cmd.Flags().IntVar(&opts.Permits, "permits", 0, "max records decoded ahead (0 = default)")
	cmd.Flags().BoolVar(&opts.FailOnDiff, "fail-on-diff", false, "exit 1 when the snapshots differ")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runDiff(opts *DiffOptions, initialPath, newPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	metadata, err := identity.NewRegistry().Bootstrap()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "bootstrapping metadata", err)
	}
	author, err := metadataNid(metadata, opts.Author)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDiffConfig, "--author", err)
	}
	parents, err := metadataNid(metadata, opts.ModuleParents)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDiffConfig, "--module-parents", err)
	}
	retireTime := opts.RetireTime
	if retireTime == 0 {
		retireTime = engine.NewClock().Next()
	}

	dopts := diff.Options{
		OutputDir:                 opts.OutputDir,
		OutputName:                opts.OutputName,
		InitialPath:               initialPath,
		NewPath:                   newPath,
		Author:                    author,
		RetireTime:                retireTime,
		IgnoreTimeInCompare:       opts.IgnoreTime,
		IgnoreSiblingModules:      opts.IgnoreSiblingModules,
		KeepMissingModuleMetadata: opts.KeepModuleMetadata,
		ModuleParentAssemblage:    parents,
		Permits:                   opts.Permits,
		Logger:                    opts.logger(),
	}
	if opts.Debug != "" {
		f, err := os.Create(opts.Debug)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "creating debug output", err)
		}
		defer f.Close()
		dopts.Debug = f
	}

	res, err := diff.Run(cmd.Context(), dopts)
	if err != nil {
		code := ErrCodeGeneric
		switch {
		case ir.IsConfiguration(err):
			code = ErrCodeDiffConfig
		case ir.IsCorrupt(err):
			code = ErrCodeCorrupt
		case ir.IsIO(err):
			code = ErrCodeNotFound
		}
		return formatter.Fail(ExitCommandError, code, "diff failed", err)
	}

	if err := formatter.Success(res, func(w io.Writer) { printDiff(w, res) }); err != nil {
		return err
	}
	if opts.FailOnDiff && res.Added+res.Removed+res.Changed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: snapshots differ", ErrCodeDiffFound))
	}
	return nil
}

// metadataNid parses a nid or looks up a well-known metadata name.
func metadataNid(metadata map[uuid.UUID]ir.Nid, ref string) (ir.Nid, error) {
	if n, err := strconv.ParseInt(ref, 10, 32); err == nil {
		return ir.Nid(n), nil
	}
	for _, m := range ir.Metadata {
		if m.Name == ref {
			return metadata[m.UUID], nil
		}
	}
	return 0, fmt.Errorf("%q is neither a nid nor a metadata concept name", ref)
}

func printDiff(w io.Writer, r *diff.Result) {
	fmt.Fprintf(w, "✓ Wrote %s\n", r.OutputPath)
	fmt.Fprintf(w, "  added:        %d\n", r.Added)
	fmt.Fprintf(w, "  removed:      %d (%d retirement(s))\n", r.Removed, r.RetirementsCreated)
	fmt.Fprintf(w, "  changed:      %d (%d version(s))\n", r.Changed, r.ChangedVersions)
	if r.RetainedModuleMetadata > 0 {
		fmt.Fprintf(w, "  retained module metadata: %d\n", r.RetainedModuleMetadata)
	}
}
