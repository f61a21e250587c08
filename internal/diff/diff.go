// Package diff compares two binary snapshots and writes a third stream
// that turns the initial state into the new one: added chronologies,
// retirements for removed ones, and the new versions of changed ones.
//
// Chronologies are matched by primary UUID. Both snapshots are assumed to
// share one nid namespace.
package diff

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stream"
)

// DefaultOutputName is the diff file name used when Options.OutputName is
// empty.
const DefaultOutputName = "diff.ibdf"

// Options configures one diff run.
type Options struct {
	OutputDir   string
	OutputName  string
	InitialPath string
	NewPath     string

	// Author and RetireTime stamp every synthesized retirement.
	Author     ir.Nid
	RetireTime int64

	// IgnoreTimeInCompare compares versions without their stamp time. Only
	// valid when the initial file has at most one version per chronology.
	IgnoreTimeInCompare bool

	// IgnoreSiblingModules treats two modules with the same unversioned
	// parent as equal.
	IgnoreSiblingModules bool

	// KeepMissingModuleMetadata skips retirements for version-specific
	// module concepts and their semantics missing from the new file. They
	// are counted as retained instead. The zero value retires them like
	// any other removed component.
	KeepMissingModuleMetadata bool

	// ModuleParentAssemblage holds the component-nid semantics that map a
	// version-specific module to its parent module.
	ModuleParentAssemblage ir.Nid

	// Debug, when set, also receives every output record as canonical JSON.
	Debug io.Writer

	// Permits bounds concurrent record decoding. Zero uses the stream
	// default.
	Permits int

	Logger *slog.Logger
}

// Result reports the counters of a successful run.
type Result struct {
	OutputPath             string `json:"output_path"`
	Added                  int    `json:"added"`
	Removed                int    `json:"removed"`
	RetirementsCreated     int    `json:"retirements_created"`
	Changed                int    `json:"changed"`
	ChangedVersions        int    `json:"changed_versions"`
	RetainedModuleMetadata int    `json:"retained_module_metadata"`
}

func (o *Options) validate() error {
	switch {
	case o.OutputDir == "":
		return &ir.ConfigurationError{Field: "output_dir", Message: "required"}
	case o.InitialPath == "":
		return &ir.ConfigurationError{Field: "initial_path", Message: "required"}
	case o.NewPath == "":
		return &ir.ConfigurationError{Field: "new_path", Message: "required"}
	case !o.Author.IsSet():
		return &ir.ConfigurationError{Field: "author", Message: "retirement author nid is required"}
	case o.RetireTime <= 0 || o.RetireTime == ir.TimeLatest:
		return &ir.ConfigurationError{Field: "retire_time", Message: fmt.Sprintf("invalid retirement time %d", o.RetireTime)}
	case o.OutputName != "" && filepath.Base(o.OutputName) != o.OutputName:
		return &ir.ConfigurationError{Field: "output_name", Message: "must be a plain file name"}
	}
	return nil
}

// Run executes the diff. On any error no output file is left behind.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	permits := opts.Permits
	if permits <= 0 {
		permits = stream.DefaultPermits()
	}
	for _, p := range []string{opts.InitialPath, opts.NewPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, &ir.IOError{Op: "stat input", Err: err}
		}
	}
	if info, err := os.Stat(opts.OutputDir); err != nil || !info.IsDir() {
		return nil, &ir.ConfigurationError{Field: "output_dir", Message: fmt.Sprintf("%s is not a directory", opts.OutputDir)}
	}

	initial, err := loadSnapshot(ctx, opts.InitialPath, permits)
	if err != nil {
		return nil, err
	}
	if opts.IgnoreTimeInCompare {
		if u, n, ok := initial.firstMultiVersion(); ok {
			return nil, &ir.ConfigurationError{
				Field:   "ignore_time_in_compare",
				Message: fmt.Sprintf("initial file has %d versions for %s; at most one per chronology is allowed", n, u),
			}
		}
	}
	next, err := loadSnapshot(ctx, opts.NewPath, permits)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded snapshots",
		"initial", opts.InitialPath, "initial_records", initial.records,
		"new", opts.NewPath, "new_records", next.records)

	d := &differ{opts: opts, logger: logger, initial: initial, next: next, parents: coordinate.ModuleParents{}}
	initial.moduleParents(opts.ModuleParentAssemblage, d.parents)
	next.moduleParents(opts.ModuleParentAssemblage, d.parents)
	d.moduleMetadata = d.findModuleMetadata()

	name := opts.OutputName
	if name == "" {
		name = DefaultOutputName
	}
	final := filepath.Join(opts.OutputDir, name)
	res, err := d.writeAtomically(final)
	if err != nil {
		return nil, err
	}
	logger.Info("diff complete",
		"output", final,
		"added", res.Added,
		"removed", res.Removed,
		"retirements", res.RetirementsCreated,
		"changed", res.Changed,
		"changed_versions", res.ChangedVersions,
		"retained_module_metadata", res.RetainedModuleMetadata)
	return res, nil
}

type differ struct {
	opts           Options
	logger         *slog.Logger
	initial, next  *snapshot
	parents        coordinate.ModuleParents
	moduleMetadata map[uuid.UUID]bool
}

// findModuleMetadata marks every version-specific module concept (a module
// with a declared parent) and every semantic attached to one.
func (d *differ) findModuleMetadata() map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	for _, snap := range []*snapshot{d.initial, d.next} {
		for u, c := range snap.chrons {
			_, isModule := d.parents[c.Nid]
			_, onModule := d.parents[c.ReferencedComponent]
			if (c.IsConcept() && isModule) || (c.Kind == ir.KindSemantic && onModule) {
				out[u] = true
			}
		}
	}
	return out
}

func (d *differ) writeAtomically(final string) (*Result, error) {
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return nil, &ir.IOError{Op: "create temp output", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bin := stream.NewWriter(tmp)
	sinks := []stream.RecordWriter{bin}
	if d.opts.Debug != nil {
		sinks = append(sinks, stream.NewDebugWriter(d.opts.Debug))
	}
	out := stream.NewMultiWriter(sinks...)

	res, err := d.emit(out)
	if err != nil {
		return nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, &ir.IOError{Op: "sync output", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &ir.IOError{Op: "close output", Err: err}
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return nil, &ir.IOError{Op: "rename output", Err: err}
	}
	committed = true
	res.OutputPath = final
	return res, nil
}

func (d *differ) emit(out *stream.MultiWriter) (*Result, error) {
	res := &Result{}

	keys := make([]uuid.UUID, 0, len(d.initial.chrons)+len(d.next.chrons))
	for u := range d.initial.chrons {
		keys = append(keys, u)
	}
	for u := range d.next.chrons {
		if _, ok := d.initial.chrons[u]; !ok {
			keys = append(keys, u)
		}
	}
	slices.SortFunc(keys, compareUUID)

	for _, u := range keys {
		before, inInitial := d.initial.chrons[u]
		after, inNew := d.next.chrons[u]
		switch {
		case !inInitial:
			if err := out.Write(after); err != nil {
				return nil, fmt.Errorf("write added %s: %w", u, err)
			}
			res.Added++
			d.logger.Debug("added", "uuid", u, "nid", after.Nid)

		case !inNew:
			if d.moduleMetadata[u] && d.opts.KeepMissingModuleMetadata {
				res.RetainedModuleMetadata++
				d.logger.Debug("retained module metadata", "uuid", u, "nid", before.Nid)
				continue
			}
			res.Removed++
			retirements := d.retirements(before)
			if len(retirements) == 0 {
				continue
			}
			if err := out.Write(before.WithVersions(retirements)); err != nil {
				return nil, fmt.Errorf("write retirement %s: %w", u, err)
			}
			res.RetirementsCreated += len(retirements)
			d.logger.Debug("retired", "uuid", u, "nid", before.Nid, "versions", len(retirements))

		default:
			changed := d.changedVersions(before, after)
			if len(changed) == 0 {
				continue
			}
			payload, err := codec.EncodeChronology(after, func(v ir.Version) bool {
				return slices.ContainsFunc(changed, func(c ir.Version) bool { return c.Stamp == v.Stamp })
			})
			if err != nil {
				return nil, fmt.Errorf("encode changed %s: %w", u, err)
			}
			if err := out.WriteRecord(payload, after.WithVersions(changed)); err != nil {
				return nil, fmt.Errorf("write changed %s: %w", u, err)
			}
			res.Changed++
			res.ChangedVersions += len(changed)
			d.logger.Debug("changed", "uuid", u, "nid", after.Nid, "versions", len(changed))
		}
	}

	if err := d.emitStampRecords(out); err != nil {
		return nil, err
	}
	return res, nil
}

// retirements synthesizes one INACTIVE version per path whose latest
// version in c is still active. The retirement keeps the latest payload,
// module and path and takes the configured author and time.
func (d *differ) retirements(c *ir.Chronology) []ir.Version {
	latest := map[ir.Nid]ir.Version{}
	var paths []ir.Nid
	for _, v := range c.Versions {
		if v.Stamp.Status == ir.StatusCanceled || v.Stamp.Status == ir.StatusPrimordial {
			continue
		}
		prev, ok := latest[v.Stamp.Path]
		if !ok {
			paths = append(paths, v.Stamp.Path)
		}
		if !ok || ir.CompareStamps(v.Stamp, prev.Stamp) > 0 {
			latest[v.Stamp.Path] = v
		}
	}
	slices.Sort(paths)

	var out []ir.Version
	for _, p := range paths {
		v := latest[p]
		if !v.Stamp.Status.IsActive() {
			continue
		}
		out = append(out, ir.Version{
			Stamp: ir.Stamp{
				Status: ir.StatusInactive,
				Time:   d.opts.RetireTime,
				Author: d.opts.Author,
				Module: v.Stamp.Module,
				Path:   v.Stamp.Path,
			},
			Payload: v.Payload,
		})
	}
	return out
}

// changedVersions returns the versions of after with no equal version in
// before.
func (d *differ) changedVersions(before, after *ir.Chronology) []ir.Version {
	var out []ir.Version
	for _, v := range after.Versions {
		if !slices.ContainsFunc(before.Versions, func(b ir.Version) bool { return d.sameVersion(b, v) }) {
			out = append(out, v)
		}
	}
	return out
}

func (d *differ) sameVersion(a, b ir.Version) bool {
	sa, sb := a.Stamp, b.Stamp
	if sa.Status != sb.Status || sa.Author != sb.Author || sa.Path != sb.Path {
		return false
	}
	if !d.opts.IgnoreTimeInCompare && sa.Time != sb.Time {
		return false
	}
	if sa.Module != sb.Module && !(d.opts.IgnoreSiblingModules && d.parents.Siblings(sa.Module, sb.Module)) {
		return false
	}
	return ir.PayloadsEqual(a.Payload, b.Payload)
}

// emitStampRecords forwards stamp aliases, comments and unparsed records
// that the new file has and the initial file lacks.
func (d *differ) emitStampRecords(out *stream.MultiWriter) error {
	for _, a := range d.next.aliases {
		if !slices.ContainsFunc(d.initial.aliases, func(b *ir.StampAlias) bool { return *a == *b }) {
			if err := out.Write(a); err != nil {
				return fmt.Errorf("write stamp alias: %w", err)
			}
		}
	}
	for _, c := range d.next.comments {
		if !slices.ContainsFunc(d.initial.comments, func(b *ir.StampComment) bool { return *c == *b }) {
			if err := out.Write(c); err != nil {
				return fmt.Errorf("write stamp comment: %w", err)
			}
		}
	}
	for _, u := range d.next.unparsed {
		if err := out.WriteRecord(u.Payload, u); err != nil {
			return fmt.Errorf("write unparsed record: %w", err)
		}
	}
	return nil
}
