package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/chronology"
	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stamp"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/stream"
	"github.com/roach88/chronicle/internal/taxonomy"
)

// BootstrapTime is the stamp time of the metadata concept versions.
const BootstrapTime int64 = 1

// Engine is safe for concurrent use.
type Engine struct {
	registry *identity.Registry
	interner *stamp.Interner
	store    *chronology.Store
	records  *taxonomy.Records
	clock    *Clock
	logger   *slog.Logger
	permits  int
	workers  int
	meta     map[uuid.UUID]ir.Nid
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger shared by every component.
// Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used to stamp edits.
// Default: NewClock(), backed by wall time.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithPermits bounds concurrent record decoding during Import.
// Default: stream.DefaultPermits().
func WithPermits(n int) EngineOption {
	return func(e *Engine) { e.permits = n }
}

// WithWorkers bounds the taxonomy builder's parallelism.
// Default: stream.DefaultPermits().
func WithWorkers(n int) EngineOption {
	return func(e *Engine) { e.workers = n }
}

// New constructs the registry, interner, chronology store and taxonomy
// records in that order and bootstraps the metadata concepts.
func New(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		logger:  slog.Default(),
		permits: stream.DefaultPermits(),
		workers: stream.DefaultPermits(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = NewClock()
	}

	e.registry = identity.NewRegistry()
	e.interner = stamp.NewInterner()
	e.store = chronology.NewStore(e.interner, chronology.WithLogger(e.logger))

	meta, err := e.registry.Bootstrap()
	if err != nil {
		return nil, fmt.Errorf("bootstrap metadata: %w", err)
	}
	e.meta = meta
	e.records = taxonomy.NewRecords(e.store, e.registry, e.Meta(ir.MetaIsA), taxonomy.WithLogger(e.logger))

	boot := ir.Stamp{
		Status: ir.StatusActive,
		Time:   BootstrapTime,
		Author: e.Meta(ir.MetaUserAuthor),
		Module: e.Meta(ir.MetaCoreModule),
		Path:   e.Meta(ir.MetaMasterPath),
	}
	for _, m := range ir.Metadata {
		c := &ir.Chronology{
			Kind:        ir.KindConcept,
			Nid:         meta[m.UUID],
			PrimaryUUID: m.UUID,
			Versions:    []ir.Version{{Stamp: boot}},
		}
		if _, err := e.store.Merge(c); err != nil {
			e.records.Close()
			return nil, fmt.Errorf("bootstrap %s: %w", m.Name, err)
		}
	}
	e.clock.Observe(BootstrapTime)
	e.logger.Debug("engine bootstrapped", "metadata", len(ir.Metadata))
	return e, nil
}

// Close releases the taxonomy records' store subscription.
func (e *Engine) Close() {
	e.records.Close()
}

// Registry returns the identifier registry.
func (e *Engine) Registry() *identity.Registry { return e.registry }

// Interner returns the stamp interner.
func (e *Engine) Interner() *stamp.Interner { return e.interner }

// Store returns the chronology store.
func (e *Engine) Store() *chronology.Store { return e.store }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Clock returns the edit clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Meta returns the nid of a well-known metadata concept.
func (e *Engine) Meta(m ir.MetadataConcept) ir.Nid { return e.meta[m.UUID] }

// ApplyParsedObject adds one decoded object to the store.
//
// Chronology nids are bound to their UUIDs as given, so a stream written
// by one engine can be applied to another that shares its namespace.
// Unparsed records are logged and skipped.
func (e *Engine) ApplyParsedObject(obj ir.Object) error {
	switch o := obj.(type) {
	case *ir.Chronology:
		if err := e.registry.Bind(o.Nid, o.UUIDs()...); err != nil {
			return fmt.Errorf("apply %s %s: %w", o.Kind, o.Nid, err)
		}
		if o.IsConcept() {
			if _, err := e.registry.MarkConcept(o.Nid); err != nil {
				return fmt.Errorf("apply %s %s: %w", o.Kind, o.Nid, err)
			}
		}
		for _, v := range o.Versions {
			e.clock.Observe(v.Stamp.Time)
		}
		if _, err := e.store.Merge(o); err != nil {
			return fmt.Errorf("apply %s %s: %w", o.Kind, o.Nid, err)
		}
	case *ir.StampAlias:
		if err := e.interner.AddAlias(o.Stamp, o.Alias); err != nil {
			return fmt.Errorf("apply stamp alias: %w", err)
		}
	case *ir.StampComment:
		if err := e.interner.SetComment(o.Stamp, o.Comment); err != nil {
			return fmt.Errorf("apply stamp comment: %w", err)
		}
	case *ir.Unparsed:
		e.logger.Warn("skipping unparsed record", "tag", int(o.Tag), "bytes", len(o.Payload))
	default:
		return &ir.ValidationError{Field: "object", Message: fmt.Sprintf("unsupported object %T", obj)}
	}
	return nil
}

// Import applies every record of a binary stream. Extra reader options
// are applied after the engine's permits and logger.
func (e *Engine) Import(ctx context.Context, r io.Reader, opts ...stream.ReaderOption) (int64, error) {
	base := []stream.ReaderOption{stream.WithPermits(e.permits), stream.WithReaderLogger(e.logger)}
	reader := stream.NewReader(r, append(base, opts...)...)
	n, err := reader.Read(ctx, func(_ context.Context, obj ir.Object) error {
		return e.ApplyParsedObject(obj)
	})
	if err != nil {
		return n, fmt.Errorf("import: %w", err)
	}
	e.logger.Info("import complete", "records", n, "chronologies", e.store.Len())
	return n, nil
}

// Export writes every chronology in nid order, then the stamp aliases and
// comments, to every sink. It returns the number of records written.
func (e *Engine) Export(ctx context.Context, sinks ...stream.RecordWriter) (int64, error) {
	out := stream.NewMultiWriter(sinks...)
	var (
		n   int64
		err error
	)
	e.store.ForEach(func(c *ir.Chronology) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		if err = out.Write(c); err != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	for _, a := range e.interner.AliasRecords() {
		if err := out.Write(&a); err != nil {
			return n, fmt.Errorf("export: %w", err)
		}
		n++
	}
	for _, c := range e.interner.CommentRecords() {
		if err := out.Write(&c); err != nil {
			return n, fmt.Errorf("export: %w", err)
		}
		n++
	}
	if err := out.Flush(); err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

// Resolve returns the latest version(s) of nid visible from c.
func (e *Engine) Resolve(nid ir.Nid, c *coordinate.Coordinate) (coordinate.Latest, error) {
	chron, err := e.store.Get(nid)
	if err != nil {
		return coordinate.Latest{}, err
	}
	return coordinate.Resolve(chron, c), nil
}

// TaxonomyCoordinate returns the usual taxonomy view: the master path at
// latest time, active edges of premise, rooted at the metadata root.
func (e *Engine) TaxonomyCoordinate(premise ir.Premise) coordinate.TaxonomyCoordinate {
	return coordinate.TaxonomyCoordinate{
		Stamp:      coordinate.New(coordinate.WithPaths(e.Meta(ir.MetaMasterPath))),
		Premise:    premise,
		ActiveOnly: true,
		IsA:        e.Meta(ir.MetaIsA),
		Roots:      []ir.Nid{e.Meta(ir.MetaRoot)},
	}
}

// Taxonomy builds the taxonomy graph visible from tc.
func (e *Engine) Taxonomy(ctx context.Context, tc coordinate.TaxonomyCoordinate) (*taxonomy.Graph, error) {
	if !tc.IsA.IsSet() {
		tc.IsA = e.Meta(ir.MetaIsA)
	}
	return taxonomy.Build(ctx, e.records, tc, e.workers)
}

// TaxonomyEdgesFor returns every is-a edge visible from tc, ordered by
// parent then child concept sequence.
func (e *Engine) TaxonomyEdgesFor(ctx context.Context, tc coordinate.TaxonomyCoordinate) ([]taxonomy.Edge, error) {
	g, err := e.Taxonomy(ctx, tc)
	if err != nil {
		return nil, err
	}
	return g.Edges(), nil
}

// Save writes the engine state to a snapshot database.
func (e *Engine) Save(ctx context.Context, db *store.Store) error {
	stats, err := db.SaveStore(ctx, e.registry, e.store)
	if err != nil {
		return err
	}
	e.logger.Info("snapshot saved",
		"bindings", stats.Bindings,
		"stamps", stats.Stamps,
		"chronologies", stats.Chronologies)
	return nil
}

// Load merges a snapshot database into the engine.
func (e *Engine) Load(ctx context.Context, db *store.Store) error {
	if err := db.LoadStore(ctx, e.registry, e.store); err != nil {
		return err
	}
	for _, s := range e.interner.Stamps() {
		e.clock.Observe(s.Time)
	}
	e.logger.Info("snapshot loaded", "chronologies", e.store.Len(), "stamps", e.interner.Len())
	return nil
}
