package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/chronicle/internal/compiler"
	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/stream"
	"github.com/roach88/chronicle/internal/testutil"
)

// DefaultName names the coordinate and taxonomy a scenario gets for free.
const DefaultName = "master"

const defaultPermits = 2

var statuses = map[string]ir.Status{
	"":           ir.StatusActive,
	"active":     ir.StatusActive,
	"inactive":   ir.StatusInactive,
	"canceled":   ir.StatusCanceled,
	"primordial": ir.StatusPrimordial,
}

var premises = map[string]ir.Premise{
	"":         ir.PremiseStated,
	"stated":   ir.PremiseStated,
	"inferred": ir.PremiseInferred,
}

var semanticTypes = map[string]ir.SemanticType{
	"member":    ir.SemanticMember,
	"component": ir.SemanticComponentNid,
	"long":      ir.SemanticLong,
	"string":    ir.SemanticString,
}

// Harness executes one scenario against a fresh engine.
type Harness struct {
	fixture *testutil.Fixture
	engine  *engine.Engine
	config  *compiler.Config
}

// Run executes a scenario and returns the rendered trace and any
// expectation failures.
//
// Execution flow:
//  1. Build the chronologies with a deterministic fixture
//  2. Encode them to IBDF and import the stream into an engine
//  3. Save the engine to an in-memory snapshot and load a fresh engine from it
//  4. Compile the scenario coordinates
//  5. Run each query, render it to the trace and check its expectations
//
// An error is returned when the scenario cannot be executed at all;
// failed expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f, err := testutil.NewFixture()
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture: %w", err)
	}
	chrons, err := build(f, scenario.Chronologies)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	for _, c := range chrons {
		if err := w.Write(c); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.Name(c.Nid), err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}

	permits := scenario.Permits
	if permits <= 0 {
		permits = defaultPermits
	}
	newEngine := func() (*engine.Engine, error) {
		return engine.New(
			engine.WithLogger(logger),
			engine.WithClock(engine.NewClockAt(1)),
			engine.WithPermits(permits),
		)
	}

	src, err := newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer src.Close()

	result := NewResult()
	result.Records, err = src.Import(ctx, bytes.NewReader(buf.Bytes()),
		stream.WithPermits(permits),
		stream.WithTotalBytes(int64(buf.Len())))
	if err != nil {
		return nil, fmt.Errorf("failed to import scenario: %w", err)
	}

	db, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer db.Close()
	if err := src.Save(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	eng, err := newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()
	if err := eng.Load(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	h := &Harness{fixture: f, engine: eng}
	if h.config, err = h.compile(scenario.Name, scenario.Coordinates); err != nil {
		return nil, err
	}

	for i, q := range scenario.Queries {
		if err := h.runQuery(ctx, i, q, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// build turns chronology definitions into chronologies, assigning clock
// times to versions that leave them unset.
func build(f *testutil.Fixture, defs []ChronologyDef) ([]*ir.Chronology, error) {
	out := make([]*ir.Chronology, 0, len(defs))
	for i, d := range defs {
		stamps := make([]ir.Stamp, len(d.Versions))
		for j, v := range d.Versions {
			stamps[j] = stampOf(f, v)
		}

		var c *ir.Chronology
		switch {
		case d.Concept != "":
			c = f.Concept(d.Concept, stamps...)
		case d.IsA != nil:
			c = f.IsA(d.IsA.Child, d.IsA.Parent, premises[d.IsA.Premise], stamps...)
		default:
			st := semanticTypes[d.Type]
			versions := make([]ir.Version, len(d.Versions))
			for j, v := range d.Versions {
				p, err := payloadOf(f, st, v.Value)
				if err != nil {
					return nil, fmt.Errorf("chronologies[%d].versions[%d]: %w", i, j, err)
				}
				versions[j] = ir.Version{Stamp: stamps[j], Payload: p}
			}
			c = f.Semantic(d.Semantic, d.Assemblage, d.Referenced, st, versions...)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("chronologies[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func stampOf(f *testutil.Fixture, v VersionDef) ir.Stamp {
	s := f.Stamp(statuses[v.Status], v.Time)
	if v.Author != "" {
		s.Author = f.Nid(v.Author)
	}
	if v.Module != "" {
		s.Module = f.Nid(v.Module)
	}
	if v.Path != "" {
		s.Path = f.Nid(v.Path)
	}
	return s
}

func payloadOf(f *testutil.Fixture, st ir.SemanticType, value any) (ir.Payload, error) {
	switch st {
	case ir.SemanticMember:
		if value != nil {
			return nil, fmt.Errorf("member semantics take no value")
		}
		return ir.MemberPayload{}, nil
	case ir.SemanticString:
		if value == nil {
			return nil, fmt.Errorf("string value is required")
		}
		return ir.StringPayload{Value: fmt.Sprint(value)}, nil
	case ir.SemanticLong:
		switch n := value.(type) {
		case int:
			return ir.LongPayload{Value: int64(n)}, nil
		case int64:
			return ir.LongPayload{Value: n}, nil
		default:
			return nil, fmt.Errorf("long value must be an integer, got %T", value)
		}
	case ir.SemanticComponentNid:
		name, ok := value.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("component value must be a name")
		}
		return ir.ComponentNidPayload{Component: f.Nid(name)}, nil
	}
	return nil, fmt.Errorf("unsupported semantic type %s", st)
}

// compile compiles the scenario's CUE coordinates. Names resolve through
// the fixture registry, so a path or module used only in stamps is still
// addressable.
func (h *Harness) compile(name, src string) (*compiler.Config, error) {
	cfg := &compiler.Config{
		Coordinates: map[string]*coordinate.Coordinate{},
		Taxonomies:  map[string]coordinate.TaxonomyCoordinate{},
	}
	if strings.TrimSpace(src) != "" {
		env := compiler.Env{
			Resolve:       compiler.NameResolver(ir.Namespace, h.fixture.Registry().NidForUUID),
			ModuleParents: h.engine.Store().ModuleParents,
		}
		v := cuecontext.New().CompileString(src, cue.Filename(name+".cue"))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("failed to compile coordinates: %w", err)
		}
		compiled, errs := compiler.Compile(v, env, false)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to compile coordinates: %w", errors.Join(errs...))
		}
		cfg = compiled
	}

	master, ok := cfg.Coordinates[DefaultName]
	if !ok {
		master = coordinate.New(coordinate.WithPaths(h.engine.Meta(ir.MetaMasterPath)))
		cfg.Coordinates[DefaultName] = master
	}
	if _, ok := cfg.Taxonomies[DefaultName]; !ok {
		tc := h.engine.TaxonomyCoordinate(ir.PremiseStated)
		tc.Stamp = master
		cfg.Taxonomies[DefaultName] = tc
	}
	return cfg, nil
}

func (h *Harness) runQuery(ctx context.Context, index int, q Query, result *Result) error {
	if q.Resolve != "" {
		return h.runResolve(index, q, result)
	}
	return h.runTaxonomy(ctx, index, q, result)
}

func (h *Harness) runResolve(index int, q Query, result *Result) error {
	name := q.Coordinate
	if name == "" {
		name = DefaultName
	}
	c, ok := h.config.Coordinates[name]
	if !ok {
		return fmt.Errorf("queries[%d]: unknown coordinate %q", index, name)
	}
	label := name
	if q.Time > 0 {
		c = c.WithTime(q.Time)
		label = fmt.Sprintf("%s t=%d", name, q.Time)
	}

	nid := h.fixture.Nid(q.Resolve)
	latest, err := h.engine.Resolve(nid, c)
	if err != nil {
		return fmt.Errorf("queries[%d]: resolve %q: %w", index, q.Resolve, err)
	}

	versions := slices.Clone(latest.Versions())
	slices.SortFunc(versions, func(a, b ir.Version) int { return ir.CompareStamps(a.Stamp, b.Stamp) })
	state := stateOf(latest)

	result.AddTrace(fmt.Sprintf("resolve %q @ %s: %s", q.Resolve, label, state))
	values := make([]string, len(versions))
	for i, v := range versions {
		values[i] = h.valueOf(v.Payload)
		result.AddTrace("  " + h.renderVersion(v))
	}

	if q.Expect != nil {
		checkResolve(fmt.Sprintf("queries[%d] resolve %q", index, q.Resolve), q.Expect, state, values, result)
	}
	return nil
}

func stateOf(l coordinate.Latest) string {
	switch {
	case l.IsAbsent():
		return StateAbsent
	case l.IsContradicted():
		return StateContradicted
	default:
		return StatePresent
	}
}

func (h *Harness) runTaxonomy(ctx context.Context, index int, q Query, result *Result) error {
	tc, ok := h.config.Taxonomies[q.Taxonomy]
	if !ok {
		return fmt.Errorf("queries[%d]: unknown taxonomy %q", index, q.Taxonomy)
	}
	label := q.Taxonomy
	if q.Time > 0 {
		tc.Stamp = tc.Stamp.WithTime(q.Time)
		label = fmt.Sprintf("%s t=%d", q.Taxonomy, q.Time)
	}
	g, err := h.engine.Taxonomy(ctx, tc)
	if err != nil {
		return fmt.Errorf("queries[%d]: taxonomy %q: %w", index, q.Taxonomy, err)
	}

	edges := make([]string, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, h.fixture.Name(e.Child)+" -> "+h.fixture.Name(e.Parent))
	}
	slices.Sort(edges)

	var orphans []string
	for _, nid := range g.Orphans() {
		if name := h.fixture.Name(nid); !isMetadata(name) {
			orphans = append(orphans, name)
		}
	}
	slices.Sort(orphans)

	cycles := g.Cycles()
	result.AddTrace(fmt.Sprintf("taxonomy %s (%s): %d edge(s), %d cycle(s)", label, tc.Premise, len(edges), len(cycles)))
	for _, e := range edges {
		result.AddTrace("  " + e)
	}
	if len(orphans) > 0 {
		result.AddTrace("  orphans: " + strings.Join(orphans, ", "))
	}
	for _, c := range cycles {
		names := make([]string, len(c.Path))
		for i, nid := range c.Path {
			names[i] = h.fixture.Name(nid)
		}
		result.AddTrace("  cycle: " + strings.Join(names, " -> "))
	}

	if q.Expect != nil {
		checkTaxonomy(fmt.Sprintf("queries[%d] taxonomy %s", index, label), q.Expect, edges, orphans, len(cycles), result)
	}
	return nil
}

func isMetadata(name string) bool {
	for _, m := range ir.Metadata {
		if m.Name == name {
			return true
		}
	}
	return false
}
