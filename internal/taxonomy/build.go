package taxonomy

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/weaviate/sroar"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
)

// Build computes the taxonomy graph visible from tc.
//
// Concepts are split into contiguous chunks processed by at most workers
// goroutines. Each chunk folds its edges into a private bitmap of
// parent<<32|child sequence keys; the partial bitmaps are merged with Or.
// Or is associative, commutative and idempotent, so the result does not
// depend on the number of workers or on scheduling.
func Build(ctx context.Context, records *Records, tc coordinate.TaxonomyCoordinate, workers int) (*Graph, error) {
	if workers < 1 {
		workers = 1
	}
	concepts := records.Concepts()
	in := records.store.Interner()

	seqs := make([]int32, len(concepts))
	for i, nid := range concepts {
		seq, err := records.sequence(nid)
		if err != nil {
			return nil, fmt.Errorf("taxonomy build: concept %s: %w", nid, err)
		}
		seqs[i] = seq
	}

	chunk := (len(concepts) + workers - 1) / workers
	if chunk == 0 {
		chunk = 1
	}
	var partials []*sroar.Bitmap
	for start := 0; start < len(concepts); start += chunk {
		partials = append(partials, sroar.NewBitmap())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p := range partials {
		start := p * chunk
		end := min(start+chunk, len(concepts))
		partial := partials[p]
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					records.logger.Error("recovered from panic in taxonomy worker", "panic", rec, "stack", string(debug.Stack()))
					err = fmt.Errorf("taxonomy worker panic: %v", rec)
				}
			}()
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				rec, ok := records.Record(concepts[i])
				if !ok {
					continue
				}
				for _, parent := range rec.VisibleParents(in, tc) {
					partial.Set(edgeKey(parent, seqs[i]))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("taxonomy build: %w", err)
	}

	edges := sroar.NewBitmap()
	for _, p := range partials {
		edges.Or(p)
	}
	graph, err := newGraph(records, concepts, edges, tc.Roots)
	if err != nil {
		return nil, err
	}
	for _, o := range graph.orphans {
		records.logger.Warn("concept has no parents", "concept", o)
	}
	for _, c := range graph.Cycles() {
		records.logger.Warn(c.Message, "concepts", len(c.Path)-1)
	}
	records.logger.Debug("taxonomy built", "concepts", len(concepts), "edges", graph.EdgeCount(), "workers", workers, "premise", tc.Premise)
	return graph, nil
}

func edgeKey(parent, child int32) uint64 {
	return uint64(uint32(parent))<<32 | uint64(uint32(child))
}

func splitKey(k uint64) (parent, child int32) {
	return int32(uint32(k >> 32)), int32(uint32(k))
}

// Edge is one is-a edge: Child is-a Parent.
type Edge struct {
	Parent ir.Nid
	Child  ir.Nid
}

// Graph is an immutable taxonomy snapshot.
type Graph struct {
	edges    []Edge
	parents  map[ir.Nid][]ir.Nid
	children map[ir.Nid][]ir.Nid
	roots    []ir.Nid
	orphans  []ir.Nid
}

func newGraph(records *Records, concepts []ir.Nid, edges *sroar.Bitmap, roots []ir.Nid) (*Graph, error) {
	g := &Graph{
		parents:  make(map[ir.Nid][]ir.Nid),
		children: make(map[ir.Nid][]ir.Nid),
	}
	for _, k := range edges.ToArray() {
		ps, cs := splitKey(k)
		parent, err := records.registry.NidForConceptSequence(ps)
		if err != nil {
			return nil, fmt.Errorf("taxonomy build: parent sequence %d: %w", ps, err)
		}
		child, err := records.registry.NidForConceptSequence(cs)
		if err != nil {
			return nil, fmt.Errorf("taxonomy build: child sequence %d: %w", cs, err)
		}
		g.edges = append(g.edges, Edge{Parent: parent, Child: child})
		g.parents[child] = append(g.parents[child], parent)
		g.children[parent] = append(g.children[parent], child)
	}
	for _, c := range concepts {
		if len(g.parents[c]) > 0 {
			continue
		}
		if slices.Contains(roots, c) {
			g.roots = append(g.roots, c)
		} else {
			g.orphans = append(g.orphans, c)
		}
	}
	return g, nil
}

// Parents returns the direct parents of nid.
func (g *Graph) Parents(nid ir.Nid) []ir.Nid { return slices.Clone(g.parents[nid]) }

// Children returns the direct children of nid.
func (g *Graph) Children(nid ir.Nid) []ir.Nid { return slices.Clone(g.children[nid]) }

// Edges returns every edge ordered by parent sequence, then child
// sequence.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Roots returns the configured roots that have no parents.
func (g *Graph) Roots() []ir.Nid { return slices.Clone(g.roots) }

// Orphans returns every other concept with no parents.
func (g *Graph) Orphans() []ir.Nid { return slices.Clone(g.orphans) }

// Ancestors returns every transitive parent of nid, nearest first.
func (g *Graph) Ancestors(nid ir.Nid) []ir.Nid {
	var out []ir.Nid
	seen := map[ir.Nid]bool{nid: true}
	queue := []ir.Nid{nid}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.parents[cur] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}

// IsKindOf reports whether child is parent or a transitive descendant.
func (g *Graph) IsKindOf(child, parent ir.Nid) bool {
	return child == parent || slices.Contains(g.Ancestors(child), parent)
}
