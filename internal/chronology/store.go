// Package chronology holds every chronology in memory, keyed by nid.
//
// Each nid owns an entry created with insert-if-absent; appends to one
// chronology serialize on that entry's mutex and different chronologies
// never share a lock. Secondary indexes (semantics by referenced component
// and by assemblage) are sroar bitmaps of nids.
package chronology

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/weaviate/sroar"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stamp"
)

type entry struct {
	mu     sync.Mutex
	chron  *ir.Chronology
	tokens map[ir.StampToken]struct{}
}

// Store is safe for concurrent use.
type Store struct {
	interner *stamp.Interner
	logger   *slog.Logger

	entries sync.Map // ir.Nid -> *entry

	indexMu      sync.RWMutex
	concepts     *sroar.Bitmap
	byReferenced map[ir.Nid]*sroar.Bitmap
	byAssemblage map[ir.Nid]*sroar.Bitmap

	subMu  sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store that interns stamps through in.
func NewStore(in *stamp.Interner, opts ...Option) *Store {
	s := &Store{
		interner:     in,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		concepts:     sroar.NewBitmap(),
		byReferenced: make(map[ir.Nid]*sroar.Bitmap),
		byAssemblage: make(map[ir.Nid]*sroar.Bitmap),
		subs:         make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interner returns the stamp interner backing the store.
func (s *Store) Interner() *stamp.Interner { return s.interner }

func key(n ir.Nid) uint64   { return uint64(uint32(n)) }
func nidOf(k uint64) ir.Nid { return ir.Nid(int32(uint32(k))) }

// Merge appends chron's versions to the stored chronology with the same
// nid, creating it if absent. Versions whose stamp already appears in the
// stored chronology are skipped, so re-importing a file is a no-op. It
// returns the number of versions added.
func (s *Store) Merge(chron *ir.Chronology) (int, error) {
	if err := chron.Validate(); err != nil {
		return 0, fmt.Errorf("merge nid %s: %w", chron.Nid, err)
	}

	fresh := &entry{
		chron:  chron.WithVersions(nil),
		tokens: make(map[ir.StampToken]struct{}),
	}
	v, loaded := s.entries.LoadOrStore(chron.Nid, fresh)
	e := v.(*entry)

	e.mu.Lock()
	if loaded {
		if err := sameIdentity(e.chron, chron); err != nil {
			e.mu.Unlock()
			return 0, err
		}
		for _, alias := range chron.UUIDs() {
			if alias != e.chron.PrimaryUUID && !slices.Contains(e.chron.AliasUUIDs, alias) {
				e.chron.AliasUUIDs = append(e.chron.AliasUUIDs, alias)
			}
		}
	}
	added := 0
	for _, ver := range chron.Versions {
		tok, err := s.interner.Intern(ver.Stamp)
		if err != nil {
			e.mu.Unlock()
			return added, fmt.Errorf("merge nid %s: %w", chron.Nid, err)
		}
		if _, dup := e.tokens[tok]; dup {
			continue
		}
		e.tokens[tok] = struct{}{}
		e.chron.Versions = append(e.chron.Versions, ver)
		added++
	}
	e.mu.Unlock()

	if !loaded {
		s.index(chron)
	}
	if added > 0 || !loaded {
		s.publish(ChangeEvent{
			Nid:                 chron.Nid,
			Kind:                chron.Kind,
			Assemblage:          chron.Assemblage,
			ReferencedComponent: chron.ReferencedComponent,
			Added:               added,
		})
	}
	s.logger.Debug("merged chronology", "nid", chron.Nid, "kind", chron.Kind, "added", added)
	return added, nil
}

func sameIdentity(have, got *ir.Chronology) error {
	switch {
	case have.Kind != got.Kind:
		return &ir.ValidationError{Field: "kind", Message: fmt.Sprintf("nid %s is a %s, not a %s", got.Nid, have.Kind, got.Kind)}
	case have.Assemblage != got.Assemblage:
		return &ir.ValidationError{Field: "assemblage", Message: fmt.Sprintf("nid %s: assemblage %s != %s", got.Nid, have.Assemblage, got.Assemblage)}
	case have.ReferencedComponent != got.ReferencedComponent:
		return &ir.ValidationError{Field: "referenced_component", Message: fmt.Sprintf("nid %s: referenced component %s != %s", got.Nid, have.ReferencedComponent, got.ReferencedComponent)}
	case have.SemanticType != got.SemanticType:
		return &ir.ValidationError{Field: "semantic_type", Message: fmt.Sprintf("nid %s: semantic type %s != %s", got.Nid, have.SemanticType, got.SemanticType)}
	}
	return nil
}

func (s *Store) index(chron *ir.Chronology) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if chron.IsConcept() {
		s.concepts.Set(key(chron.Nid))
		return
	}
	addTo(s.byReferenced, chron.ReferencedComponent, chron.Nid)
	addTo(s.byAssemblage, chron.Assemblage, chron.Nid)
}

func addTo(m map[ir.Nid]*sroar.Bitmap, k, nid ir.Nid) {
	bm, ok := m[k]
	if !ok {
		bm = sroar.NewBitmap()
		m[k] = bm
	}
	bm.Set(key(nid))
}

// Get returns a copy of the chronology for nid.
func (s *Store) Get(nid ir.Nid) (*ir.Chronology, error) {
	v, ok := s.entries.Load(nid)
	if !ok {
		return nil, &ir.NotFoundError{Kind: "chronology", Key: nid.String()}
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chron.ShallowCopy(), nil
}

// Has reports whether a chronology exists for nid.
func (s *Store) Has(nid ir.Nid) bool {
	_, ok := s.entries.Load(nid)
	return ok
}

// IsConcept reports whether nid names a stored concept chronology.
func (s *Store) IsConcept(nid ir.Nid) bool {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.concepts.Contains(key(nid))
}

func nids(bm *sroar.Bitmap) []ir.Nid {
	if bm == nil {
		return nil
	}
	keys := bm.ToArray()
	out := make([]ir.Nid, len(keys))
	for i, k := range keys {
		out[i] = nidOf(k)
	}
	return out
}

// ConceptNids returns every concept nid in ascending order.
func (s *Store) ConceptNids() []ir.Nid {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return nids(s.concepts)
}

// SemanticNidsFor returns the semantics whose referenced component is nid.
func (s *Store) SemanticNidsFor(referenced ir.Nid) []ir.Nid {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return nids(s.byReferenced[referenced])
}

// SemanticNidsOfAssemblage returns the members of an assemblage.
func (s *Store) SemanticNidsOfAssemblage(asm ir.Nid) []ir.Nid {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return nids(s.byAssemblage[asm])
}

// Len returns the number of stored chronologies.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Nids returns every stored nid in ascending order.
func (s *Store) Nids() []ir.Nid {
	var out []ir.Nid
	s.entries.Range(func(k, _ any) bool {
		out = append(out, k.(ir.Nid))
		return true
	})
	slices.Sort(out)
	return out
}

// ForEach calls fn with a copy of every chronology in nid order until fn
// returns false.
func (s *Store) ForEach(fn func(*ir.Chronology) bool) {
	for _, nid := range s.Nids() {
		c, err := s.Get(nid)
		if err != nil {
			continue
		}
		if !fn(c) {
			return
		}
	}
}

// ModuleParents derives the version-specific-module -> parent-module map
// from the component-nid semantics of asm: the referenced component is the
// module and the latest payload names its parent.
func (s *Store) ModuleParents(asm ir.Nid) coordinate.ModuleParents {
	out := coordinate.ModuleParents{}
	for _, nid := range s.SemanticNidsOfAssemblage(asm) {
		c, err := s.Get(nid)
		if err != nil || len(c.Versions) == 0 {
			continue
		}
		versions := c.SortedVersions()
		latest := versions[len(versions)-1]
		if !latest.Stamp.Status.IsActive() {
			continue
		}
		if p, ok := latest.Payload.(ir.ComponentNidPayload); ok {
			out[c.ReferencedComponent] = p.Component
		}
	}
	return out
}
