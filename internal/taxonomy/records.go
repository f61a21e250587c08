package taxonomy

import (
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/chronicle/internal/chronology"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// Records derives taxonomy records from the chronology store and caches
// them. Store change events invalidate the affected concept's record.
type Records struct {
	store    *chronology.Store
	registry *identity.Registry
	isA      ir.Nid
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[ir.Nid]*Record
	gens  map[ir.Nid]uint64
	epoch uint64
	// pending maps a non-concept is-a destination to the concepts whose
	// records skipped it.
	pending map[ir.Nid]map[ir.Nid]struct{}
	events  <-chan chronology.ChangeEvent
	cancel  func()
}

// generation identifies the cache state of one concept. A record computed
// under one generation is only cached if the generation is still current.
type generation struct {
	epoch, concept uint64
}

// Option configures Records.
type Option func(*Records)

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Records) { r.logger = l }
}

// NewRecords watches store for changes. isA is the relationship type nid
// that marks taxonomy edges. Call Close to stop watching.
func NewRecords(store *chronology.Store, registry *identity.Registry, isA ir.Nid, opts ...Option) *Records {
	r := &Records{
		store:    store,
		registry: registry,
		isA:      isA,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:    make(map[ir.Nid]*Record),
		gens:     make(map[ir.Nid]uint64),
		pending:  make(map[ir.Nid]map[ir.Nid]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events, r.cancel = store.Subscribe(1024)
	return r
}

// Close stops watching the store.
func (r *Records) Close() {
	r.cancel()
}

// Concepts returns every concept nid in the store.
func (r *Records) Concepts() []ir.Nid {
	return r.store.ConceptNids()
}

// invalidateLocked drains pending change events. Callers hold r.mu.
func (r *Records) invalidateLocked() {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			if ev.Resync {
				clear(r.cache)
				r.epoch++
			}
			k := ev.Nid
			if ev.Kind == ir.KindSemantic {
				k = ev.ReferencedComponent
			}
			r.dropLocked(k)
			if ev.Kind == ir.KindConcept {
				for c := range r.pending[ev.Nid] {
					r.dropLocked(c)
				}
				delete(r.pending, ev.Nid)
			}
		default:
			return
		}
	}
}

// Record returns the cached record of concept, computing it on a miss. It
// reports false when the store has no such concept.
func (r *Records) Record(concept ir.Nid) (*Record, bool) {
	r.mu.Lock()
	r.invalidateLocked()
	rec, ok := r.cache[concept]
	gen := r.generationLocked(concept)
	r.mu.Unlock()
	if ok {
		return rec, true
	}

	rec, ok = r.Compute(concept)
	if !ok {
		return nil, false
	}
	r.storeIfCurrent(concept, rec, gen)
	return rec, true
}

func (r *Records) dropLocked(concept ir.Nid) {
	delete(r.cache, concept)
	r.gens[concept]++
}

func (r *Records) generationLocked(concept ir.Nid) generation {
	return generation{epoch: r.epoch, concept: r.gens[concept]}
}

// storeIfCurrent caches rec unless concept changed after gen was read. A
// stale record is still returned to its caller but never cached.
func (r *Records) storeIfCurrent(concept ir.Nid, rec *Record, gen generation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
	if r.generationLocked(concept) != gen {
		return false
	}
	r.cache[concept] = rec
	return true
}

// Compute builds the record of concept from the store without caching.
//
// Versions of each relationship semantic are replayed in stamp order. A
// version adds an entry for its destination (active when the version is
// active and typed is-a), and retires every destination the semantic
// pointed to before with an inactive entry on the same stamp.
func (r *Records) Compute(concept ir.Nid) (*Record, bool) {
	c, err := r.store.Get(concept)
	if err != nil || !c.IsConcept() {
		return nil, false
	}
	rec := newRecord(concept)
	in := r.store.Interner()

	for _, nid := range r.store.SemanticNidsFor(concept) {
		sem, err := r.store.Get(nid)
		if err != nil || sem.SemanticType != ir.SemanticRelationship {
			continue
		}

		type target struct {
			seq     int32
			premise uint64
		}
		var seen []target
		for _, v := range sem.SortedVersions() {
			rel, ok := v.Payload.(ir.RelationshipPayload)
			if !ok {
				continue
			}
			tok, err := in.Intern(v.Stamp)
			if err != nil || uint64(tok) > tokenMask {
				r.logger.Warn("skipping relationship version", "semantic", nid, "token", tok, "error", err)
				continue
			}

			var current *target
			if rel.Type == r.isA {
				seq, err := r.sequence(rel.Destination)
				if err != nil {
					r.logger.Debug("is-a destination is not a known concept", "concept", concept, "destination", rel.Destination)
					r.await(rel.Destination, concept)
				} else {
					current = &target{seq: seq, premise: premiseFlag(rel.Premise)}
				}
			}

			for _, prev := range seen {
				if current == nil || prev != *current {
					rec.add(prev.seq, tok, prev.premise)
				}
			}
			if current == nil {
				continue
			}
			flags := current.premise
			if v.Stamp.Status.IsActive() {
				flags |= FlagActive
			}
			rec.add(current.seq, tok, flags)

			known := false
			for _, prev := range seen {
				if prev == *current {
					known = true
					break
				}
			}
			if !known {
				seen = append(seen, *current)
			}
		}
	}
	return rec, true
}

// await invalidates concept once dest is stored as a concept.
func (r *Records) await(dest, concept ir.Nid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[dest] == nil {
		r.pending[dest] = make(map[ir.Nid]struct{})
	}
	r.pending[dest][concept] = struct{}{}
	// The concept may have landed after sequence looked.
	if r.store.IsConcept(dest) {
		r.dropLocked(concept)
	}
}

// sequence returns the concept sequence of nid, assigning one only when the
// store holds a concept chronology for it.
func (r *Records) sequence(nid ir.Nid) (int32, error) {
	if seq, err := r.registry.ConceptSequence(nid); err == nil {
		return seq, nil
	}
	if !r.store.IsConcept(nid) {
		return 0, &ir.NotFoundError{Kind: "concept", Key: nid.String()}
	}
	return r.registry.MarkConcept(nid)
}
