// Package identity maps stable external UUIDs to dense internal nids.
//
// The uuid->nid map is split into shards selected by a murmur3 hash of the
// UUID bytes. A call that touches several UUIDs locks their shards in
// ascending shard order, so lookup and first-seen insertion are atomic for
// the whole set without a registry-wide lock. Concurrent first use of the
// same UUID always converges on one nid.
package identity

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/roach88/chronicle/internal/ir"
)

const shardCount = 64

// ConflictError reports a UUID set that spans two different nids, or a
// UUID that is already bound to a nid other than the requested one.
type ConflictError struct {
	UUID     uuid.UUID
	Existing ir.Nid
	Wanted   ir.Nid
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("uuid %s already bound to nid %d, cannot bind to %d", e.UUID, e.Existing, e.Wanted)
}

type uuidShard struct {
	mu sync.Mutex
	m  map[uuid.UUID]ir.Nid
}

type nidEntry struct {
	mu    sync.RWMutex
	uuids []uuid.UUID // primary first
}

// Registry is the bidirectional UUID <-> nid map plus the concept sequence
// table. Safe for concurrent use.
type Registry struct {
	shards [shardCount]uuidShard

	// allocated counts nids handed out; nid = NidBase + allocated.
	allocated atomic.Int32

	byNid sync.Map // ir.Nid -> *nidEntry

	conceptMu   sync.RWMutex
	conceptSeqs map[ir.Nid]int32
	conceptNids []ir.Nid // index = concept sequence
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{conceptSeqs: make(map[ir.Nid]int32)}
	for i := range r.shards {
		r.shards[i].m = make(map[uuid.UUID]ir.Nid)
	}
	return r
}

func shardFor(u uuid.UUID) int {
	return int(murmur3.Sum32(u[:]) % shardCount)
}

// lockShards locks the shards of all uuids in ascending shard order and
// returns the matching unlock function.
func (r *Registry) lockShards(uuids []uuid.UUID) func() {
	idx := make([]int, 0, len(uuids))
	for _, u := range uuids {
		idx = append(idx, shardFor(u))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		r.shards[i].mu.Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			r.shards[idx[j]].mu.Unlock()
		}
	}
}

// NidFor returns the nid for a UUID set, creating one on first sight.
//
// If any UUID in the set is already known, its nid is returned and the
// unknown UUIDs become aliases. If the set spans two nids a ConflictError
// is returned.
func (r *Registry) NidFor(uuids ...uuid.UUID) (ir.Nid, error) {
	uuids = dedupe(uuids)
	if len(uuids) == 0 {
		return 0, &ir.ValidationError{Field: "uuids", Message: "at least one non-nil UUID is required"}
	}

	unlock := r.lockShards(uuids)
	defer unlock()

	nid, err := r.existingNidLocked(uuids)
	if err != nil {
		return 0, err
	}
	if !nid.IsSet() {
		nid = ir.Nid(ir.NidBase + r.allocated.Add(1))
	}
	r.bindLocked(nid, uuids)
	return nid, nil
}

// Bind registers externally numbered nids, e.g. from an imported stream.
// All uuids must be unknown or already bound to nid. The allocator is
// advanced so later NidFor calls never reuse nid.
func (r *Registry) Bind(nid ir.Nid, uuids ...uuid.UUID) error {
	if nid >= 0 || nid == ir.NidBase {
		return &ir.ValidationError{Field: "nid", Message: fmt.Sprintf("nid %d outside allocatable range", nid)}
	}
	uuids = dedupe(uuids)
	if len(uuids) == 0 {
		return &ir.ValidationError{Field: "uuids", Message: "at least one non-nil UUID is required"}
	}

	unlock := r.lockShards(uuids)
	defer unlock()

	for _, u := range uuids {
		if existing, ok := r.shards[shardFor(u)].m[u]; ok && existing != nid {
			return &ConflictError{UUID: u, Existing: existing, Wanted: nid}
		}
	}
	r.bindLocked(nid, uuids)

	n := int32(nid) - ir.NidBase
	for {
		cur := r.allocated.Load()
		if cur >= n || r.allocated.CompareAndSwap(cur, n) {
			break
		}
	}
	return nil
}

func (r *Registry) existingNidLocked(uuids []uuid.UUID) (ir.Nid, error) {
	var found ir.Nid
	for _, u := range uuids {
		nid, ok := r.shards[shardFor(u)].m[u]
		if !ok {
			continue
		}
		if found.IsSet() && nid != found {
			return 0, &ConflictError{UUID: u, Existing: nid, Wanted: found}
		}
		found = nid
	}
	return found, nil
}

// bindLocked records uuid->nid for unknown uuids and appends them to the
// nid's UUID list. Caller holds the shard locks of every uuid.
func (r *Registry) bindLocked(nid ir.Nid, uuids []uuid.UUID) {
	v, _ := r.byNid.LoadOrStore(nid, &nidEntry{})
	entry := v.(*nidEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, u := range uuids {
		shard := &r.shards[shardFor(u)]
		if _, ok := shard.m[u]; ok {
			continue
		}
		shard.m[u] = nid
		entry.uuids = append(entry.uuids, u)
	}
}

// NidForUUID looks up a single UUID without allocating.
func (r *Registry) NidForUUID(u uuid.UUID) (ir.Nid, error) {
	shard := &r.shards[shardFor(u)]
	shard.mu.Lock()
	nid, ok := shard.m[u]
	shard.mu.Unlock()
	if !ok {
		return 0, &ir.NotFoundError{Kind: "uuid", Key: u.String()}
	}
	return nid, nil
}

// UUIDsFor returns the UUIDs of a nid, primary first. The slice is a copy.
func (r *Registry) UUIDsFor(nid ir.Nid) ([]uuid.UUID, error) {
	v, ok := r.byNid.Load(nid)
	if !ok {
		return nil, &ir.NotFoundError{Kind: "nid", Key: nid.String()}
	}
	entry := v.(*nidEntry)
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	if len(entry.uuids) == 0 {
		return nil, &ir.NotFoundError{Kind: "nid", Key: nid.String()}
	}
	return slices.Clone(entry.uuids), nil
}

// PrimaryUUID returns the first UUID ever bound to nid.
func (r *Registry) PrimaryUUID(nid ir.Nid) (uuid.UUID, error) {
	uuids, err := r.UUIDsFor(nid)
	if err != nil {
		return uuid.Nil, err
	}
	return uuids[0], nil
}

// Len returns the number of nids bound to at least one UUID.
func (r *Registry) Len() int {
	n := 0
	r.byNid.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Binding is one nid with its UUIDs, primary first.
type Binding struct {
	Nid   ir.Nid
	UUIDs []uuid.UUID
}

// Bindings returns every nid binding ordered by nid.
func (r *Registry) Bindings() []Binding {
	var out []Binding
	r.byNid.Range(func(k, v any) bool {
		entry := v.(*nidEntry)
		entry.mu.RLock()
		out = append(out, Binding{Nid: k.(ir.Nid), UUIDs: slices.Clone(entry.uuids)})
		entry.mu.RUnlock()
		return true
	})
	slices.SortFunc(out, func(a, b Binding) int { return int(a.Nid) - int(b.Nid) })
	return out
}

// MarkConcept flags nid as a concept and returns its concept sequence.
// Sequences are assigned 0, 1, 2, ... in marking order; marking twice
// returns the original sequence.
func (r *Registry) MarkConcept(nid ir.Nid) (int32, error) {
	if _, ok := r.byNid.Load(nid); !ok {
		return 0, &ir.NotFoundError{Kind: "nid", Key: nid.String()}
	}

	r.conceptMu.RLock()
	seq, ok := r.conceptSeqs[nid]
	r.conceptMu.RUnlock()
	if ok {
		return seq, nil
	}

	r.conceptMu.Lock()
	defer r.conceptMu.Unlock()
	if seq, ok := r.conceptSeqs[nid]; ok {
		return seq, nil
	}
	seq = int32(len(r.conceptNids))
	r.conceptNids = append(r.conceptNids, nid)
	r.conceptSeqs[nid] = seq
	return seq, nil
}

// IsConceptNid reports whether nid has been marked as a concept.
func (r *Registry) IsConceptNid(nid ir.Nid) bool {
	r.conceptMu.RLock()
	defer r.conceptMu.RUnlock()
	_, ok := r.conceptSeqs[nid]
	return ok
}

// ConceptSequence returns the concept sequence of nid.
func (r *Registry) ConceptSequence(nid ir.Nid) (int32, error) {
	r.conceptMu.RLock()
	defer r.conceptMu.RUnlock()
	seq, ok := r.conceptSeqs[nid]
	if !ok {
		return 0, &ir.NotFoundError{Kind: "concept", Key: nid.String()}
	}
	return seq, nil
}

// NidForConceptSequence is the inverse of ConceptSequence.
func (r *Registry) NidForConceptSequence(seq int32) (ir.Nid, error) {
	r.conceptMu.RLock()
	defer r.conceptMu.RUnlock()
	if seq < 0 || int(seq) >= len(r.conceptNids) {
		return 0, &ir.NotFoundError{Kind: "concept sequence", Key: fmt.Sprintf("%d", seq)}
	}
	return r.conceptNids[seq], nil
}

// ConceptCount returns the number of marked concepts. Valid concept
// sequences are [0, ConceptCount()).
func (r *Registry) ConceptCount() int {
	r.conceptMu.RLock()
	defer r.conceptMu.RUnlock()
	return len(r.conceptNids)
}

func dedupe(uuids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(uuids))
	for _, u := range uuids {
		if u == uuid.Nil || slices.Contains(out, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}
