// Package taxonomy computes the is-a graph visible from a taxonomy
// coordinate.
//
// Each concept has a Record listing every is-a destination it ever had,
// as bit-packed (destination, stamp, flags) entries. Build resolves those
// entries in parallel and merges per-worker edge bitmaps into one graph.
package taxonomy

import (
	"slices"

	"github.com/weaviate/sroar"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stamp"
)

// Entry flags.
const (
	FlagStated   uint64 = 1 << 0
	FlagInferred uint64 = 1 << 1
	FlagActive   uint64 = 1 << 2

	flagBits  = 4
	flagMask  = 1<<flagBits - 1
	tokenMask = 1<<(32-flagBits) - 1
)

// Pack builds an entry: dest<<32 | token<<4 | flags. Tokens above 2^28-1
// do not fit and are rejected by the caller.
func Pack(destSeq int32, tok ir.StampToken, flags uint64) uint64 {
	return uint64(uint32(destSeq))<<32 | (uint64(tok)&tokenMask)<<flagBits | flags&flagMask
}

// Unpack splits an entry.
func Unpack(e uint64) (destSeq int32, tok ir.StampToken, flags uint64) {
	return int32(uint32(e >> 32)), ir.StampToken((e >> flagBits) & tokenMask), e & flagMask
}

func premiseFlag(p ir.Premise) uint64 {
	if p == ir.PremiseInferred {
		return FlagInferred
	}
	return FlagStated
}

// Record is the taxonomy record of one concept.
type Record struct {
	Concept ir.Nid

	// Destinations holds the concept sequence of every destination that
	// appears in Entries.
	Destinations *sroar.Bitmap
	Entries      []uint64
}

func newRecord(concept ir.Nid) *Record {
	return &Record{Concept: concept, Destinations: sroar.NewBitmap()}
}

func (r *Record) add(destSeq int32, tok ir.StampToken, flags uint64) {
	e := Pack(destSeq, tok, flags)
	if !slices.Contains(r.Entries, e) {
		r.Entries = append(r.Entries, e)
	}
	r.Destinations.Set(uint64(uint32(destSeq)))
}

// VisibleParents returns the destination sequences visible under tc, in
// ascending order. Entries of the other premise are ignored. For each
// destination the entries' stamps are resolved against tc.Stamp; an entry
// without FlagActive counts as an inactive stamp.
func (r *Record) VisibleParents(in *stamp.Interner, tc coordinate.TaxonomyCoordinate) []int32 {
	if r == nil || tc.Stamp == nil {
		return nil
	}
	want := premiseFlag(tc.Premise)
	c := tc.Stamp.WithActiveOnly(false)

	var out []int32
	for _, d := range r.Destinations.ToArray() {
		dest := int32(uint32(d))
		var stamps []ir.Stamp
		var active []bool
		for _, e := range r.Entries {
			ds, tok, flags := Unpack(e)
			if ds != dest || flags&want == 0 {
				continue
			}
			s, err := in.Stamp(tok)
			if err != nil {
				continue
			}
			isActive := flags&FlagActive != 0
			if !isActive && s.Status == ir.StatusActive {
				s.Status = ir.StatusInactive
			}
			stamps = append(stamps, s)
			active = append(active, isActive)
		}
		visible := coordinate.ResolveStamps(stamps, c)
		if len(visible) == 0 {
			continue
		}
		if !tc.ActiveOnly {
			out = append(out, dest)
			continue
		}
		for _, i := range visible {
			if active[i] {
				out = append(out, dest)
				break
			}
		}
	}
	return out
}
