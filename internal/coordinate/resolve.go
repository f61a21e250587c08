package coordinate

import (
	"github.com/roach88/chronicle/internal/ir"
)

// Latest is the outcome of resolving a chronology against a coordinate:
// absent, a single version, or several contradicting versions.
type Latest struct {
	versions []ir.Version
}

// Value returns the first visible version in path precedence order.
func (l Latest) Value() (ir.Version, bool) {
	if len(l.versions) == 0 {
		return ir.Version{}, false
	}
	return l.versions[0], true
}

// IsAbsent reports that no version is visible.
func (l Latest) IsAbsent() bool { return len(l.versions) == 0 }

// IsContradicted reports that more than one version remains visible.
func (l Latest) IsContradicted() bool { return len(l.versions) > 1 }

// Versions returns every visible version.
func (l Latest) Versions() []ir.Version { return l.versions }

// Resolve returns the latest visible version(s) of chron under c.
//
// For each admitted path the greatest admitted stamp is that path's
// candidate. Candidates with equal status and content collapse to the one
// with the greatest stamp; otherwise the coordinate's strategy decides.
// The status filter runs last, so an inactive latest version hides the
// chronology instead of exposing an older active one.
func Resolve(chron *ir.Chronology, c *Coordinate) Latest {
	if chron == nil || c == nil {
		return Latest{}
	}
	idx := resolveIndices(chron.Versions, func(v ir.Version) ir.Stamp { return v.Stamp }, c)
	out := make([]ir.Version, 0, len(idx))
	for _, i := range idx {
		out = append(out, chron.Versions[i])
	}
	return Latest{versions: out}
}

// ResolveStamps resolves bare stamps and returns the indices of the
// visible ones. Stamps carry no content, so candidates differ only by
// status.
func ResolveStamps(stamps []ir.Stamp, c *Coordinate) []int {
	if c == nil {
		return nil
	}
	return resolveIndices(stamps, func(s ir.Stamp) ir.Stamp { return s }, c)
}

func resolveIndices[T any](items []T, stampOf func(T) ir.Stamp, c *Coordinate) []int {
	best := make(map[ir.Nid]int, len(c.paths))
	for i, item := range items {
		s := stampOf(item)
		if !c.Admits(s) {
			continue
		}
		if j, ok := best[s.Path]; !ok || ir.CompareStamps(s, stampOf(items[j])) > 0 {
			best[s.Path] = i
		}
	}
	if len(best) == 0 {
		return nil
	}

	candidates := make([]int, 0, len(best))
	for _, r := range c.paths {
		if i, ok := best[r.Path]; ok {
			candidates = append(candidates, i)
			delete(best, r.Path)
		}
	}

	visible := candidates
	if len(candidates) > 1 {
		if allEquivalent(items, stampOf, candidates) {
			top := candidates[0]
			for _, i := range candidates[1:] {
				if ir.CompareStamps(stampOf(items[i]), stampOf(items[top])) > 0 {
					top = i
				}
			}
			visible = []int{top}
		} else {
			visible = applyStrategy(items, stampOf, candidates, c.strategy)
		}
	}

	if !c.activeOnly {
		return visible
	}
	kept := visible[:0:0]
	for _, i := range visible {
		if stampOf(items[i]).Status.IsActive() {
			kept = append(kept, i)
		}
	}
	return kept
}

func allEquivalent[T any](items []T, stampOf func(T) ir.Stamp, idx []int) bool {
	first := items[idx[0]]
	for _, i := range idx[1:] {
		if stampOf(items[i]).Status != stampOf(first).Status {
			return false
		}
		if !samePayload(any(items[i]), any(first)) {
			return false
		}
	}
	return true
}

func samePayload(a, b any) bool {
	va, okA := a.(ir.Version)
	vb, okB := b.(ir.Version)
	if !okA || !okB {
		return true
	}
	return ir.PayloadsEqual(va.Payload, vb.Payload)
}

// applyStrategy hands the candidates to s as versions and maps the
// survivors back to indices by stamp, which is unique per chronology.
func applyStrategy[T any](items []T, stampOf func(T) ir.Stamp, idx []int, s Strategy) []int {
	if s == nil {
		return idx
	}
	versions := make([]ir.Version, len(idx))
	for k, i := range idx {
		if v, ok := any(items[i]).(ir.Version); ok {
			versions[k] = v
		} else {
			versions[k] = ir.Version{Stamp: stampOf(items[i])}
		}
	}
	survivors := s.Resolve(versions)

	var out []int
	for _, i := range idx {
		st := stampOf(items[i])
		for _, v := range survivors {
			if v.Stamp == st {
				out = append(out, i)
				break
			}
		}
	}
	return out
}
