package coordinate

import (
	"slices"

	"github.com/roach88/chronicle/internal/ir"
)

// Strategy resolves a contradiction: several paths each contribute a latest
// version and the versions differ. It returns the versions that remain
// visible; returning more than one is a valid, ambiguous outcome.
type Strategy interface {
	Resolve(candidates []ir.Version) []ir.Version
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(candidates []ir.Version) []ir.Version

// Resolve implements Strategy.
func (f StrategyFunc) Resolve(candidates []ir.Version) []ir.Version {
	return f(candidates)
}

// EditPathWins keeps the candidates on the editor's current edit paths. If
// none are on an edit path, every baseline candidate stays visible.
type EditPathWins struct {
	EditPaths []ir.Nid
}

// Resolve implements Strategy.
func (s EditPathWins) Resolve(candidates []ir.Version) []ir.Version {
	return keepOnPaths(candidates, s.EditPaths)
}

// ViewPathWins keeps the candidates on the viewer's designated view paths,
// falling back to every candidate if none match.
type ViewPathWins struct {
	ViewPaths []ir.Nid
}

// Resolve implements Strategy.
func (s ViewPathWins) Resolve(candidates []ir.Version) []ir.Version {
	return keepOnPaths(candidates, s.ViewPaths)
}

func keepOnPaths(candidates []ir.Version, paths []ir.Nid) []ir.Version {
	var kept []ir.Version
	for _, v := range candidates {
		if slices.Contains(paths, v.Stamp.Path) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return slices.Clone(candidates)
	}
	return kept
}
