// Package coordinate decides which versions of a chronology are visible
// from a point of view: a set of paths (with per-path module restrictions),
// a point in time, a status filter, and a contradiction strategy.
//
// A Coordinate is an immutable value. Every With* method returns a new
// coordinate and leaves the receiver untouched, so one coordinate can be
// shared by any number of concurrent queries.
package coordinate

import (
	"slices"

	"github.com/roach88/chronicle/internal/ir"
)

// PathRule admits versions on Path whose module is in Modules. An empty
// Modules list admits every module.
type PathRule struct {
	Path    ir.Nid
	Modules []ir.Nid
}

// ModuleParents maps a version-specific module to its unversioned parent
// module. Modules without an entry are their own parent.
type ModuleParents map[ir.Nid]ir.Nid

// Parent returns the unversioned parent of m.
func (mp ModuleParents) Parent(m ir.Nid) ir.Nid {
	if p, ok := mp[m]; ok {
		return p
	}
	return m
}

// Siblings reports whether a and b are the same module or share a parent.
func (mp ModuleParents) Siblings(a, b ir.Nid) bool {
	return a == b || mp.Parent(a) == mp.Parent(b)
}

// Coordinate is a reusable, immutable stamp filter.
type Coordinate struct {
	paths         []PathRule
	time          int64
	activeOnly    bool
	moduleParents ModuleParents
	relaxModules  bool
	strategy      Strategy
}

// Option configures a Coordinate at construction.
type Option func(*Coordinate)

// WithPaths admits the given paths with any module, in precedence order.
func WithPaths(paths ...ir.Nid) Option {
	return func(c *Coordinate) {
		for _, p := range paths {
			c.paths = append(c.paths, PathRule{Path: p})
		}
	}
}

// WithPathRules admits paths with explicit module restrictions.
func WithPathRules(rules ...PathRule) Option {
	return func(c *Coordinate) {
		for _, r := range rules {
			c.paths = append(c.paths, PathRule{Path: r.Path, Modules: slices.Clone(r.Modules)})
		}
	}
}

// AtTime sets the point in time. Versions stamped later are invisible.
func AtTime(t int64) Option {
	return func(c *Coordinate) { c.time = t }
}

// ActiveOnly hides chronologies whose latest version is not active.
func ActiveOnly() Option {
	return func(c *Coordinate) { c.activeOnly = true }
}

// WithModuleParents declares module parent relationships. When relax is
// true, a version whose module shares a parent with an admitted module is
// admitted too.
func WithModuleParents(parents ModuleParents, relax bool) Option {
	return func(c *Coordinate) {
		c.moduleParents = make(ModuleParents, len(parents))
		for k, v := range parents {
			c.moduleParents[k] = v
		}
		c.relaxModules = relax
	}
}

// WithStrategy sets the contradiction strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Coordinate) { c.strategy = s }
}

// New builds a coordinate. Defaults: no paths (nothing visible), time
// ir.TimeLatest, any status, and ViewPathWins with no view paths (keeps
// every contradicting candidate).
func New(opts ...Option) *Coordinate {
	c := &Coordinate{
		time:     ir.TimeLatest,
		strategy: ViewPathWins{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinate) clone() *Coordinate {
	out := *c
	out.paths = slices.Clone(c.paths)
	return &out
}

// WithTime returns a copy positioned at t.
func (c *Coordinate) WithTime(t int64) *Coordinate {
	out := c.clone()
	out.time = t
	return out
}

// WithActiveOnly returns a copy with the status filter set.
func (c *Coordinate) WithActiveOnly(activeOnly bool) *Coordinate {
	out := c.clone()
	out.activeOnly = activeOnly
	return out
}

// WithStrategy returns a copy using s for contradictions.
func (c *Coordinate) WithStrategy(s Strategy) *Coordinate {
	out := c.clone()
	out.strategy = s
	return out
}

// WithRelaxedModules returns a copy with sibling-module relaxation set.
func (c *Coordinate) WithRelaxedModules(relax bool) *Coordinate {
	out := c.clone()
	out.relaxModules = relax
	return out
}

// Paths returns the admitted path nids in precedence order.
func (c *Coordinate) Paths() []ir.Nid {
	out := make([]ir.Nid, len(c.paths))
	for i, r := range c.paths {
		out[i] = r.Path
	}
	return out
}

// PathRules returns a copy of the path rules in precedence order.
func (c *Coordinate) PathRules() []PathRule {
	out := make([]PathRule, len(c.paths))
	for i, r := range c.paths {
		out[i] = PathRule{Path: r.Path, Modules: slices.Clone(r.Modules)}
	}
	return out
}

// RelaxesModules reports whether sibling modules are admitted.
func (c *Coordinate) RelaxesModules() bool { return c.relaxModules }

// Time returns the coordinate's point in time.
func (c *Coordinate) Time() int64 { return c.time }

// IsActiveOnly reports whether the status filter hides inactive results.
func (c *Coordinate) IsActiveOnly() bool { return c.activeOnly }

// Strategy returns the contradiction strategy.
func (c *Coordinate) Strategy() Strategy { return c.strategy }

// ModuleParents returns the declared module parent map.
func (c *Coordinate) ModuleParents() ModuleParents { return c.moduleParents }

func (c *Coordinate) rule(path ir.Nid) (PathRule, bool) {
	for _, r := range c.paths {
		if r.Path == path {
			return r, true
		}
	}
	return PathRule{}, false
}

func (c *Coordinate) moduleAllowed(rule PathRule, module ir.Nid) bool {
	if len(rule.Modules) == 0 || slices.Contains(rule.Modules, module) {
		return true
	}
	if !c.relaxModules {
		return false
	}
	for _, m := range rule.Modules {
		if c.moduleParents.Siblings(m, module) {
			return true
		}
	}
	return false
}

// Admits reports whether a single stamp passes the path, module and time
// filters. Primordial and canceled stamps are never admitted.
func (c *Coordinate) Admits(s ir.Stamp) bool {
	if s.Status == ir.StatusPrimordial || s.Status == ir.StatusCanceled {
		return false
	}
	rule, ok := c.rule(s.Path)
	if !ok {
		return false
	}
	return c.moduleAllowed(rule, s.Module) && s.Time <= c.time
}

// TaxonomyCoordinate selects is-a edges: a stamp filter plus the premise
// (stated or inferred) and whether only active edges count.
type TaxonomyCoordinate struct {
	Stamp      *Coordinate
	Premise    ir.Premise
	ActiveOnly bool

	// IsA is the relationship type nid that marks taxonomy edges.
	IsA ir.Nid

	// Roots are concepts expected to have no parents; they are not
	// reported as orphans.
	Roots []ir.Nid
}
