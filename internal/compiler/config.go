package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/roach88/chronicle/internal/coordinate"
)

// Config holds every named coordinate and taxonomy view in a definition
// file set.
type Config struct {
	Coordinates map[string]*coordinate.Coordinate
	Taxonomies  map[string]coordinate.TaxonomyCoordinate
}

// CoordinateNames returns the coordinate names in sorted order.
func (c *Config) CoordinateNames() []string {
	names := make([]string, 0, len(c.Coordinates))
	for name := range c.Coordinates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaxonomyNames returns the taxonomy names in sorted order.
func (c *Config) TaxonomyNames() []string {
	names := make([]string, 0, len(c.Taxonomies))
	for name := range c.Taxonomies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile compiles the coordinate and taxonomy blocks of v. Coordinates are
// compiled first so taxonomies can reference them by name. With failFast
// it stops at the first error; otherwise it collects every error and
// returns whatever compiled.
func Compile(v cue.Value, env Env, failFast bool) (*Config, []error) {
	cfg := &Config{
		Coordinates: map[string]*coordinate.Coordinate{},
		Taxonomies:  map[string]coordinate.TaxonomyCoordinate{},
	}
	var errs []error

	if err := eachField(v, "coordinate", func(name string, fv cue.Value) error {
		c, err := CompileCoordinate(fv, env)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", name, err)
		}
		cfg.Coordinates[name] = c
		return nil
	}, &errs, failFast); err != nil {
		return cfg, errs
	}

	_ = eachField(v, "taxonomy", func(name string, fv cue.Value) error {
		tc, err := CompileTaxonomy(fv, env, cfg.Coordinates)
		if err != nil {
			return fmt.Errorf("taxonomy %q: %w", name, err)
		}
		cfg.Taxonomies[name] = tc
		return nil
	}, &errs, failFast)

	return cfg, errs
}

// eachField calls fn for every field under path, appending failures to
// errs. It returns the first error when failFast is set.
func eachField(v cue.Value, path string, fn func(string, cue.Value) error, errs *[]error, failFast bool) error {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.Fields()
	if err != nil {
		*errs = append(*errs, formatCUEError(err))
		return err
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			*errs = append(*errs, err)
			if failFast {
				return err
			}
		}
	}
	return nil
}
