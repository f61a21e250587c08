package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
)

// CompileCoordinate parses a CUE value into a stamp coordinate.
//
// The value is the coordinate struct itself, e.g.:
//
//	coordinate: "master-latest": {
//		paths: [{path: "path/master", modules: ["module/core"]}]
//		time:        "latest"
//		active_only: true
//		strategy:    {kind: "view", paths: ["path/master"]}
//		module_parent_assemblage: "assemblage/module-parent"
//		relax_modules: true
//	}
//
// Concept references (paths, modules, assemblages) go through env.Resolve.
func CompileCoordinate(v cue.Value, env Env) (*coordinate.Coordinate, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var opts []coordinate.Option

	rules, err := parsePathRules(v, env)
	if err != nil {
		return nil, err
	}
	opts = append(opts, coordinate.WithPathRules(rules...))

	if tv := v.LookupPath(cue.ParsePath("time")); tv.Exists() {
		t, err := parseTime(tv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinate.AtTime(t))
	}

	activeOnly, err := optionalBool(v, "active_only")
	if err != nil {
		return nil, err
	}
	if activeOnly {
		opts = append(opts, coordinate.ActiveOnly())
	}

	if sv := v.LookupPath(cue.ParsePath("strategy")); sv.Exists() {
		s, err := parseStrategy(sv, env)
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinate.WithStrategy(s))
	}

	relax, err := optionalBool(v, "relax_modules")
	if err != nil {
		return nil, err
	}
	if av := v.LookupPath(cue.ParsePath("module_parent_assemblage")); av.Exists() {
		if env.ModuleParents == nil {
			return nil, &CompileError{
				Field:   "module_parent_assemblage",
				Message: "module parents are not available here",
				Pos:     av.Pos(),
			}
		}
		asm, err := resolveRef(av, env, "module_parent_assemblage")
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinate.WithModuleParents(env.ModuleParents(asm), relax))
	} else if relax {
		return nil, &CompileError{
			Field:   "relax_modules",
			Message: "relax_modules requires module_parent_assemblage",
			Pos:     v.Pos(),
		}
	}

	return coordinate.New(opts...), nil
}

// parsePathRules parses the required paths list. Each entry is either a
// concept reference or a struct {path, modules}.
func parsePathRules(v cue.Value, env Env) ([]coordinate.PathRule, error) {
	pv := v.LookupPath(cue.ParsePath("paths"))
	if !pv.Exists() {
		return nil, &CompileError{Field: "paths", Message: "paths is required", Pos: v.Pos()}
	}
	iter, err := pv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []coordinate.PathRule
	for iter.Next() {
		item := iter.Value()
		if item.IncompleteKind() == cue.StringKind {
			path, err := resolveRef(item, env, "paths")
			if err != nil {
				return nil, err
			}
			rules = append(rules, coordinate.PathRule{Path: path})
			continue
		}

		pathVal := item.LookupPath(cue.ParsePath("path"))
		if !pathVal.Exists() {
			return nil, &CompileError{Field: "paths.path", Message: "path is required", Pos: item.Pos()}
		}
		path, err := resolveRef(pathVal, env, "paths.path")
		if err != nil {
			return nil, err
		}
		modules, err := refList(item.LookupPath(cue.ParsePath("modules")), env, "paths.modules")
		if err != nil {
			return nil, err
		}
		rules = append(rules, coordinate.PathRule{Path: path, Modules: modules})
	}
	if len(rules) == 0 {
		return nil, &CompileError{Field: "paths", Message: "at least one path is required", Pos: pv.Pos()}
	}
	return rules, nil
}

// parseTime accepts an integer epoch-millisecond time or "latest".
func parseTime(v cue.Value) (int64, error) {
	if s, err := v.String(); err == nil {
		if s == "latest" {
			return ir.TimeLatest, nil
		}
		return 0, &CompileError{Field: "time", Message: fmt.Sprintf("unknown time %q (want an integer or \"latest\")", s), Pos: v.Pos()}
	}
	t, err := v.Int64()
	if err != nil {
		return 0, &CompileError{Field: "time", Message: "time must be an integer or \"latest\"", Pos: v.Pos()}
	}
	if t <= 0 {
		return 0, &CompileError{Field: "time", Message: fmt.Sprintf("time %d must be positive", t), Pos: v.Pos()}
	}
	return t, nil
}

// parseStrategy accepts "view", "edit", or {kind, paths}.
func parseStrategy(v cue.Value, env Env) (coordinate.Strategy, error) {
	kindVal := v
	var paths []ir.Nid
	if v.IncompleteKind() == cue.StructKind {
		kindVal = v.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{Field: "strategy.kind", Message: "kind is required", Pos: v.Pos()}
		}
		var err error
		paths, err = refList(v.LookupPath(cue.ParsePath("paths")), env, "strategy.paths")
		if err != nil {
			return nil, err
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	switch kind {
	case "view":
		return coordinate.ViewPathWins{ViewPaths: paths}, nil
	case "edit":
		return coordinate.EditPathWins{EditPaths: paths}, nil
	default:
		return nil, &CompileError{
			Field:   "strategy.kind",
			Message: fmt.Sprintf("unknown strategy %q (want \"view\" or \"edit\")", kind),
			Pos:     kindVal.Pos(),
		}
	}
}

func optionalBool(v cue.Value, field string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(field))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a bool", Pos: bv.Pos()}
	}
	return b, nil
}

func resolveRef(v cue.Value, env Env, field string) (ir.Nid, error) {
	ref, err := v.String()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "concept reference must be a string", Pos: v.Pos()}
	}
	nid, err := env.Resolve(ref)
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return nid, nil
}

// refList resolves an optional list of concept references.
func refList(v cue.Value, env Env, field string) ([]ir.Nid, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Nid
	for iter.Next() {
		nid, err := resolveRef(iter.Value(), env, field)
		if err != nil {
			return nil, err
		}
		out = append(out, nid)
	}
	return out, nil
}
