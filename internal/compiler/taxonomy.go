package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
)

// CompileTaxonomy parses a CUE taxonomy definition. Its stamp field names
// a coordinate already compiled into coords:
//
//	taxonomy: "stated": {
//		stamp:       "master-latest"
//		premise:     "stated"
//		active_only: true
//		roots: ["root"]
//	}
//
// is_a defaults to the metadata is-a concept and roots to the metadata
// root.
func CompileTaxonomy(v cue.Value, env Env, coords map[string]*coordinate.Coordinate) (coordinate.TaxonomyCoordinate, error) {
	var tc coordinate.TaxonomyCoordinate
	if err := v.Err(); err != nil {
		return tc, formatCUEError(err)
	}

	sv := v.LookupPath(cue.ParsePath("stamp"))
	if !sv.Exists() {
		return tc, &CompileError{Field: "stamp", Message: "stamp is required", Pos: v.Pos()}
	}
	name, err := sv.String()
	if err != nil {
		return tc, &CompileError{Field: "stamp", Message: "stamp must name a coordinate", Pos: sv.Pos()}
	}
	c, ok := coords[name]
	if !ok {
		return tc, &CompileError{Field: "stamp", Message: fmt.Sprintf("unknown coordinate %q", name), Pos: sv.Pos()}
	}
	tc.Stamp = c

	tc.Premise = ir.PremiseStated
	if pv := v.LookupPath(cue.ParsePath("premise")); pv.Exists() {
		p, err := pv.String()
		if err != nil {
			return tc, formatCUEError(err)
		}
		switch p {
		case "stated":
			tc.Premise = ir.PremiseStated
		case "inferred":
			tc.Premise = ir.PremiseInferred
		default:
			return tc, &CompileError{
				Field:   "premise",
				Message: fmt.Sprintf("unknown premise %q (want \"stated\" or \"inferred\")", p),
				Pos:     pv.Pos(),
			}
		}
	}

	if tc.ActiveOnly, err = optionalBool(v, "active_only"); err != nil {
		return tc, err
	}

	if iv := v.LookupPath(cue.ParsePath("is_a")); iv.Exists() {
		if tc.IsA, err = resolveRef(iv, env, "is_a"); err != nil {
			return tc, err
		}
	} else if tc.IsA, err = env.Resolve(ir.MetaIsA.Name); err != nil {
		return tc, &CompileError{Field: "is_a", Message: err.Error(), Pos: v.Pos()}
	}

	rv := v.LookupPath(cue.ParsePath("roots"))
	if rv.Exists() {
		if tc.Roots, err = refList(rv, env, "roots"); err != nil {
			return tc, err
		}
	} else {
		root, err := env.Resolve(ir.MetaRoot.Name)
		if err != nil {
			return tc, &CompileError{Field: "roots", Message: err.Error(), Pos: v.Pos()}
		}
		tc.Roots = []ir.Nid{root}
	}
	return tc, nil
}
