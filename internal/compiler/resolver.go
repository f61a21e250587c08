package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
)

// Resolver turns a concept reference from a definition file into a nid.
type Resolver func(ref string) (ir.Nid, error)

// Env supplies what the compiler needs from a live store.
type Env struct {
	Resolve Resolver

	// ModuleParents returns the module-parent map held by an assemblage.
	// Nil disables module_parent_assemblage.
	ModuleParents func(asm ir.Nid) coordinate.ModuleParents
}

// UUIDResolver accepts a UUID string or the name of a well-known metadata
// concept (e.g. "path/master") and looks the UUID up with lookup.
func UUIDResolver(lookup func(uuid.UUID) (ir.Nid, error)) Resolver {
	return func(ref string) (ir.Nid, error) {
		if u, err := uuid.Parse(ref); err == nil {
			return lookup(u)
		}
		for _, m := range ir.Metadata {
			if m.Name == ref {
				return lookup(m.UUID)
			}
		}
		return 0, fmt.Errorf("%q is neither a UUID nor a metadata concept name", ref)
	}
}

// NameResolver accepts a UUID string or any name, mapping names to
// uuid.NewSHA1(namespace, name) before calling lookup. Metadata names
// resolve to the metadata concepts when namespace is ir.Namespace.
func NameResolver(namespace uuid.UUID, lookup func(uuid.UUID) (ir.Nid, error)) Resolver {
	return func(ref string) (ir.Nid, error) {
		if u, err := uuid.Parse(ref); err == nil {
			return lookup(u)
		}
		return lookup(uuid.NewSHA1(namespace, []byte(ref)))
	}
}
