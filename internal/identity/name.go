package identity

import (
	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/ir"
)

// NameUUID derives a deterministic (version 5, SHA-1) UUID from a namespace
// and a name. ETL producers use it so that re-running a conversion yields
// the same identifiers.
func NameUUID(namespace uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

// NidForName is NidFor(NameUUID(namespace, name)).
func (r *Registry) NidForName(namespace uuid.UUID, name string) (ir.Nid, error) {
	return r.NidFor(NameUUID(namespace, name))
}

// Allocator is the identifier-allocation callback handed to producers that
// must mint UUIDs from external namespace+name pairs.
type Allocator func(namespace uuid.UUID, name string) (ir.Nid, error)

// Allocator returns r.NidForName as an Allocator.
func (r *Registry) Allocator() Allocator {
	return r.NidForName
}

// Bootstrap registers the well-known metadata concepts and marks them as
// concepts. It returns their nids keyed by UUID.
func (r *Registry) Bootstrap() (map[uuid.UUID]ir.Nid, error) {
	out := make(map[uuid.UUID]ir.Nid, len(ir.Metadata))
	for _, m := range ir.Metadata {
		nid, err := r.NidFor(m.UUID)
		if err != nil {
			return nil, err
		}
		if _, err := r.MarkConcept(nid); err != nil {
			return nil, err
		}
		out[m.UUID] = nid
	}
	return out, nil
}
