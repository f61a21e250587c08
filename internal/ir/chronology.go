package ir

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Version is one immutable state of a chronology: a stamp plus a payload.
// Concept versions carry a nil payload.
type Version struct {
	Stamp   Stamp
	Payload Payload
}

// Chronology is the full version history of one entity.
//
// Versions are kept in insertion order. They need not be in time order;
// consumers that need "latest" resolve through a coordinate.
type Chronology struct {
	Kind        ObjectKind // KindConcept or KindSemantic
	Nid         Nid
	PrimaryUUID uuid.UUID
	AliasUUIDs  []uuid.UUID

	// Semantic-only identity fields. Zero for concepts.
	Assemblage          Nid
	ReferencedComponent Nid
	SemanticType        SemanticType

	Versions []Version
}

// ObjectKind implements Object.
func (c *Chronology) ObjectKind() ObjectKind { return c.Kind }

// UUIDs returns the primary UUID followed by the aliases.
func (c *Chronology) UUIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, 1+len(c.AliasUUIDs))
	out = append(out, c.PrimaryUUID)
	return append(out, c.AliasUUIDs...)
}

// IsConcept reports whether the chronology describes a concept.
func (c *Chronology) IsConcept() bool {
	return c.Kind == KindConcept
}

// ShallowCopy returns a copy that shares version payloads but owns its
// slices, so appending to the copy never affects the original.
func (c *Chronology) ShallowCopy() *Chronology {
	out := *c
	out.AliasUUIDs = slices.Clone(c.AliasUUIDs)
	out.Versions = slices.Clone(c.Versions)
	return &out
}

// WithVersions returns a shallow copy carrying only the given versions.
func (c *Chronology) WithVersions(versions []Version) *Chronology {
	out := *c
	out.AliasUUIDs = slices.Clone(c.AliasUUIDs)
	out.Versions = versions
	return &out
}

// SortedVersions returns the versions ordered by CompareStamps.
func (c *Chronology) SortedVersions() []Version {
	out := slices.Clone(c.Versions)
	slices.SortStableFunc(out, func(a, b Version) int {
		return CompareStamps(a.Stamp, b.Stamp)
	})
	return out
}

// Validate checks structural invariants: known kind, set nid and UUID,
// consistent semantic identity, valid stamps and payloads matching the
// declared semantic type.
func (c *Chronology) Validate() error {
	if c.Kind != KindConcept && c.Kind != KindSemantic {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("not a chronology kind: %s", c.Kind)}
	}
	if !c.Nid.IsSet() {
		return &ValidationError{Field: "nid", Message: "nid must be set"}
	}
	if c.PrimaryUUID == uuid.Nil {
		return &ValidationError{Field: "primary_uuid", Message: "primary UUID must be set"}
	}

	if c.Kind == KindSemantic {
		if !c.Assemblage.IsSet() {
			return &ValidationError{Field: "assemblage", Message: "semantic must declare an assemblage"}
		}
		if !c.ReferencedComponent.IsSet() {
			return &ValidationError{Field: "referenced_component", Message: "semantic must reference a component"}
		}
		if !c.SemanticType.Valid() {
			return &ValidationError{Field: "semantic_type", Message: fmt.Sprintf("invalid semantic type %d", c.SemanticType)}
		}
	}

	for i, v := range c.Versions {
		if err := v.Stamp.Validate(); err != nil {
			return fmt.Errorf("version %d: %w", i, err)
		}
		if err := c.checkPayload(v.Payload); err != nil {
			return fmt.Errorf("version %d: %w", i, err)
		}
	}
	return nil
}

func (c *Chronology) checkPayload(p Payload) error {
	if c.Kind == KindConcept {
		if p != nil {
			return &ValidationError{Field: "payload", Message: "concept versions carry no payload"}
		}
		return nil
	}
	if p == nil {
		return &ValidationError{Field: "payload", Message: "semantic version requires a payload"}
	}
	if p.SemanticType() != c.SemanticType {
		return &ValidationError{
			Field:   "payload",
			Message: fmt.Sprintf("payload type %s does not match chronology type %s", p.SemanticType(), c.SemanticType),
		}
	}
	return nil
}
