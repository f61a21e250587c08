package ir

import (
	"fmt"
	"math"
)

// Nid is the dense internal identifier of any addressable entity
// (concept, semantic, author, module, path).
//
// Nids are allocated from math.MinInt32 upward, so every live nid is
// negative and zero is reserved as "unset".
type Nid int32

// NidBase is the value every nid is offset from. The first allocated nid is
// NidBase+1.
const NidBase = math.MinInt32

// IsSet reports whether the nid is non-zero.
func (n Nid) IsSet() bool {
	return n != 0
}

// String renders the nid as a plain integer.
func (n Nid) String() string {
	return fmt.Sprintf("%d", int32(n))
}

// ObjectKind is the type tag that starts every binary record.
type ObjectKind uint8

const (
	// KindConcept tags a concept chronology.
	KindConcept ObjectKind = iota + 1
	// KindSemantic tags a semantic chronology.
	KindSemantic
	// KindStampAlias tags a stamp alias record.
	KindStampAlias
	// KindStampComment tags a stamp comment record.
	KindStampComment
)

// String returns the upper-case wire name of the kind.
func (k ObjectKind) String() string {
	switch k {
	case KindConcept:
		return "CONCEPT"
	case KindSemantic:
		return "SEMANTIC"
	case KindStampAlias:
		return "STAMP_ALIAS"
	case KindStampComment:
		return "STAMP_COMMENT"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k ObjectKind) Valid() bool {
	return k >= KindConcept && k <= KindStampComment
}

// Object is anything that can travel as one binary record.
// Implemented by *Chronology, *StampAlias, *StampComment and *Unparsed.
type Object interface {
	ObjectKind() ObjectKind
}

// Unparsed carries a record whose body was not decoded. Only produced when a
// decoder explicitly allows passthrough.
type Unparsed struct {
	Tag     ObjectKind
	Payload []byte // full record payload, tag byte included
}

// ObjectKind implements Object.
func (u *Unparsed) ObjectKind() ObjectKind { return u.Tag }
