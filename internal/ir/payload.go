package ir

import (
	"encoding/base64"
	"fmt"
)

// SemanticType selects the payload shape of a semantic chronology.
type SemanticType uint8

const (
	// SemanticMember is bare membership in an assemblage.
	SemanticMember SemanticType = iota + 1
	// SemanticComponentNid carries one component reference.
	SemanticComponentNid
	// SemanticLong carries one int64.
	SemanticLong
	// SemanticString carries one string.
	SemanticString
	// SemanticDescription carries description text with its type and language.
	SemanticDescription
	// SemanticRelationship carries a typed edge to a destination concept.
	SemanticRelationship
	// SemanticLogicGraph carries an opaque logic definition.
	SemanticLogicGraph
	// SemanticDynamic carries typed data columns.
	SemanticDynamic
)

var semanticTypeNames = map[SemanticType]string{
	SemanticMember:       "MEMBER",
	SemanticComponentNid: "COMPONENT_NID",
	SemanticLong:         "LONG",
	SemanticString:       "STRING",
	SemanticDescription:  "DESCRIPTION",
	SemanticRelationship: "RELATIONSHIP",
	SemanticLogicGraph:   "LOGIC_GRAPH",
	SemanticDynamic:      "DYNAMIC",
}

// String returns the upper-case name of the semantic type.
func (t SemanticType) String() string {
	if name, ok := semanticTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SEMANTIC_TYPE(%d)", uint8(t))
}

// Valid reports whether t is a known semantic type.
func (t SemanticType) Valid() bool {
	_, ok := semanticTypeNames[t]
	return ok
}

// Premise distinguishes stated (authored) from inferred (classifier) edges.
type Premise uint8

const (
	PremiseStated Premise = iota + 1
	PremiseInferred
)

// String returns the lower-case name of the premise.
func (p Premise) String() string {
	switch p {
	case PremiseStated:
		return "stated"
	case PremiseInferred:
		return "inferred"
	default:
		return fmt.Sprintf("premise(%d)", uint8(p))
	}
}

// Payload is the kind-specific part of a semantic version.
type Payload interface {
	SemanticType() SemanticType
	// Doc renders the payload as a canonical document for digests and
	// debug output.
	Doc() Doc
}

// MemberPayload records bare membership.
type MemberPayload struct{}

func (MemberPayload) SemanticType() SemanticType { return SemanticMember }
func (MemberPayload) Doc() Doc                   { return Doc{} }

// ComponentNidPayload references another component.
type ComponentNidPayload struct {
	Component Nid
}

func (ComponentNidPayload) SemanticType() SemanticType { return SemanticComponentNid }
func (p ComponentNidPayload) Doc() Doc {
	return Doc{"component": Int(p.Component)}
}

// LongPayload carries one int64.
type LongPayload struct {
	Value int64
}

func (LongPayload) SemanticType() SemanticType { return SemanticLong }
func (p LongPayload) Doc() Doc                 { return Doc{"value": Int(p.Value)} }

// StringPayload carries one string.
type StringPayload struct {
	Value string
}

func (StringPayload) SemanticType() SemanticType { return SemanticString }
func (p StringPayload) Doc() Doc                 { return Doc{"value": Str(p.Value)} }

// DescriptionPayload is a human-readable term for the referenced concept.
type DescriptionPayload struct {
	CaseSignificance Nid
	Language         Nid
	DescriptionType  Nid
	Text             string
}

func (DescriptionPayload) SemanticType() SemanticType { return SemanticDescription }
func (p DescriptionPayload) Doc() Doc {
	return Doc{
		"case_significance": Int(p.CaseSignificance),
		"language":          Int(p.Language),
		"description_type":  Int(p.DescriptionType),
		"text":              Str(p.Text),
	}
}

// RelationshipPayload is an edge from the referenced component to
// Destination. Is-a edges (Type == the is-a concept) drive the taxonomy.
type RelationshipPayload struct {
	Destination Nid
	Type        Nid
	Group       int32
	Premise     Premise
}

func (RelationshipPayload) SemanticType() SemanticType { return SemanticRelationship }
func (p RelationshipPayload) Doc() Doc {
	return Doc{
		"destination": Int(p.Destination),
		"type":        Int(p.Type),
		"group":       Int(p.Group),
		"premise":     Str(p.Premise.String()),
	}
}

// LogicGraphPayload is an opaque serialized logic definition.
type LogicGraphPayload struct {
	Data []byte
}

func (LogicGraphPayload) SemanticType() SemanticType { return SemanticLogicGraph }
func (p LogicGraphPayload) Doc() Doc {
	return Doc{"data": Str(base64.StdEncoding.EncodeToString(p.Data))}
}

// DynamicPayload carries an ordered list of typed data columns. A nil entry
// is an empty cell.
type DynamicPayload struct {
	Columns []Column
}

func (DynamicPayload) SemanticType() SemanticType { return SemanticDynamic }
func (p DynamicPayload) Doc() Doc {
	return Doc{"columns": columnsDoc(p.Columns)}
}
