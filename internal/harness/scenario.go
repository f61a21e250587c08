package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a set of chronologies, the
// named coordinates to view them through, and queries with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Chronologies are encoded to IBDF in order and imported.
	Chronologies []ChronologyDef `yaml:"chronologies"`

	// Coordinates is CUE source with coordinate and taxonomy blocks.
	// Concept references may be any chronology name. A "master" coordinate
	// and "master" taxonomy exist unless the source redefines them.
	Coordinates string `yaml:"coordinates,omitempty"`

	// Queries run against the store after a snapshot round trip.
	Queries []Query `yaml:"queries"`

	// Permits bounds concurrent decoding during import. Zero uses 2.
	Permits int `yaml:"permits,omitempty"`
}

// ChronologyDef describes one chronology. Exactly one of Concept, Semantic
// and IsA is set.
type ChronologyDef struct {
	Concept  string  `yaml:"concept,omitempty"`
	Semantic string  `yaml:"semantic,omitempty"`
	IsA      *IsADef `yaml:"is_a,omitempty"`

	// Semantic identity.
	Assemblage string `yaml:"assemblage,omitempty"`
	Referenced string `yaml:"referenced,omitempty"`
	Type       string `yaml:"type,omitempty"` // member | component | long | string

	Versions []VersionDef `yaml:"versions"`
}

// IsADef is a relationship semantic "child is-a parent".
type IsADef struct {
	Child   string `yaml:"child"`
	Parent  string `yaml:"parent"`
	Premise string `yaml:"premise,omitempty"` // stated (default) | inferred
}

// VersionDef is one version. Empty stamp fields take the fixture defaults:
// active, next clock time, author/user, module/core, path/master.
type VersionDef struct {
	Status string `yaml:"status,omitempty"`
	Time   int64  `yaml:"time,omitempty"`
	Author string `yaml:"author,omitempty"`
	Module string `yaml:"module,omitempty"`
	Path   string `yaml:"path,omitempty"`

	// Value is the payload: a string, an integer, or a component name.
	Value any `yaml:"value,omitempty"`
}

// Query is a resolve or a taxonomy query.
type Query struct {
	Resolve    string `yaml:"resolve,omitempty"`
	Coordinate string `yaml:"coordinate,omitempty"`
	Time       int64  `yaml:"time,omitempty"` // overrides the coordinate time

	Taxonomy string `yaml:"taxonomy,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect holds the expectations for one query. Unset fields are not
// checked.
type Expect struct {
	// Resolve expectations.
	State  string   `yaml:"state,omitempty"` // present | absent | contradicted
	Values []string `yaml:"values,omitempty"`

	// Taxonomy expectations.
	Edges   *int     `yaml:"edges,omitempty"`
	Cycles  *int     `yaml:"cycles,omitempty"`
	Parents []string `yaml:"parents,omitempty"` // "child -> parent"
	Orphans []string `yaml:"orphans,omitempty"`
}

// Resolve states.
const (
	StatePresent      = "present"
	StateAbsent       = "absent"
	StateContradicted = "contradicted"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Chronologies) == 0 {
		return fmt.Errorf("chronologies list is required and must be non-empty")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, c := range s.Chronologies {
		if err := validateChronology(i, &c); err != nil {
			return err
		}
	}
	for i, q := range s.Queries {
		if err := validateQuery(i, &q); err != nil {
			return err
		}
	}
	return nil
}

func validateChronology(index int, c *ChronologyDef) error {
	set := 0
	for _, ok := range []bool{c.Concept != "", c.Semantic != "", c.IsA != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("chronologies[%d]: exactly one of concept, semantic, is_a is required", index)
	}
	if len(c.Versions) == 0 {
		return fmt.Errorf("chronologies[%d]: at least one version is required", index)
	}

	switch {
	case c.Semantic != "":
		if c.Assemblage == "" || c.Referenced == "" {
			return fmt.Errorf("chronologies[%d]: semantic needs assemblage and referenced", index)
		}
		if _, ok := semanticTypes[c.Type]; !ok {
			return fmt.Errorf("chronologies[%d]: unknown semantic type %q", index, c.Type)
		}
	case c.IsA != nil:
		if c.IsA.Child == "" || c.IsA.Parent == "" {
			return fmt.Errorf("chronologies[%d]: is_a needs child and parent", index)
		}
		if _, ok := premises[c.IsA.Premise]; !ok {
			return fmt.Errorf("chronologies[%d]: unknown premise %q", index, c.IsA.Premise)
		}
	}

	for j, v := range c.Versions {
		if _, ok := statuses[v.Status]; !ok {
			return fmt.Errorf("chronologies[%d].versions[%d]: unknown status %q", index, j, v.Status)
		}
		if v.Time < 0 {
			return fmt.Errorf("chronologies[%d].versions[%d]: time must be positive", index, j)
		}
	}
	return nil
}

func validateQuery(index int, q *Query) error {
	switch {
	case q.Resolve != "" && q.Taxonomy != "":
		return fmt.Errorf("queries[%d]: resolve and taxonomy are exclusive", index)
	case q.Resolve == "" && q.Taxonomy == "":
		return fmt.Errorf("queries[%d]: resolve or taxonomy is required", index)
	}
	if q.Expect == nil {
		return nil
	}
	switch q.Expect.State {
	case "", StatePresent, StateAbsent, StateContradicted:
	default:
		return fmt.Errorf("queries[%d].expect: unknown state %q", index, q.Expect.State)
	}
	return nil
}
