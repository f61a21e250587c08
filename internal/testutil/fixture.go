package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// Fixture builds chronologies for named components.
//
// Every name maps to identity.NameUUID(ir.Namespace, name), so metadata
// names such as "path/master" resolve to the bootstrapped metadata nids and
// a fixture built twice assigns identical nids.
type Fixture struct {
	reg   *identity.Registry
	Clock *StampClock

	// Defaults for Stamp.
	Author ir.Nid
	Module ir.Nid
	Path   ir.Nid

	mu    sync.Mutex
	names map[ir.Nid]string
}

// NewFixture bootstraps a registry and defaults stamps to the metadata
// user, core module and master path, with times from 1000 in steps of 1.
func NewFixture() (*Fixture, error) {
	reg := identity.NewRegistry()
	meta, err := reg.Bootstrap()
	if err != nil {
		return nil, err
	}
	f := &Fixture{
		reg:    reg,
		Clock:  NewStampClock(1000, 1),
		Author: meta[ir.MetaUserAuthor.UUID],
		Module: meta[ir.MetaCoreModule.UUID],
		Path:   meta[ir.MetaMasterPath.UUID],
		names:  make(map[ir.Nid]string, len(ir.Metadata)),
	}
	for _, m := range ir.Metadata {
		f.names[meta[m.UUID]] = m.Name
	}
	return f, nil
}

// Registry returns the fixture's identifier registry.
func (f *Fixture) Registry() *identity.Registry { return f.reg }

// Nid returns the nid for name, allocating it on first use.
func (f *Fixture) Nid(name string) ir.Nid {
	nid, err := f.reg.NidForName(ir.Namespace, name)
	if err != nil {
		// one UUID per nid never conflicts
		panic(fmt.Sprintf("fixture nid %q: %v", name, err))
	}
	f.mu.Lock()
	f.names[nid] = name
	f.mu.Unlock()
	return nid
}

// Name returns the name nid was allocated for, or its number.
func (f *Fixture) Name(nid ir.Nid) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.names[nid]; ok {
		return name
	}
	return nid.String()
}

// Stamp returns a stamp with the fixture defaults. A zero time takes the
// next clock time.
func (f *Fixture) Stamp(status ir.Status, time int64) ir.Stamp {
	if time == 0 {
		time = f.Clock.Next()
	}
	return ir.Stamp{Status: status, Time: time, Author: f.Author, Module: f.Module, Path: f.Path}
}

// Concept returns a concept chronology for name and marks it as a concept.
func (f *Fixture) Concept(name string, stamps ...ir.Stamp) *ir.Chronology {
	nid := f.Nid(name)
	if _, err := f.reg.MarkConcept(nid); err != nil {
		panic(fmt.Sprintf("fixture concept %q: %v", name, err))
	}
	c := &ir.Chronology{
		Kind:        ir.KindConcept,
		Nid:         nid,
		PrimaryUUID: identity.NameUUID(ir.Namespace, name),
	}
	for _, s := range stamps {
		c.Versions = append(c.Versions, ir.Version{Stamp: s})
	}
	return c
}

// Semantic returns a semantic chronology named name in assemblage on
// referenced.
func (f *Fixture) Semantic(name, assemblage, referenced string, st ir.SemanticType, versions ...ir.Version) *ir.Chronology {
	return &ir.Chronology{
		Kind:                ir.KindSemantic,
		Nid:                 f.Nid(name),
		PrimaryUUID:         identity.NameUUID(ir.Namespace, name),
		Assemblage:          f.Nid(assemblage),
		ReferencedComponent: f.Nid(referenced),
		SemanticType:        st,
		Versions:            versions,
	}
}

// IsA returns the relationship semantic "child is-a parent" with one
// version per stamp.
func (f *Fixture) IsA(child, parent string, premise ir.Premise, stamps ...ir.Stamp) *ir.Chronology {
	payload := ir.RelationshipPayload{Destination: f.Nid(parent), Type: f.Nid(ir.MetaIsA.Name), Premise: premise}
	versions := make([]ir.Version, len(stamps))
	for i, s := range stamps {
		versions[i] = ir.Version{Stamp: s, Payload: payload}
	}
	return f.Semantic(child+" is-a "+parent, ir.MetaRelationshipAssemblage.Name, child, ir.SemanticRelationship, versions...)
}
