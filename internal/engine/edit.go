package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/ir"
)

// EditCoordinate names who is editing, in which module, on which path.
// Every version committed through it is stamped with these nids and the
// next Clock time.
type EditCoordinate struct {
	Author ir.Nid
	Module ir.Nid
	Path   ir.Nid
}

// DefaultEditCoordinate edits as the metadata user in the core module on
// the master path.
func (e *Engine) DefaultEditCoordinate() EditCoordinate {
	return EditCoordinate{
		Author: e.Meta(ir.MetaUserAuthor),
		Module: e.Meta(ir.MetaCoreModule),
		Path:   e.Meta(ir.MetaMasterPath),
	}
}

func (e *Engine) stamp(ec EditCoordinate, status ir.Status) (ir.Stamp, error) {
	s := ir.Stamp{
		Status: status,
		Time:   e.clock.Next(),
		Author: ec.Author,
		Module: ec.Module,
		Path:   ec.Path,
	}
	if err := s.Validate(); err != nil {
		return ir.Stamp{}, fmt.Errorf("edit stamp: %w", err)
	}
	return s, nil
}

// NewConcept creates an active concept. With no uuids a random primary
// UUID is minted.
func (e *Engine) NewConcept(ec EditCoordinate, uuids ...uuid.UUID) (ir.Nid, error) {
	if len(uuids) == 0 {
		uuids = []uuid.UUID{uuid.New()}
	}
	nid, err := e.registry.NidFor(uuids...)
	if err != nil {
		return 0, fmt.Errorf("new concept: %w", err)
	}
	s, err := e.stamp(ec, ir.StatusActive)
	if err != nil {
		return 0, err
	}
	primary, err := e.registry.PrimaryUUID(nid)
	if err != nil {
		return 0, err
	}
	c := &ir.Chronology{
		Kind:        ir.KindConcept,
		Nid:         nid,
		PrimaryUUID: primary,
		AliasUUIDs:  aliasesOf(primary, uuids),
		Versions:    []ir.Version{{Stamp: s}},
	}
	if _, err := e.registry.MarkConcept(nid); err != nil {
		return 0, fmt.Errorf("new concept: %w", err)
	}
	if _, err := e.store.Merge(c); err != nil {
		return 0, fmt.Errorf("new concept: %w", err)
	}
	return nid, nil
}

// NewSemantic creates an active semantic of payload's type in assemblage
// asm on referenced.
func (e *Engine) NewSemantic(ec EditCoordinate, asm, referenced ir.Nid, payload ir.Payload, uuids ...uuid.UUID) (ir.Nid, error) {
	if payload == nil {
		return 0, &ir.ValidationError{Field: "payload", Message: "semantics need a payload"}
	}
	if len(uuids) == 0 {
		uuids = []uuid.UUID{uuid.New()}
	}
	nid, err := e.registry.NidFor(uuids...)
	if err != nil {
		return 0, fmt.Errorf("new semantic: %w", err)
	}
	s, err := e.stamp(ec, ir.StatusActive)
	if err != nil {
		return 0, err
	}
	primary, err := e.registry.PrimaryUUID(nid)
	if err != nil {
		return 0, err
	}
	c := &ir.Chronology{
		Kind:                ir.KindSemantic,
		Nid:                 nid,
		PrimaryUUID:         primary,
		AliasUUIDs:          aliasesOf(primary, uuids),
		Assemblage:          asm,
		ReferencedComponent: referenced,
		SemanticType:        payload.SemanticType(),
		Versions:            []ir.Version{{Stamp: s, Payload: payload}},
	}
	if _, err := e.store.Merge(c); err != nil {
		return 0, fmt.Errorf("new semantic: %w", err)
	}
	return nid, nil
}

// Commit appends one version to an existing chronology and returns its
// stamp. payload must be nil for concepts and match the semantic type
// otherwise.
func (e *Engine) Commit(ec EditCoordinate, nid ir.Nid, status ir.Status, payload ir.Payload) (ir.Stamp, error) {
	have, err := e.store.Get(nid)
	if err != nil {
		return ir.Stamp{}, fmt.Errorf("commit %s: %w", nid, err)
	}
	s, err := e.stamp(ec, status)
	if err != nil {
		return ir.Stamp{}, err
	}
	if _, err := e.store.Merge(have.WithVersions([]ir.Version{{Stamp: s, Payload: payload}})); err != nil {
		return ir.Stamp{}, fmt.Errorf("commit %s: %w", nid, err)
	}
	return s, nil
}

func aliasesOf(primary uuid.UUID, uuids []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, u := range uuids {
		if u != primary && u != uuid.Nil {
			out = append(out, u)
		}
	}
	return out
}
