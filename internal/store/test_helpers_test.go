package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// createTestStore opens a fresh database under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testStamp returns an active stamp on fixed author, module and path nids.
func testStamp(time int64) ir.Stamp {
	return ir.Stamp{Status: ir.StatusActive, Time: time, Author: -100, Module: -101, Path: -102}
}

// createTestConcept creates a concept chronology with one version per time.
func createTestConcept(name string, nid ir.Nid, times ...int64) *ir.Chronology {
	c := &ir.Chronology{Kind: ir.KindConcept, Nid: nid, PrimaryUUID: identity.NameUUID(ir.Namespace, name)}
	for _, tm := range times {
		c.Versions = append(c.Versions, ir.Version{Stamp: testStamp(tm)})
	}
	return c
}

// createTestDescription creates a string semantic on referenced.
func createTestDescription(name string, nid, referenced ir.Nid, text string, time int64) *ir.Chronology {
	return &ir.Chronology{
		Kind:                ir.KindSemantic,
		Nid:                 nid,
		PrimaryUUID:         identity.NameUUID(ir.Namespace, name),
		Assemblage:          -103,
		ReferencedComponent: referenced,
		SemanticType:        ir.SemanticString,
		Versions:            []ir.Version{{Stamp: testStamp(time), Payload: ir.StringPayload{Value: text}}},
	}
}
