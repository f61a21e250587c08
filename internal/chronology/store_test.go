package chronology

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stamp"
)

const (
	path   ir.Nid = -100
	module ir.Nid = -200
	author ir.Nid = -300
	asm    ir.Nid = -400
)

func stampAt(t int64) ir.Stamp {
	return ir.Stamp{Status: ir.StatusActive, Time: t, Author: author, Module: module, Path: path}
}

func newTestStore() *Store {
	return NewStore(stamp.NewInterner())
}

func conceptChron(nid ir.Nid, times ...int64) *ir.Chronology {
	c := &ir.Chronology{Kind: ir.KindConcept, Nid: nid, PrimaryUUID: uuid.New()}
	for _, t := range times {
		c.Versions = append(c.Versions, ir.Version{Stamp: stampAt(t)})
	}
	return c
}

func stringSemantic(nid, referenced ir.Nid, value string, t int64) *ir.Chronology {
	return &ir.Chronology{
		Kind:                ir.KindSemantic,
		Nid:                 nid,
		PrimaryUUID:         uuid.New(),
		Assemblage:          asm,
		ReferencedComponent: referenced,
		SemanticType:        ir.SemanticString,
		Versions:            []ir.Version{{Stamp: stampAt(t), Payload: ir.StringPayload{Value: value}}},
	}
}

func TestMerge_AppendsAndSkipsDuplicateStamps(t *testing.T) {
	s := newTestStore()
	c := conceptChron(-1, 10, 20)

	added, err := s.Merge(c)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.Merge(c)
	require.NoError(t, err)
	assert.Zero(t, added, "re-import is a no-op")

	more := c.WithVersions([]ir.Version{{Stamp: stampAt(30)}, {Stamp: stampAt(10)}})
	added, err = s.Merge(more)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, err := s.Get(-1)
	require.NoError(t, err)
	assert.Len(t, got.Versions, 3)
	assert.Equal(t, 3, s.Interner().Len())
}

func TestMerge_IdentityMismatch(t *testing.T) {
	s := newTestStore()
	_, err := s.Merge(stringSemantic(-5, -1, "a", 10))
	require.NoError(t, err)

	moved := stringSemantic(-5, -2, "a", 20)
	_, err = s.Merge(moved)
	var ve *ir.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "referenced_component", ve.Field)

	_, err = s.Merge(conceptChron(-5, 30))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "kind", ve.Field)
}

func TestMerge_RejectsInvalid(t *testing.T) {
	s := newTestStore()
	_, err := s.Merge(&ir.Chronology{Kind: ir.KindConcept, Nid: -1})
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestMerge_AliasesAccumulate(t *testing.T) {
	s := newTestStore()
	c := conceptChron(-1, 10)
	_, err := s.Merge(c)
	require.NoError(t, err)

	extra := uuid.New()
	again := c.ShallowCopy()
	again.AliasUUIDs = []uuid.UUID{extra}
	_, err = s.Merge(again)
	require.NoError(t, err)

	got, err := s.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.PrimaryUUID, extra}, got.UUIDs())
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newTestStore()
	_, err := s.Merge(conceptChron(-1, 10))
	require.NoError(t, err)

	got, err := s.Get(-1)
	require.NoError(t, err)
	got.Versions = append(got.Versions, ir.Version{Stamp: stampAt(99)})

	again, err := s.Get(-1)
	require.NoError(t, err)
	assert.Len(t, again.Versions, 1)

	_, err = s.Get(-77)
	assert.True(t, ir.IsNotFound(err))
}

func TestIndexes(t *testing.T) {
	s := newTestStore()
	for _, c := range []*ir.Chronology{
		conceptChron(-3, 10),
		conceptChron(-1, 10),
		stringSemantic(-10, -1, "x", 10),
		stringSemantic(-11, -1, "y", 10),
		stringSemantic(-12, -3, "z", 10),
	} {
		_, err := s.Merge(c)
		require.NoError(t, err)
	}

	assert.Equal(t, []ir.Nid{-3, -1}, s.ConceptNids())
	assert.Equal(t, []ir.Nid{-11, -10}, s.SemanticNidsFor(-1))
	assert.Equal(t, []ir.Nid{-12, -11, -10}, s.SemanticNidsOfAssemblage(asm))
	assert.Nil(t, s.SemanticNidsFor(-99))
	assert.Equal(t, 5, s.Len())

	var seen []ir.Nid
	s.ForEach(func(c *ir.Chronology) bool {
		seen = append(seen, c.Nid)
		return len(seen) < 3
	})
	assert.Equal(t, []ir.Nid{-12, -11, -10}, seen)
}

func TestMerge_ConcurrentSameNid(t *testing.T) {
	s := newTestStore()
	base := conceptChron(-1)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				c := base.WithVersions([]ir.Version{{Stamp: stampAt(int64(i))}})
				if _, err := s.Merge(c); err != nil {
					t.Errorf("worker %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got, err := s.Get(-1)
	require.NoError(t, err)
	assert.Len(t, got.Versions, 50)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore()
	events, cancel := s.Subscribe(1)

	_, err := s.Merge(conceptChron(-1, 10))
	require.NoError(t, err)
	_, err = s.Merge(conceptChron(-2, 10))
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, ir.Nid(-1), ev.Nid)
	assert.False(t, ev.Resync)

	_, err = s.Merge(conceptChron(-3, 10))
	require.NoError(t, err)
	ev = <-events
	assert.Equal(t, ir.Nid(-3), ev.Nid)
	assert.True(t, ev.Resync, "the event for -2 was dropped")

	cancel()
	_, ok := <-events
	assert.False(t, ok)
	cancel()

	_, err = s.Merge(conceptChron(-4, 10))
	assert.NoError(t, err)
}

func TestModuleParents(t *testing.T) {
	s := newTestStore()
	for i, child := range []ir.Nid{-21, -22} {
		_, err := s.Merge(&ir.Chronology{
			Kind:                ir.KindSemantic,
			Nid:                 ir.Nid(-50 - i),
			PrimaryUUID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprint(i))),
			Assemblage:          asm,
			ReferencedComponent: child,
			SemanticType:        ir.SemanticComponentNid,
			Versions: []ir.Version{
				{Stamp: stampAt(10), Payload: ir.ComponentNidPayload{Component: -20}},
			},
		})
		require.NoError(t, err)
	}

	mp := s.ModuleParents(asm)
	assert.Equal(t, ir.Nid(-20), mp.Parent(-21))
	assert.True(t, mp.Siblings(-21, -22))
	assert.Empty(t, s.ModuleParents(-999))
}
