package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/chronology"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stamp"
)

func populate(t *testing.T) (*identity.Registry, *chronology.Store) {
	t.Helper()
	reg := identity.NewRegistry()
	chrons := chronology.NewStore(stamp.NewInterner())

	heart, err := reg.NidForName(ir.Namespace, "heart")
	require.NoError(t, err)
	_, err = reg.MarkConcept(heart)
	require.NoError(t, err)
	desc, err := reg.NidForName(ir.Namespace, "heart/description")
	require.NoError(t, err)

	_, err = chrons.Merge(createTestConcept("heart", heart, 10, 20))
	require.NoError(t, err)
	_, err = chrons.Merge(createTestDescription("heart/description", desc, heart, "Heart structure", 15))
	require.NoError(t, err)

	in := chrons.Interner()
	require.NoError(t, in.AddAlias(testStamp(10), testStamp(11)))
	require.NoError(t, in.SetComment(testStamp(20), "second release"))
	return reg, chrons
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	reg, chrons := populate(t)

	stats, err := s.SaveStore(ctx, reg, chrons)
	require.NoError(t, err)
	assert.Equal(t, SaveStats{Bindings: 2, Stamps: 4, Aliases: 1, Comments: 1, Chronologies: 2}, stats)

	reg2 := identity.NewRegistry()
	chrons2 := chronology.NewStore(stamp.NewInterner())
	require.NoError(t, s.LoadStore(ctx, reg2, chrons2))

	assert.Equal(t, reg.Bindings(), reg2.Bindings())
	assert.Equal(t, chrons.Nids(), chrons2.Nids())
	for _, nid := range chrons.Nids() {
		want, err := chrons.Get(nid)
		require.NoError(t, err)
		got, err := chrons2.Get(nid)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, chrons.Interner().Stamps(), chrons2.Interner().Stamps())
	assert.Equal(t, chrons.Interner().AliasRecords(), chrons2.Interner().AliasRecords())
	comment, ok := chrons2.Interner().Comment(testStamp(20))
	assert.True(t, ok)
	assert.Equal(t, "second release", comment)

	heart, err := reg2.NidForUUID(identity.NameUUID(ir.Namespace, "heart"))
	require.NoError(t, err)
	assert.True(t, reg2.IsConceptNid(heart))
	assert.Equal(t, []ir.Nid{heart}, chrons2.ConceptNids())
}

func TestSaveStore_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	reg, chrons := populate(t)

	_, err := s.SaveStore(ctx, reg, chrons)
	require.NoError(t, err)
	_, err = s.SaveStore(ctx, reg, chrons)
	require.NoError(t, err)

	all, err := s.ReadAllChronologies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Len(t, all[0].Versions, 2)

	stamps, err := s.ReadStamps(ctx)
	require.NoError(t, err)
	assert.Len(t, stamps, 4)
}

func TestLoadStore_IntoPopulatedStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	reg, chrons := populate(t)
	_, err := s.SaveStore(ctx, reg, chrons)
	require.NoError(t, err)

	require.NoError(t, s.LoadStore(ctx, reg, chrons))
	assert.Equal(t, 2, chrons.Len())
	c, err := chrons.Get(chrons.ConceptNids()[0])
	require.NoError(t, err)
	assert.Len(t, c.Versions, 2, "loading the same data twice adds nothing")
}

func TestSaveStore_Canceled(t *testing.T) {
	s := createTestStore(t)
	reg, chrons := populate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveStore(ctx, reg, chrons)
	assert.Error(t, err)

	all, err := s.ReadAllChronologies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
