package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

func TestWriteChronology_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestConcept("heart", -1, 10, 20)
	require.NoError(t, s.WriteChronology(ctx, c))

	got, err := s.ReadChronology(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestWriteChronology_MergesVersions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteChronology(ctx, createTestConcept("heart", -1, 10, 20)))
	require.NoError(t, s.WriteChronology(ctx, createTestConcept("heart", -1, 20, 30)))

	got, err := s.ReadChronology(ctx, -1)
	require.NoError(t, err)
	require.Len(t, got.Versions, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{got.Versions[0].Stamp.Time, got.Versions[1].Stamp.Time, got.Versions[2].Stamp.Time})

	var versions int
	require.NoError(t, s.db.QueryRow(`SELECT versions FROM chronologies WHERE nid = ?`, -1).Scan(&versions))
	assert.Equal(t, 3, versions)
}

func TestWriteChronology_AccumulatesAliases(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	alias := uuid.MustParse("8b1f6a55-0a51-4bd4-9f0e-0f1f5b4cfd21")
	c := createTestConcept("heart", -1, 10)
	require.NoError(t, s.WriteChronology(ctx, c))

	withAlias := createTestConcept("heart", -1, 10)
	withAlias.AliasUUIDs = []uuid.UUID{alias, c.PrimaryUUID}
	require.NoError(t, s.WriteChronology(ctx, withAlias))

	got, err := s.ReadChronology(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alias}, got.AliasUUIDs)
}

func TestWriteChronology_IdentityMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteChronology(ctx, createTestConcept("heart", -1, 10)))
	err := s.WriteChronology(ctx, createTestConcept("lung", -1, 20))

	var verr *ir.ValidationError
	assert.ErrorAs(t, err, &verr)

	got, err := s.ReadChronology(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, got.Versions, 1, "failed write must not change the stored record")
}

func TestWriteChronology_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteChronology(context.Background(), &ir.Chronology{Kind: ir.KindConcept})
	assert.Error(t, err)
}

func TestReadChronology_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadChronology(context.Background(), -42)
	assert.True(t, ir.IsNotFound(err))
}

func TestReadAllChronologies_OrderedByNid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ReadAllChronologies(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, s.WriteChronology(ctx, createTestDescription("d", -2, -5, "heart", 10)))
	require.NoError(t, s.WriteChronology(ctx, createTestConcept("b", -7, 10)))
	require.NoError(t, s.WriteChronology(ctx, createTestConcept("a", -9, 10)))

	all, err := s.ReadAllChronologies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []ir.Nid{-9, -7, -2}, []ir.Nid{all[0].Nid, all[1].Nid, all[2].Nid})

	concepts, err := s.CountChronologies(ctx, ir.KindConcept)
	require.NoError(t, err)
	assert.Equal(t, 2, concepts)
}

func TestWriteStamp_KeepsFirstWriteOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, tm := range []int64{30, 10, 30, 20} {
		require.NoError(t, s.WriteStamp(ctx, testStamp(tm)))
	}
	stamps, err := s.ReadStamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Stamp{testStamp(30), testStamp(10), testStamp(20)}, stamps)

	bad := testStamp(10)
	bad.Author = 0
	assert.Error(t, s.WriteStamp(ctx, bad))
}

func TestWriteBinding_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := identity.NameUUID(ir.Namespace, "a")
	b := identity.NameUUID(ir.Namespace, "b")
	c := identity.NameUUID(ir.Namespace, "c")
	require.NoError(t, s.WriteBinding(ctx, identity.Binding{Nid: -3, UUIDs: []uuid.UUID{c}}))
	require.NoError(t, s.WriteBinding(ctx, identity.Binding{Nid: -8, UUIDs: []uuid.UUID{a, b}}))
	require.NoError(t, s.WriteBinding(ctx, identity.Binding{Nid: -8, UUIDs: []uuid.UUID{a, b}}))

	got, err := s.ReadBindings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []identity.Binding{
		{Nid: -8, UUIDs: []uuid.UUID{a, b}},
		{Nid: -3, UUIDs: []uuid.UUID{c}},
	}, got)
}

func TestStampRecords_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	alias := ir.StampAlias{Stamp: testStamp(10), Alias: testStamp(11)}
	require.NoError(t, s.WriteStampAlias(ctx, alias))
	require.NoError(t, s.WriteStampAlias(ctx, alias))
	require.NoError(t, s.WriteStampComment(ctx, ir.StampComment{Stamp: testStamp(10), Comment: "draft"}))
	require.NoError(t, s.WriteStampComment(ctx, ir.StampComment{Stamp: testStamp(10), Comment: "release"}))

	aliases, err := s.ReadStampAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*ir.StampAlias{&alias}, aliases)

	comments, err := s.ReadStampComments(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "release", comments[0].Comment)
}
