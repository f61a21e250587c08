package stamp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/ir"
)

func st(status ir.Status, time int64) ir.Stamp {
	return ir.Stamp{Status: status, Time: time, Author: -1, Module: -2, Path: -3}
}

func TestIntern_IdempotentByValue(t *testing.T) {
	in := NewInterner()
	a, err := in.Intern(st(ir.StatusActive, 10))
	require.NoError(t, err)
	b, err := in.Intern(st(ir.StatusActive, 10))
	require.NoError(t, err)
	c, err := in.Intern(st(ir.StatusInactive, 10))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, ir.StampToken(1), a)
	assert.Equal(t, 2, in.Len())

	got, err := in.Stamp(c)
	require.NoError(t, err)
	assert.Equal(t, st(ir.StatusInactive, 10), got)
}

func TestIntern_RejectsInvalid(t *testing.T) {
	in := NewInterner()
	_, err := in.Intern(ir.Stamp{Status: ir.StatusActive, Time: 0, Author: -1, Module: -2, Path: -3})
	assert.Error(t, err)
	_, err = in.Intern(ir.Stamp{Status: ir.StatusActive, Time: 5, Author: -1, Module: 0, Path: -3})
	assert.Error(t, err)
	assert.Zero(t, in.Len())
}

func TestStamp_UnknownTokenNotFound(t *testing.T) {
	in := NewInterner()
	_, err := in.Stamp(7)
	assert.True(t, ir.IsNotFound(err))
	_, err = in.Stamp(0)
	assert.True(t, ir.IsNotFound(err))
}

func TestCompare_FollowsStampOrder(t *testing.T) {
	in := NewInterner()
	late, _ := in.Intern(st(ir.StatusActive, 20))
	early, _ := in.Intern(st(ir.StatusActive, 10))

	assert.Positive(t, in.Compare(late, early))
	assert.Negative(t, in.Compare(early, late))
	assert.Zero(t, in.Compare(early, early))
}

func TestIntern_ConcurrentConverges(t *testing.T) {
	in := NewInterner()
	const workers = 12
	tokens := make([][]ir.StampToken, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := int64(1); i <= 200; i++ {
				tok, err := in.Intern(st(ir.StatusActive, i))
				if err != nil {
					t.Errorf("Intern: %v", err)
					return
				}
				tokens[w] = append(tokens[w], tok)
			}
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		assert.Equal(t, tokens[0], tokens[w])
	}
	assert.Equal(t, 200, in.Len())
}

func TestAliasesAndComments(t *testing.T) {
	in := NewInterner()
	s := st(ir.StatusActive, 10)
	alias := st(ir.StatusActive, 11)

	require.NoError(t, in.AddAlias(s, alias))
	require.NoError(t, in.AddAlias(s, alias))
	assert.Equal(t, []ir.Stamp{alias}, in.Aliases(s))
	assert.Nil(t, in.Aliases(st(ir.StatusActive, 99)))

	require.NoError(t, in.SetComment(s, "bulk import"))
	c, ok := in.Comment(s)
	assert.True(t, ok)
	assert.Equal(t, "bulk import", c)

	assert.Equal(t, []ir.StampAlias{{Stamp: s, Alias: alias}}, in.AliasRecords())
	assert.Equal(t, []ir.StampComment{{Stamp: s, Comment: "bulk import"}}, in.CommentRecords())
}
