package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "expectation failures: %v", result.Errors)
		})
	}
}

func TestRender(t *testing.T) {
	r := NewResult()
	assert.Equal(t, "\n", Render(r))

	r.AddTrace("a", "b")
	assert.Equal(t, "a\nb\n", Render(r))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
