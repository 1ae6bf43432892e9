package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetric_Between(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{3, 4}

	assert.Equal(t, 5.0, Euclidean.between(a, b))
	assert.Equal(t, 7.0, Manhattan.between(a, b))

	// identical directions have zero cosine distance
	assert.InDelta(t, 0, Cosine.between([]float64{1, 1}, []float64{2, 2}), 1e-12)
	// orthogonal directions have cosine distance 1
	assert.InDelta(t, 1, Cosine.between([]float64{1, 0}, []float64{0, 1}), 1e-12)
	// zero vectors are treated as maximally distant
	assert.Equal(t, 1.0, Cosine.between(a, []float64{1, 2}))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("manhattan")
	require.NoError(t, err)
	assert.Equal(t, Manhattan, m)

	_, err = ParseMetric("chebyshev")
	assert.Error(t, err)
}

func TestComputeDistances_MatchesPairwise(t *testing.T) {
	contexts := [][]float64{{0, 0}, {1, 1}}
	history := [][]float64{{3, 4}, {0, 0}, {1, 1}}

	got := computeDistances(contexts, history, Euclidean, 2)

	require.Len(t, got, 2)
	for i, c := range contexts {
		for j, h := range history {
			assert.InDelta(t, Euclidean.between(c, h), got[i][j], 1e-12)
		}
	}
}

func TestDistanceCache_LifetimeAndFills(t *testing.T) {
	cache := &DistanceCache{}
	assert.False(t, cache.Populated())

	d := Distances{{1, 2}}
	cache.Fill(d, Manhattan)
	assert.True(t, cache.Populated())
	assert.Equal(t, d, cache.Distances())
	assert.Equal(t, Manhattan, cache.Metric())
	assert.Equal(t, 1, cache.Fills())

	cache.Reset()
	assert.False(t, cache.Populated())
	assert.Equal(t, Metric(""), cache.Metric())
	assert.Equal(t, 1, cache.Fills()) // fills count survives chunk boundaries
}
