// forecast/prep_test.go
package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 2.0, Median([]float64{math.NaN(), 1, 3}))
	assert.True(t, math.IsNaN(Median([]float64{math.NaN()})))
}

func TestImputeOutliersReplacesInjectedOutlierWithMedian(t *testing.T) {
	y := []float64{10, 11, 9, 10, 12, 10, 11, 9, 10, 10, 11, 9, 10, 12, 10, 11, 9, 10, 10, 200}
	median := Median(y)

	out, replaced := ImputeOutliers(y, 3)

	assert.Equal(t, 1, replaced)
	assert.Equal(t, median, out[len(out)-1])
	assert.Equal(t, y[:len(y)-1], out[:len(out)-1])
	// input is untouched
	assert.Equal(t, 200.0, y[len(y)-1])
}

func TestImputeOutliersFillsMissing(t *testing.T) {
	out, replaced := ImputeOutliers([]float64{1, math.NaN(), 3}, 3)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, []float64{1, 2, 3}, out)
}

func TestImputeOutliersConstantSeries(t *testing.T) {
	out, replaced := ImputeOutliers([]float64{4, 4, 4}, 3)
	assert.Zero(t, replaced)
	assert.Equal(t, []float64{4, 4, 4}, out)
}

func TestInterpolate(t *testing.T) {
	nan := math.NaN()
	// points on a line stay on the line under a natural spline
	out, ok := Interpolate([]float64{nan, 2, 4, nan, 8, 10, nan, 14, nan})
	require.True(t, ok)
	assert.Equal(t, 2.0, out[0])
	assert.InDelta(t, 6, out[3], 1e-9)
	assert.InDelta(t, 12, out[6], 1e-9)
	assert.Equal(t, 14.0, out[8])

	out, ok = Interpolate([]float64{nan, 5, nan})
	require.True(t, ok)
	assert.Equal(t, []float64{5, 5, 5}, out)

	out, ok = Interpolate([]float64{1, nan, 3})
	require.True(t, ok)
	assert.InDelta(t, 2, out[1], 1e-9)

	_, ok = Interpolate([]float64{nan, nan})
	assert.False(t, ok)
}

func TestStandardize(t *testing.T) {
	cols := Standardize([][]float64{{1, 2, 3, 4}, {7, 7, 7, 7}})

	mean, sd := stat.PopMeanStdDev(cols[0], nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, sd, 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, cols[1])
}

func TestPrincipalComponents(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float64{2, 4, 6, 8, 10, 12, 14, 16}
	c := []float64{1, -1, 1, -1, 1, -1, 1, -1}

	scores, explained, err := PrincipalComponents(Standardize([][]float64{a, b, c}), 2)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	require.Len(t, explained, 2)
	assert.Len(t, scores[0], len(a))

	assert.Greater(t, explained[0], explained[1])
	assert.InDelta(t, 1.0, explained[0]+explained[1], 1e-9)
	assert.InDelta(t, 0, stat.Mean(scores[0], nil), 1e-9)

	// asking for more components than features caps at the feature count
	scores, _, err = PrincipalComponents(Standardize([][]float64{a, c}), 4)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestPrincipalComponentsFewerRowsThanFeatures(t *testing.T) {
	cols := [][]float64{
		{1, 2, 4},
		{3, 1, 2},
		{0, 5, 1},
		{2, 2, 7},
	}

	scores, explained, err := PrincipalComponents(Standardize(cols), 4)
	require.NoError(t, err)
	assert.Len(t, scores, 3)
	assert.Len(t, explained, 3)
	assert.Len(t, scores[0], 3)
}

func TestSplitIndex(t *testing.T) {
	assert.Equal(t, 8, SplitIndex(10, 0.8))
	assert.Equal(t, 6, SplitIndex(7, 0.8))
	assert.Equal(t, 160, SplitIndex(200, 0.8))
}
