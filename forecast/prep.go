// forecast/prep.go
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewRows means the snapshot cannot support a train/test split.
var ErrTooFewRows = errors.New("too few rows to fit a model")

// Median of the non-missing values of xs, averaging the middle pair for even
// counts. NaN when every value is missing.
func Median(xs []float64) float64 {
	valid := dropNaN(xs)
	if len(valid) == 0 {
		return math.NaN()
	}
	sort.Float64s(valid)
	mid := len(valid) / 2
	if len(valid)%2 == 1 {
		return valid[mid]
	}
	return (valid[mid-1] + valid[mid]) / 2
}

// ImputeOutliers replaces values more than sigma sample standard deviations
// away from the median, and missing values, with the median. It returns the
// imputed copy and the number of values replaced.
func ImputeOutliers(y []float64, sigma float64) ([]float64, int) {
	valid := dropNaN(y)
	median := Median(y)
	var sd float64
	if len(valid) > 1 {
		sd = stat.StdDev(valid, nil)
	}

	out := make([]float64, len(y))
	replaced := 0
	for i, v := range y {
		if math.IsNaN(v) || (sd > 0 && math.Abs(v-median) > sigma*sd) {
			out[i] = median
			replaced++
			continue
		}
		out[i] = v
	}
	return out, replaced
}

// Interpolate fills missing values with a natural cubic spline through the
// present ones, indexed by position. Gaps before the first or after the last
// present value take that value. ok is false when nothing is present.
func Interpolate(y []float64) (out []float64, ok bool) {
	var xs, ys []float64
	for i, v := range y {
		if !math.IsNaN(v) {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}
	out = append([]float64(nil), y...)
	if len(xs) == 0 {
		return out, false
	}
	if len(xs) == len(y) {
		return out, true
	}

	var predict func(x float64) float64
	switch len(xs) {
	case 1:
		predict = func(float64) float64 { return ys[0] }
	case 2:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return out, false
		}
		predict = pl.Predict
	default:
		var nc interp.NaturalCubic
		if err := nc.Fit(xs, ys); err != nil {
			return out, false
		}
		predict = nc.Predict
	}

	first, last := xs[0], xs[len(xs)-1]
	for i, v := range out {
		if !math.IsNaN(v) {
			continue
		}
		switch x := float64(i); {
		case x < first:
			out[i] = ys[0]
		case x > last:
			out[i] = ys[len(ys)-1]
		default:
			out[i] = predict(x)
		}
	}
	return out, true
}

// Standardize centers every column and scales it to unit population
// variance. Constant columns are only centered.
func Standardize(columns [][]float64) [][]float64 {
	out := make([][]float64, len(columns))
	for j, col := range columns {
		mean, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		out[j] = make([]float64, len(col))
		for i, v := range col {
			out[j][i] = (v - mean) / sd
		}
	}
	return out
}

// PrincipalComponents projects the n×d data given as d columns onto its
// first k principal axes and returns k score columns with the share of
// variance each explains.
func PrincipalComponents(columns [][]float64, k int) ([][]float64, []float64, error) {
	d := len(columns)
	if d == 0 {
		return nil, nil, errors.New("no feature columns")
	}
	n := len(columns[0])
	// VectorsTo yields min(n, d) axes.
	k = min(k, n, d)
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: %d rows", ErrTooFewRows, n)
	}

	data := mat.NewDense(n, d, nil)
	for j, col := range columns {
		data.SetCol(j, col)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, nil, errors.New("principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	// stat.PC centers internally; scores are taken on centered data as well.
	centered := mat.DenseCopyOf(data)
	for j := 0; j < d; j++ {
		mean := stat.Mean(columns[j], nil)
		for i := 0; i < n; i++ {
			centered.Set(i, j, centered.At(i, j)-mean)
		}
	}

	var scores mat.Dense
	scores.Mul(centered, vecs.Slice(0, d, 0, k))

	var total float64
	for _, v := range vars {
		total += v
	}
	out := make([][]float64, k)
	explained := make([]float64, k)
	for j := 0; j < k; j++ {
		out[j] = mat.Col(nil, j, &scores)
		if total > 0 {
			explained[j] = vars[j] / total
		}
	}
	return out, explained, nil
}

// SplitIndex is the first test row of a chronological split keeping
// round(fraction·n) rows for training.
func SplitIndex(n int, fraction float64) int {
	return int(math.Round(float64(n) * fraction))
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
