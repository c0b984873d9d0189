// forecast/model.go
package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Order is the non-seasonal (p, d, q) order.
type Order struct{ P, D, Q int }

// SeasonalOrder is the seasonal (P, D, Q, s) order.
type SeasonalOrder struct{ P, D, Q, S int }

func (o Order) String() string { return fmt.Sprintf("(%d, %d, %d)", o.P, o.D, o.Q) }

func (s SeasonalOrder) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.P, s.D, s.Q, s.S)
}

// ErrInsufficientData means the differenced series is too short for the order.
var ErrInsufficientData = errors.New("series too short for model order")

// Estimator fits a seasonal regression model to a target series with
// exogenous regressors given column-wise.
type Estimator interface {
	Fit(y []float64, exog [][]float64, order Order, seasonal SeasonalOrder) (Fitted, error)
}

// Fitted is an estimated model.
type Fitted interface {
	AIC() float64
	// Forecast predicts the len(exog[0]) steps after the training sample.
	Forecast(exog [][]float64) ([]float64, error)
	Params() ModelParams
}

// ModelParams is the serializable form of a fitted model.
type ModelParams struct {
	Order         [3]int    `json:"order"`
	SeasonalOrder [4]int    `json:"seasonal_order"`
	Exog          []float64 `json:"exog"`
	AR            []float64 `json:"ar"`
	SeasonalAR    []float64 `json:"seasonal_ar"`
	MA            []float64 `json:"ma"`
	SeasonalMA    []float64 `json:"seasonal_ma"`
	Sigma2        float64   `json:"sigma2"`
	LogLikelihood float64   `json:"llf"`
	AIC           float64   `json:"aic"`
	NObs          int       `json:"nobs"`
}

// CSS estimates regression with seasonal ARIMA errors by conditional sum of
// squares: target and regressors are differenced, then the regression
// coefficients and the ARMA polynomials are found by Nelder-Mead on the
// residual sum of squares. AR and MA polynomials are kept stationary and
// invertible through a partial autocorrelation reparameterization.
type CSS struct {
	MaxEvaluations int
}

func (e CSS) Fit(y []float64, exog [][]float64, order Order, seasonal SeasonalOrder) (Fitted, error) {
	if seasonal.S <= 1 && (seasonal.P > 0 || seasonal.D > 0 || seasonal.Q > 0) {
		return nil, fmt.Errorf("seasonal period %d is invalid for seasonal order %s", seasonal.S, seasonal)
	}
	for _, col := range exog {
		if len(col) != len(y) {
			return nil, fmt.Errorf("exog length %d does not match target length %d", len(col), len(y))
		}
	}

	diff := differencePoly(order.D, seasonal.D, seasonal.S)
	w := applyPoly(diff, y)
	wx := make([][]float64, len(exog))
	for j, col := range exog {
		wx[j] = applyPoly(diff, col)
	}

	m := &sarimax{
		order:    order,
		seasonal: seasonal,
		diff:     diff,
		y:        append([]float64(nil), y...),
		exog:     exog,
		w:        w,
		wx:       wx,
	}

	k := len(exog)
	nARMA := order.P + seasonal.P + order.Q + seasonal.Q
	nParams := k + nARMA
	start := order.P + seasonal.P*seasonal.S
	if len(w)-start <= nParams+1 {
		return nil, fmt.Errorf("%w: %d observations after differencing for %d parameters", ErrInsufficientData, len(w), nParams)
	}

	x0 := make([]float64, nParams)
	copy(x0, olsInit(w, wx))

	objective := func(x []float64) float64 {
		m.unpack(x)
		ss, n := m.css()
		if n == 0 || math.IsNaN(ss) || math.IsInf(ss, 0) {
			return math.Inf(1)
		}
		return ss
	}

	if nARMA > 0 || k > 0 {
		maxEval := e.MaxEvaluations
		if maxEval <= 0 {
			maxEval = 4000
		}
		result, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			x0,
			&optimize.Settings{FuncEvaluations: maxEval},
			&optimize.NelderMead{},
		)
		if result == nil {
			return nil, fmt.Errorf("failed to fit %s x %s: %w", order, seasonal, err)
		}
		x0 = result.X
	}

	m.unpack(x0)
	ss, n := m.css()
	if n == 0 || math.IsNaN(ss) || math.IsInf(ss, 0) || ss <= 0 {
		return nil, fmt.Errorf("failed to fit %s x %s: degenerate residuals", order, seasonal)
	}
	m.nobs = n
	m.sigma2 = ss / float64(n)
	m.llf = -float64(n) / 2 * (math.Log(2*math.Pi*m.sigma2) + 1)
	// sigma2 counts as an estimated parameter
	m.aic = -2*m.llf + 2*float64(nParams+1)
	return m, nil
}

type sarimax struct {
	order    Order
	seasonal SeasonalOrder
	diff     []float64 // differencing polynomial, diff[0] == 1

	y    []float64
	exog [][]float64
	w    []float64   // differenced target
	wx   [][]float64 // differenced regressors

	beta        []float64
	ar, sar     []float64
	ma, sma     []float64
	arPoly      []float64 // φ(B)Φ(B^s), leading 1
	maPoly      []float64 // θ(B)Θ(B^s), leading 1
	sigma2, llf float64
	aic         float64
	nobs        int
	residuals   []float64
}

func (m *sarimax) unpack(x []float64) {
	k := len(m.wx)
	m.beta = x[:k]
	i := k
	take := func(n int) []float64 {
		v := x[i : i+n]
		i += n
		return v
	}
	m.ar = constrainStationary(take(m.order.P))
	m.sar = constrainStationary(take(m.seasonal.P))
	m.ma = negate(constrainStationary(take(m.order.Q)))
	m.sma = negate(constrainStationary(take(m.seasonal.Q)))

	m.arPoly = polyMul(lagPoly(m.ar, 1, -1), lagPoly(m.sar, m.seasonal.S, -1))
	m.maPoly = polyMul(lagPoly(m.ma, 1, 1), lagPoly(m.sma, m.seasonal.S, 1))
}

// css runs the residual recursion conditioned on the first len(arPoly)-1
// observations and returns the residual sum of squares and its length.
func (m *sarimax) css() (float64, int) {
	n := len(m.w)
	u := m.regressionErrors(m.w, m.wx)
	eps := make([]float64, n)
	start := len(m.arPoly) - 1

	var ss float64
	for t := start; t < n; t++ {
		e := 0.0
		for j, a := range m.arPoly {
			e += a * u[t-j]
		}
		for j := 1; j < len(m.maPoly) && t-j >= start; j++ {
			e -= m.maPoly[j] * eps[t-j]
		}
		eps[t] = e
		ss += e * e
	}
	m.residuals = eps
	if n-start <= 0 {
		return 0, 0
	}
	return ss, n - start
}

func (m *sarimax) regressionErrors(w []float64, wx [][]float64) []float64 {
	u := make([]float64, len(w))
	for t := range w {
		u[t] = w[t]
		for j, b := range m.beta {
			u[t] -= b * wx[j][t]
		}
	}
	return u
}

func (m *sarimax) AIC() float64 { return m.aic }

// Forecast runs the ARMA recursion forward with future shocks at zero, adds
// the regression on the differenced future regressors and integrates back.
func (m *sarimax) Forecast(exog [][]float64) ([]float64, error) {
	if len(exog) != len(m.exog) {
		return nil, fmt.Errorf("forecast needs %d regressors, got %d", len(m.exog), len(exog))
	}
	h := 0
	if len(exog) > 0 {
		h = len(exog[0])
	}
	if h == 0 {
		return nil, nil
	}

	lag := len(m.diff) - 1
	wxFuture := make([][]float64, len(exog))
	for j := range exog {
		if len(exog[j]) != h {
			return nil, fmt.Errorf("regressor %d has %d rows, want %d", j, len(exog[j]), h)
		}
		full := append(append([]float64(nil), m.exog[j]...), exog[j]...)
		wxFuture[j] = applyPoly(m.diff, full)[len(m.w):]
	}

	n := len(m.w)
	u := m.regressionErrors(m.w, m.wx)
	u = append(u, make([]float64, h)...)
	eps := append(append([]float64(nil), m.residuals...), make([]float64, h)...)
	start := len(m.arPoly) - 1

	wFuture := make([]float64, h)
	for s := 0; s < h; s++ {
		t := n + s
		var v float64
		for j := 1; j < len(m.arPoly); j++ {
			if t-j >= 0 {
				v -= m.arPoly[j] * u[t-j]
			}
		}
		for j := 1; j < len(m.maPoly); j++ {
			if t-j >= start && t-j < n {
				v += m.maPoly[j] * eps[t-j]
			}
		}
		u[t] = v
		wFuture[s] = v
		for j, b := range m.beta {
			wFuture[s] += b * wxFuture[j][s]
		}
	}

	// y_t = w_t - Σ_{j≥1} diff_j y_{t-j}
	y := append(append([]float64(nil), m.y...), make([]float64, h)...)
	base := len(m.y)
	for s := 0; s < h; s++ {
		t := base + s
		v := wFuture[s]
		for j := 1; j <= lag; j++ {
			v -= m.diff[j] * y[t-j]
		}
		y[t] = v
	}
	return y[base:], nil
}

func (m *sarimax) Params() ModelParams {
	return ModelParams{
		Order:         [3]int{m.order.P, m.order.D, m.order.Q},
		SeasonalOrder: [4]int{m.seasonal.P, m.seasonal.D, m.seasonal.Q, m.seasonal.S},
		Exog:          append([]float64(nil), m.beta...),
		AR:            append([]float64(nil), m.ar...),
		SeasonalAR:    append([]float64(nil), m.sar...),
		MA:            append([]float64(nil), m.ma...),
		SeasonalMA:    append([]float64(nil), m.sma...),
		Sigma2:        m.sigma2,
		LogLikelihood: m.llf,
		AIC:           m.aic,
		NObs:          m.nobs,
	}
}

// differencePoly expands (1-B)^d (1-B^s)^D.
func differencePoly(d, seasonalD, s int) []float64 {
	poly := []float64{1}
	for i := 0; i < d; i++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	for i := 0; i < seasonalD; i++ {
		seasonal := make([]float64, s+1)
		seasonal[0], seasonal[s] = 1, -1
		poly = polyMul(poly, seasonal)
	}
	return poly
}

// applyPoly returns Σ_j poly_j x_{t-j} for every t with a full window.
func applyPoly(poly, x []float64) []float64 {
	lag := len(poly) - 1
	if len(x) <= lag {
		return nil
	}
	out := make([]float64, len(x)-lag)
	for t := lag; t < len(x); t++ {
		var v float64
		for j, c := range poly {
			v += c * x[t-j]
		}
		out[t-lag] = v
	}
	return out
}

// lagPoly builds 1 + sign·(c_1 B^s + c_2 B^2s + ...).
func lagPoly(coef []float64, s int, sign float64) []float64 {
	poly := make([]float64, len(coef)*s+1)
	poly[0] = 1
	for i, c := range coef {
		poly[(i+1)*s] = sign * c
	}
	return poly
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// constrainStationary maps unconstrained values to the coefficients of a
// stationary AR polynomial via partial autocorrelations in (-1, 1).
func constrainStationary(x []float64) []float64 {
	p := len(x)
	phi := make([]float64, p)
	prev := make([]float64, p)
	for k := 0; k < p; k++ {
		r := math.Tanh(x[k])
		copy(prev, phi)
		phi[k] = r
		for j := 0; j < k; j++ {
			phi[j] = prev[j] - r*prev[k-1-j]
		}
	}
	return phi
}

func negate(x []float64) []float64 {
	for i := range x {
		x[i] = -x[i]
	}
	return x
}

// olsInit regresses w on the regressors for starting values.
func olsInit(w []float64, wx [][]float64) []float64 {
	k := len(wx)
	if k == 0 || len(w) <= k {
		return make([]float64, k)
	}
	a := mat.NewDense(len(w), k, nil)
	for j, col := range wx {
		if floats.Norm(col, 2) == 0 {
			return make([]float64, k)
		}
		a.SetCol(j, col)
	}
	var beta mat.VecDense
	if err := beta.SolveVec(a, mat.NewVecDense(len(w), append([]float64(nil), w...))); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return make([]float64, k)
		}
	}
	return mat.Col(nil, 0, &beta)
}
