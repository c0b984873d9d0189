// forecast/search.go
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrNoModel means every candidate order failed to fit.
var ErrNoModel = errors.New("no candidate model could be fitted")

// Candidate is one grid point and its score.
type Candidate struct {
	Order    Order
	Seasonal SeasonalOrder
	AIC      float64 // NaN until fitted
	Err      string
}

// Grid lists every (p,d,q) x (P,D,Q,s) with terms in 0..maxOrder, seasonal
// orders varying fastest.
func Grid(maxOrder, period int) []Candidate {
	var terms [][3]int
	for p := 0; p <= maxOrder; p++ {
		for d := 0; d <= maxOrder; d++ {
			for q := 0; q <= maxOrder; q++ {
				terms = append(terms, [3]int{p, d, q})
			}
		}
	}

	grid := make([]Candidate, 0, len(terms)*len(terms))
	for _, o := range terms {
		for _, so := range terms {
			grid = append(grid, Candidate{
				Order:    Order{P: o[0], D: o[1], Q: o[2]},
				Seasonal: SeasonalOrder{P: so[0], D: so[1], Q: so[2], S: period},
				AIC:      math.NaN(),
			})
		}
	}
	return grid
}

// Search fits every grid candidate on y and exog and returns the candidates
// with their scores and the index of the lowest AIC. Failed fits are kept
// with their error and never selected; ties go to the earlier candidate.
func Search(est Estimator, y []float64, exog [][]float64, grid []Candidate, logger *slog.Logger) ([]Candidate, int, error) {
	best := -1
	for i := range grid {
		c := &grid[i]
		fitted, err := est.Fit(y, exog, c.Order, c.Seasonal)
		if err != nil {
			c.Err = err.Error()
			logger.Debug("candidate failed", "order", c.Order.String(), "seasonal_order", c.Seasonal.String(), "error", err)
			continue
		}
		c.AIC = fitted.AIC()
		logger.Debug("candidate fitted", "order", c.Order.String(), "seasonal_order", c.Seasonal.String(), "aic", c.AIC)
		if math.IsNaN(c.AIC) || math.IsInf(c.AIC, 0) {
			c.Err = "non-finite AIC"
			continue
		}
		if best < 0 || c.AIC < grid[best].AIC {
			best = i
		}
	}
	if best < 0 {
		return grid, -1, fmt.Errorf("%w (%d candidates)", ErrNoModel, len(grid))
	}
	return grid, best, nil
}
