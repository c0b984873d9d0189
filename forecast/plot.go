// forecast/plot.go
package forecast

import (
	"bytes"
	"fmt"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RenderPlot draws observed and forecast weekly values as a PNG.
func RenderPlot(weeks []time.Time, observed, predicted []float64) ([]byte, error) {
	if len(weeks) != len(observed) || len(weeks) != len(predicted) {
		return nil, fmt.Errorf("plot series lengths differ: %d weeks, %d observed, %d predicted",
			len(weeks), len(observed), len(predicted))
	}

	obs := make(plotter.XYs, len(weeks))
	pred := make(plotter.XYs, len(weeks))
	for i, w := range weeks {
		x := float64(w.Unix())
		obs[i] = plotter.XY{X: x, Y: observed[i]}
		pred[i] = plotter.XY{X: x, Y: predicted[i]}
	}

	p := plot.New()
	p.Title.Text = "Executive order forecast"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Executive Orders"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	if err := plotutil.AddLinePoints(p, "observed", obs, "forecast", pred); err != nil {
		return nil, fmt.Errorf("failed to add plot lines: %w", err)
	}

	wt, err := p.WriterTo(12*vg.Inch, 7*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode plot: %w", err)
	}
	return buf.Bytes(), nil
}
