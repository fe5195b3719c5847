package render

import (
	"bytes"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// SVG renders the plot as a standalone SVG document. go-chart has no log
// axis, so values are plotted as log10 with 1eK tick labels.
func (r *PlotRenderer) SVG(p Plot) ([]byte, error) {
	b, ok := decadeBounds(p.Series)
	if !ok {
		return nil, ErrNoData
	}

	series := make([]chart.Series, 0, len(p.Series))
	for i, s := range p.Series {
		var xs, ys []float64
		for j := range s.X {
			if j >= len(s.Y) || s.X[j] <= 0 || s.Y[j] <= 0 || !finite(s.X[j]) || !finite(s.Y[j]) {
				continue
			}
			xs = append(xs, math.Log10(s.X[j]))
			ys = append(ys, math.Log10(s.Y[j]))
		}
		if len(xs) == 0 {
			continue
		}
		c := r.palette.AtIndex(i)
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: drawing.Color{R: c.R, G: c.G, B: c.B, A: 255},
				StrokeWidth: 2,
			},
		})
	}

	graph := chart.Chart{
		Title:  p.Title,
		Width:  r.config.Width,
		Height: r.config.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  p.XLabel,
			Range: &chart.ContinuousRange{Min: b.x0, Max: b.x1},
			Ticks: decadeTicks(b.x0, b.x1),
		},
		YAxis: chart.YAxis{
			Name:  p.YLabel,
			Range: &chart.ContinuousRange{Min: b.y0, Max: b.y1},
			Ticks: decadeTicks(b.y0, b.y1),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.SVG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decadeTicks(lo, hi float64) []chart.Tick {
	ticks := make([]chart.Tick, 0, int(hi-lo)+1)
	for k := lo; k <= hi; k++ {
		ticks = append(ticks, chart.Tick{Value: k, Label: decadeLabel(k)})
	}
	return ticks
}
