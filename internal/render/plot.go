// Package render draws scaling plots and builds downloadable exports.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/scaling-viz/server/pkg/colormap"
)

// ErrNoData is returned when no series has a positive point to draw.
var ErrNoData = errors.New("no plottable data")

// Config contains renderer configuration.
type Config struct {
	Width   int
	Height  int
	Palette string
}

// Series is one condition's curve in linear space, sorted by X.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// Plot is a log-log line plot.
type Plot struct {
	Title  string
	XLabel string
	YLabel string
	Series []Series
}

// PlotRenderer renders plots in several formats.
type PlotRenderer struct {
	config     Config
	palette    colormap.Palette
	bufferPool sync.Pool
}

// NewPlotRenderer creates a new plot renderer.
func NewPlotRenderer(cfg Config) *PlotRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	palette, ok := colormap.ByName(cfg.Palette)
	if !ok {
		palette = colormap.Deep
	}
	return &PlotRenderer{
		config:  cfg,
		palette: palette,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Palette returns the palette used for series colors.
func (r *PlotRenderer) Palette() colormap.Palette {
	return r.palette
}

const (
	marginLeft   = 80.0
	marginRight  = 20.0
	marginTop    = 40.0
	marginBottom = 60.0
)

// PNG renders the plot with log10 axes.
func (r *PlotRenderer) PNG(p Plot) ([]byte, error) {
	b, ok := decadeBounds(p.Series)
	if !ok {
		return nil, ErrNoData
	}

	w, h := float64(r.config.Width), float64(r.config.Height)
	dc := gg.NewContext(r.config.Width, r.config.Height)
	dc.SetColor(color.White)
	dc.Clear()

	pw := w - marginLeft - marginRight
	ph := h - marginTop - marginBottom
	px := func(lx float64) float64 { return marginLeft + (lx-b.x0)/(b.x1-b.x0)*pw }
	py := func(ly float64) float64 { return marginTop + (1-(ly-b.y0)/(b.y1-b.y0))*ph }

	// Grid and decade ticks.
	dc.SetLineWidth(1)
	for k := b.x0; k <= b.x1; k++ {
		x := px(k)
		dc.SetColor(color.RGBA{235, 235, 235, 255})
		dc.DrawLine(x, marginTop, x, marginTop+ph)
		dc.Stroke()
		dc.SetColor(color.Black)
		dc.DrawLine(x, marginTop+ph, x, marginTop+ph+5)
		dc.Stroke()
		dc.DrawStringAnchored(decadeLabel(k), x, marginTop+ph+16, 0.5, 0.5)
	}
	for k := b.y0; k <= b.y1; k++ {
		y := py(k)
		dc.SetColor(color.RGBA{235, 235, 235, 255})
		dc.DrawLine(marginLeft, y, marginLeft+pw, y)
		dc.Stroke()
		dc.SetColor(color.Black)
		dc.DrawLine(marginLeft-5, y, marginLeft, y)
		dc.Stroke()
		dc.DrawStringAnchored(decadeLabel(k), marginLeft-8, y, 1, 0.5)
	}

	dc.SetColor(color.Black)
	dc.DrawRectangle(marginLeft, marginTop, pw, ph)
	dc.Stroke()

	// Curves; non-positive points break the line.
	dc.SetLineWidth(1.75)
	for i, s := range p.Series {
		dc.SetColor(r.palette.AtIndex(i))
		drawing := false
		for j := range s.X {
			if j >= len(s.Y) {
				break
			}
			if s.X[j] <= 0 || s.Y[j] <= 0 || !finite(s.X[j]) || !finite(s.Y[j]) {
				drawing = false
				continue
			}
			x, y := px(math.Log10(s.X[j])), py(math.Log10(s.Y[j]))
			if !drawing {
				dc.NewSubPath()
				dc.MoveTo(x, y)
				drawing = true
				continue
			}
			dc.LineTo(x, y)
		}
		dc.Stroke()
	}

	// Legend, top right inside the axes.
	lx := marginLeft + pw - 10
	for i, s := range p.Series {
		ly := marginTop + 14 + float64(i)*16
		dc.SetColor(r.palette.AtIndex(i))
		dc.DrawLine(lx-20, ly, lx, ly)
		dc.Stroke()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(s.Name, lx-26, ly, 1, 0.5)
	}

	dc.SetColor(color.Black)
	if p.Title != "" {
		dc.DrawStringAnchored(p.Title, w/2, marginTop/2, 0.5, 0.5)
	}
	dc.DrawStringAnchored(p.XLabel, marginLeft+pw/2, h-18, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(-math.Pi/2, 18, marginTop+ph/2)
	dc.DrawStringAnchored(p.YLabel, 18, marginTop+ph/2, 0.5, 0.5)
	dc.Pop()

	return r.encodeContext(dc)
}

func (r *PlotRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// bounds are whole decades in log10 space.
type bounds struct {
	x0, x1, y0, y1 float64
}

func decadeBounds(series []Series) (bounds, bool) {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for _, s := range series {
		for j := range s.X {
			if j >= len(s.Y) || s.X[j] <= 0 || s.Y[j] <= 0 || !finite(s.X[j]) || !finite(s.Y[j]) {
				continue
			}
			lx, ly := math.Log10(s.X[j]), math.Log10(s.Y[j])
			b.x0, b.x1 = math.Min(b.x0, lx), math.Max(b.x1, lx)
			b.y0, b.y1 = math.Min(b.y0, ly), math.Max(b.y1, ly)
			found = true
		}
	}
	if !found {
		return b, false
	}
	b.x0, b.x1 = math.Floor(b.x0), math.Ceil(b.x1)
	b.y0, b.y1 = math.Floor(b.y0), math.Ceil(b.y1)
	if b.x1 == b.x0 {
		b.x1++
	}
	if b.y1 == b.y0 {
		b.y1++
	}
	return b, true
}

func decadeLabel(k float64) string {
	return fmt.Sprintf("1e%d", int(k))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
