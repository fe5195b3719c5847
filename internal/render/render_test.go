package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"html/template"
	"image/png"
	"math"
	"strings"
	"testing"
)

func testPlot() Plot {
	var xs, a, b []float64
	for d := 1e3; d <= 1e7; d *= 2 {
		xs = append(xs, d)
		a = append(a, math.Pow(d, -1))
		b = append(b, 0.5*math.Pow(d, -0.8))
	}
	return Plot{
		Title:  "dataset_july_2021",
		XLabel: "distance",
		YLabel: "Interaction frequency",
		Series: []Series{
			{Name: "G1_WT", X: xs, Y: a},
			{Name: "M_WT", X: xs, Y: b},
		},
	}
}

func TestPNG_Dimensions(t *testing.T) {
	r := NewPlotRenderer(Config{Width: 640, Height: 480, Palette: "tab10"})

	data, err := r.PNG(testPlot())
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestPNG_NoData(t *testing.T) {
	r := NewPlotRenderer(Config{})
	p := Plot{Series: []Series{{Name: "empty", X: []float64{0, -1}, Y: []float64{1, 1}}}}
	if _, err := r.PNG(p); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := r.SVG(p); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData from SVG, got %v", err)
	}
}

func TestSVG_Document(t *testing.T) {
	r := NewPlotRenderer(Config{Width: 640, Height: 480})
	data, err := r.SVG(testPlot())
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "<svg") || !strings.Contains(s, "1e3") {
		t.Fatalf("unexpected svg output: %.200s", s)
	}
}

func TestHTML_IncludesTableAndLinks(t *testing.T) {
	r := NewPlotRenderer(Config{})
	page, err := r.HTML(Dashboard{
		Plot:       testPlot(),
		FitColumns: []string{"condition", "alpha", "Regimes"},
		FitRecords: [][]string{{"G1_WT", "-1.0 +/- 0.0", "1000-100000"}},
		Links:      []template.HTML{CSVLink("table.csv", "Download data used in the plot", []byte("a,b\n"))},
		Warnings:   []string{"M_WT: regime 2: fewer than 2 points (1 points)"},
	})
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	s := string(page)
	for _, want := range []string{"echarts", "G1_WT", "1000-100000", `download="table.csv"`, "fewer than 2 points"} {
		if !strings.Contains(s, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestHTML_Form(t *testing.T) {
	r := NewPlotRenderer(Config{})
	page, err := r.HTML(Dashboard{
		Plot: testPlot(),
		Form: &Form{
			Datasets: Options([]string{"july", "august"}, []string{"august"}),
			Stages:   Options([]string{"G1", "M"}, nil),
			Samples:  Options([]string{"WT", "K<O>"}, []string{"K<O>"}),
			End1:     "100000",
			End2:     "1000000",
		},
	})
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	s := string(page)
	form := strings.Index(s, "<form")
	if form < 0 || form > strings.Index(s, "echarts.init") {
		t.Fatalf("form should precede the chart")
	}
	for _, want := range []string{
		`<option value="july">july</option>`,
		`<option value="august" selected>august</option>`,
		`<option value="G1">G1</option>`,
		`<option value="K&lt;O&gt;" selected>K&lt;O&gt;</option>`,
		`value="1000000"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("form missing %q", want)
		}
	}
}

func TestHTML_NoForm(t *testing.T) {
	r := NewPlotRenderer(Config{})
	page, err := r.HTML(Dashboard{Plot: testPlot()})
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(string(page), "<form") {
		t.Fatalf("unexpected form in page without selection controls")
	}
}

func TestDataLink(t *testing.T) {
	payload := []byte("dist,int\n1,1\n")
	got := string(CSVLink("table.csv", "Download <data>", payload))
	want := `<a href="data:file/csv;base64,` + base64.StdEncoding.EncodeToString(payload) +
		`" download="table.csv" target="_blank">Download &lt;data&gt;</a>`
	if got != want {
		t.Fatalf("unexpected link:\n got %s\nwant %s", got, want)
	}

	plot := string(PlotLink("image/png", "plot.png", "Download plot", []byte{1, 2}))
	if strings.Contains(plot, "target=") || !strings.HasPrefix(plot, `<a href="data:image/png;base64,AQI="`) {
		t.Fatalf("unexpected plot link: %s", plot)
	}
}
