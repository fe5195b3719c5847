package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Dashboard is the interactive page for one dataset selection.
type Dashboard struct {
	Plot       Plot
	FitColumns []string
	FitRecords [][]string
	Links      []template.HTML
	Warnings   []string
	Form       *Form
}

// Form holds the selection controls shown above the chart. The page is
// reloaded with the submitted selection as query parameters.
type Form struct {
	Datasets []Option
	Stages   []Option
	Samples  []Option
	End1     string
	End2     string
}

// Option is one entry of a select control.
type Option struct {
	Value    string
	Selected bool
}

// Options marks every value found in selected. A nil selection marks nothing.
func Options(values, selected []string) []Option {
	set := make(map[string]bool, len(selected))
	for _, v := range selected {
		set[v] = true
	}
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Value: v, Selected: set[v]}
	}
	return out
}

var formTmpl = template.Must(template.New("form").Parse(`
<div style="font-family:sans-serif;max-width:900px;margin:1em auto">
<form method="get" style="display:flex;gap:1em;align-items:flex-start;flex-wrap:wrap">
<label>Dataset<br><select name="dataset">
{{- range .Datasets}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end -}}
</select></label>
<label>Stages<br><select multiple name="stages">
{{- range .Stages}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end -}}
</select></label>
<label>Samples<br><select multiple name="samples">
{{- range .Samples}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end -}}
</select></label>
<label>end1<br><input type="number" name="end1" min="0" step="any" value="{{.End1}}"></label>
<label>end2<br><input type="number" name="end2" min="0" step="any" value="{{.End2}}"></label>
<button type="submit">Fit</button>
</form>
</div>
`))

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`
<section style="font-family:sans-serif;max-width:900px;margin:1em auto">
{{- if .Warnings}}
<ul style="color:#a33">{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
{{- if .FitRecords}}
<table border="1" cellpadding="4" style="border-collapse:collapse">
<tr>{{range .FitColumns}}<th>{{.}}</th>{{end}}</tr>
{{- range .FitRecords}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- end}}
<p>{{range .Links}}{{.}}<br>{{end}}</p>
</section>
`))

// HTML renders the selection form, an echarts log-log line chart, the fit
// table and download links.
func (r *PlotRenderer) HTML(d Dashboard) ([]byte, error) {
	colors := make(opts.Colors, r.palette.Len())
	for i := range colors {
		colors[i] = r.palette.Hex(i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: d.Plot.Title,
			Width:     "900px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{Title: d.Plot.Title}),
		charts.WithColorsOpts(colors),
		charts.WithXAxisOpts(opts.XAxis{Name: d.Plot.XLabel, Type: "log"}),
		charts.WithYAxisOpts(opts.YAxis{Name: d.Plot.YLabel, Type: "log"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Right: "5%"}),
	)

	for _, s := range d.Plot.Series {
		data := make([]opts.LineData, 0, len(s.X))
		for j := range s.X {
			if j >= len(s.Y) || s.X[j] <= 0 || s.Y[j] <= 0 || !finite(s.X[j]) || !finite(s.Y[j]) {
				continue
			}
			data = append(data, opts.LineData{Value: []interface{}{s.X[j], s.Y[j]}})
		}
		line.AddSeries(s.Name, data)
	}

	page := components.NewPage()
	page.PageTitle = d.Plot.Title
	page.AddCharts(line)

	var chartHTML bytes.Buffer
	if err := page.Render(&chartHTML); err != nil {
		return nil, err
	}

	var extra bytes.Buffer
	if err := dashboardTmpl.Execute(&extra, d); err != nil {
		return nil, err
	}

	out := chartHTML.String()
	if d.Form != nil {
		var form bytes.Buffer
		if err := formTmpl.Execute(&form, d.Form); err != nil {
			return nil, err
		}
		out = insertAfterBodyTag(out, form.String())
	}
	if i := strings.LastIndex(out, "</body>"); i >= 0 {
		out = out[:i] + extra.String() + out[i:]
	} else {
		out += extra.String()
	}
	return []byte(out), nil
}

// insertAfterBodyTag places fragment at the start of the body, or at the
// start of the document when there is no body tag.
func insertAfterBodyTag(page, fragment string) string {
	i := strings.Index(page, "<body")
	if i < 0 {
		return fragment + page
	}
	j := strings.IndexByte(page[i:], '>')
	if j < 0 {
		return fragment + page
	}
	at := i + j + 1
	return page[:at] + fragment + page[at:]
}
