// Package service provides the filter, fit and export logic of the
// scaling dashboard.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"strconv"

	"github.com/scaling-viz/server/internal/cache"
	"github.com/scaling-viz/server/internal/data/dataset"
	"github.com/scaling-viz/server/internal/data/table"
	"github.com/scaling-viz/server/internal/regime"
	"github.com/scaling-viz/server/internal/render"
)

// ErrUnknownDataset is returned for dataset IDs that are not configured.
var ErrUnknownDataset = errors.New("unknown dataset")

// Defaults are the fit parameters used when a request leaves them unset.
type Defaults struct {
	End1   float64
	End2   float64
	Strict bool
}

// ScalingServiceConfig contains scaling service configuration.
type ScalingServiceConfig struct {
	Source   dataset.Source
	Loader   *dataset.Loader
	Cache    *cache.Manager
	Renderer *render.PlotRenderer
	Defaults Defaults
}

// ScalingService serves fits, plots and exports for one dataset.
type ScalingService struct {
	src      dataset.Source
	loader   *dataset.Loader
	cache    *cache.Manager
	renderer *render.PlotRenderer
	defaults Defaults
}

// NewScalingService creates a new scaling service.
func NewScalingService(cfg ScalingServiceConfig) *ScalingService {
	if cfg.Defaults.End1 <= 0 {
		cfg.Defaults.End1 = 1e5
	}
	if cfg.Defaults.End2 <= 0 {
		cfg.Defaults.End2 = 1e6
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewPlotRenderer(render.Config{})
	}
	return &ScalingService{
		src:      cfg.Source,
		loader:   cfg.Loader,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
		defaults: cfg.Defaults,
	}
}

// ID returns the dataset ID.
func (s *ScalingService) ID() string {
	return s.src.ID
}

// Source returns the dataset source.
func (s *ScalingService) Source() dataset.Source {
	return s.src
}

// Defaults returns the fit defaults.
func (s *ScalingService) Defaults() Defaults {
	return s.defaults
}

// Loaded reports whether the dataset table is already in memory.
func (s *ScalingService) Loaded() bool {
	return s.loader.Loaded(s.src.ID)
}

// Table returns the full parsed dataset.
func (s *ScalingService) Table(ctx context.Context) (*table.Table, error) {
	return s.loader.Load(ctx, s.src)
}

// Result is a filtered, fitted selection of a dataset.
type Result struct {
	Dataset     string
	ValueColumn string
	Convention  regime.Convention
	End1        float64
	End2        float64
	Frame       *Frame
	Fits        []ConditionFit
	Warnings    []string
	Dropped     int
}

// Columns returns the fit table header, led by the condition column.
func (r *Result) Columns() []string {
	var t regime.Table
	return append([]string{ColCondition}, t.Columns(r.Convention)...)
}

// Records returns every condition's fit rows, concatenated in condition order.
func (r *Result) Records() [][]string {
	var out [][]string
	for _, f := range r.Fits {
		for _, rec := range f.Table.Records(r.Convention) {
			out = append(out, append([]string{f.Condition}, rec...))
		}
	}
	return out
}

func (s *ScalingService) normalize(req Request) (Request, error) {
	if req.End1 == 0 {
		req.End1 = s.defaults.End1
	}
	if req.End2 == 0 {
		req.End2 = s.defaults.End2
	}
	for _, v := range []float64{req.End1, req.End2} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return req, fmt.Errorf("%w: breakpoint %v", ErrInvalidRequest, v)
		}
	}
	return req, nil
}

// Run loads the dataset, applies the request's filters and fits every
// condition.
func (s *ScalingService) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	valueCol, err := ResolveValueColumn(t, req.ValueColumn, s.src.ValueColumn)
	if err != nil {
		return nil, err
	}
	frame, err := Prepare(t, req, valueCol)
	if err != nil {
		return nil, err
	}
	fits, warnings, err := FitConditions(frame, req.End1, req.End2, req.Strict)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Dataset:     s.src.ID,
		ValueColumn: valueCol,
		Convention:  req.Convention,
		End1:        req.End1,
		End2:        req.End2,
		Frame:       frame,
		Fits:        fits,
		Warnings:    warnings,
	}
	for _, f := range fits {
		res.Dropped += f.Table.Dropped
	}
	return res, nil
}

// Selectors lists the values a request can filter on.
type Selectors struct {
	Dataset        string   `json:"dataset"`
	Stages         []string `json:"stages"`
	Samples        []string `json:"samples"`
	StageAvailable bool     `json:"stage_available"`
	ValueColumns   []string `json:"value_columns"`
	Baseline       bool     `json:"baseline"`
	Rows           int      `json:"rows"`
}

// Selectors returns the stage and sample values of the dataset.
func (s *ScalingService) Selectors(ctx context.Context) (*Selectors, error) {
	t, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	if !t.Has(ColSample) {
		return nil, &table.MissingColumnError{Column: ColSample}
	}

	out := &Selectors{
		Dataset:        s.src.ID,
		Stages:         []string{StageNotAvailable},
		StageAvailable: t.Has(ColStage),
		Baseline:       t.Has(ColCellLine) && t.Has(ColInductionTime),
		Rows:           t.Len(),
	}
	if out.StageAvailable {
		out.Stages, _ = t.Unique(ColStage)
	}
	out.Samples, _ = t.Unique(ColSample)
	for _, c := range []string{s.src.ValueColumn, ColInt, ColTAMSD} {
		if c != "" && t.Has(c) && !contains(out.ValueColumns, c) {
			out.ValueColumns = append(out.ValueColumns, c)
		}
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (s *ScalingService) key(kind string, req Request) string {
	return cache.Key(kind, s.src.ID, cache.Selection{
		Stages:      req.Stages,
		Samples:     req.Samples,
		ValueColumn: req.ValueColumn,
		End1:        req.End1,
		End2:        req.End2,
		Baseline:    req.SubtractBaseline,
		Convention:  req.Convention.String(),
		Strict:      req.Strict,
	})
}

// FitRecord is the JSON form of one regime fit.
type FitRecord struct {
	Condition string `json:"condition"`
	regime.Row
	Prefactor float64 `json:"D"`
	AlphaText string  `json:"alpha_text,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// FitResponse is the JSON body of a fit request.
type FitResponse struct {
	Dataset     string      `json:"dataset"`
	ValueColumn string      `json:"value_column"`
	End1        float64     `json:"end1"`
	End2        float64     `json:"end2"`
	Convention  string      `json:"convention"`
	Conditions  []string    `json:"conditions"`
	Columns     []string    `json:"columns"`
	Records     [][]string  `json:"records"`
	Fits        []FitRecord `json:"fits"`
	Dropped     int         `json:"dropped"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Response converts a result to its JSON form.
func (r *Result) Response() *FitResponse {
	out := &FitResponse{
		Dataset:     r.Dataset,
		ValueColumn: r.ValueColumn,
		End1:        r.End1,
		End2:        r.End2,
		Convention:  r.Convention.String(),
		Conditions:  r.Frame.Conditions,
		Columns:     r.Columns(),
		Records:     r.Records(),
		Fits:        []FitRecord{},
		Dropped:     r.Dropped,
		Warnings:    r.Warnings,
	}
	if out.Conditions == nil {
		out.Conditions = []string{}
	}
	if out.Records == nil {
		out.Records = [][]string{}
	}
	for _, f := range r.Fits {
		for _, row := range f.Table.Rows {
			rec := FitRecord{Condition: f.Condition, Row: row}
			if row.OK() {
				rec.Prefactor = row.D()
				rec.AlphaText = row.AlphaText()
			} else {
				rec.Error = row.Err.Error()
			}
			out.Fits = append(out.Fits, rec)
		}
	}
	return out
}

// FitJSON returns the encoded fit response, cached per selection.
func (s *ScalingService) FitJSON(ctx context.Context, req Request) ([]byte, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	key := s.key("fit", req)
	if data, ok := s.cache.GetFit(key); ok {
		return data, nil
	}

	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(res.Response())
	if err != nil {
		return nil, fmt.Errorf("failed to encode fit: %w", err)
	}
	s.cache.SetFit(key, data)
	return data, nil
}

// Plot builds the log-log plot of a result.
func (s *ScalingService) Plot(res *Result) render.Plot {
	ylabel := "Interaction frequency"
	if res.ValueColumn != ColInt {
		ylabel = res.ValueColumn
	}
	return render.Plot{
		Title:  res.Dataset,
		XLabel: "distance",
		YLabel: ylabel,
		Series: res.Frame.Series(),
	}
}

// PlotPNG returns the rendered PNG plot, cached per selection.
func (s *ScalingService) PlotPNG(ctx context.Context, req Request) ([]byte, error) {
	return s.cachedPlot(ctx, "png", req, s.renderer.PNG)
}

// PlotSVG returns the document export of the plot, cached per selection.
func (s *ScalingService) PlotSVG(ctx context.Context, req Request) ([]byte, error) {
	return s.cachedPlot(ctx, "svg", req, s.renderer.SVG)
}

func (s *ScalingService) cachedPlot(ctx context.Context, kind string, req Request, draw func(render.Plot) ([]byte, error)) ([]byte, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	key := s.key(kind, req)
	if data, ok := s.cache.GetPlot(key); ok {
		return data, nil
	}

	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := draw(s.Plot(res))
	if err != nil {
		return nil, fmt.Errorf("failed to render plot: %w", err)
	}

	// Oversized plots are still served, just not cached.
	_ = s.cache.SetPlot(key, data)
	return data, nil
}

// TableCSV exports the filtered rows used in the plot.
func (s *ScalingService) TableCSV(ctx context.Context, req Request) ([]byte, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return encodeCSV(res.Frame.Table)
}

// FitCSV exports the fit table.
func (s *ScalingService) FitCSV(ctx context.Context, req Request) ([]byte, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return FitTableCSV(res)
}

// FitTableCSV encodes a result's fit table with a leading index column.
func FitTableCSV(res *Result) ([]byte, error) {
	return encodeCSV(table.New(res.Columns(), res.Records()))
}

func encodeCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := table.Write(&buf, t); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Links are self-contained download anchors for a selection.
type Links struct {
	Plot  template.HTML `json:"plot"`
	Table template.HTML `json:"table"`
	Fit   template.HTML `json:"fit"`
}

// Links renders the plot, data and fit downloads of a selection.
func (s *ScalingService) Links(ctx context.Context, req Request) (*Links, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.links(res)
}

func (s *ScalingService) links(res *Result) (*Links, error) {
	plot, err := s.renderer.SVG(s.Plot(res))
	if err != nil && !errors.Is(err, render.ErrNoData) {
		return nil, err
	}
	data, err := encodeCSV(res.Frame.Table)
	if err != nil {
		return nil, err
	}
	fit, err := FitTableCSV(res)
	if err != nil {
		return nil, err
	}

	out := &Links{
		Table: render.CSVLink(res.Dataset+"_data.csv", "Download data used in the plot", data),
		Fit:   render.CSVLink(res.Dataset+"_fit.csv", "Download fit table", fit),
	}
	if plot != nil {
		out.Plot = render.PlotLink("image/svg+xml", res.Dataset+"_plot.svg", "Download plot", plot)
	}
	return out, nil
}

// Dashboard renders the interactive page of a selection. datasets lists
// the dataset IDs offered by the page's dataset control.
func (s *ScalingService) Dashboard(ctx context.Context, req Request, datasets []string) ([]byte, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	sel, err := s.Selectors(ctx)
	if err != nil {
		return nil, err
	}
	links, err := s.links(res)
	if err != nil {
		return nil, err
	}

	var anchors []template.HTML
	for _, l := range []template.HTML{links.Plot, links.Table, links.Fit} {
		if l != "" {
			anchors = append(anchors, l)
		}
	}
	warnings := res.Warnings
	if res.Dropped > 0 {
		warnings = append(warnings, strconv.Itoa(res.Dropped)+" points with non-positive or missing values were excluded")
	}
	return s.renderer.HTML(render.Dashboard{
		Plot:       s.Plot(res),
		FitColumns: res.Columns(),
		FitRecords: res.Records(),
		Links:      anchors,
		Warnings:   warnings,
		Form:       &render.Form{
			Datasets: render.Options(datasets, []string{s.src.ID}),
			Stages:   render.Options(sel.Stages, req.Stages),
			Samples:  render.Options(sel.Samples, req.Samples),
			End1:     strconv.FormatFloat(res.End1, 'f', -1, 64),
			End2:     strconv.FormatFloat(res.End2, 'f', -1, 64),
		},
	})
}
