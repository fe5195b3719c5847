package service

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/scaling-viz/server/internal/data/table"
	"github.com/scaling-viz/server/internal/regime"
	"github.com/scaling-viz/server/internal/render"
)

// Column names of the scaling table format.
const (
	ColDistance  = "dist"
	ColInt       = "int"
	ColTAMSD     = "tamsd"
	ColStage     = "stg"
	ColSample    = "sample"
	ColCondition = "condition"
)

// StageNotAvailable labels rows of datasets without a stage column.
const StageNotAvailable = "stage not available"

// ErrInvalidRequest is returned for unusable request parameters.
var ErrInvalidRequest = errors.New("invalid request")

// Request selects and fits part of a dataset.
type Request struct {
	Stages           []string // nil means no stage filter; empty selects nothing
	Samples          []string // nil means no sample filter; empty selects nothing
	ValueColumn      string
	End1             float64
	End2             float64
	SubtractBaseline bool
	Strict           bool
	Convention       regime.Convention
}

// Frame is the filtered table with a condition label on every row.
type Frame struct {
	Table          *table.Table
	ValueColumn    string
	Conditions     []string
	StageAvailable bool
}

// ConditionFit is the regime table of one condition.
type ConditionFit struct {
	Condition string
	Table     *regime.Table
}

// ResolveValueColumn picks the fit target: the requested column, then
// the dataset's preferred column, then "int", then "tamsd".
func ResolveValueColumn(t *table.Table, requested, preferred string) (string, error) {
	if requested != "" {
		if !t.Has(requested) {
			return "", &table.MissingColumnError{Column: requested}
		}
		return requested, nil
	}
	for _, c := range []string{preferred, ColInt, ColTAMSD} {
		if c != "" && t.Has(c) {
			return c, nil
		}
	}
	return "", &table.MissingColumnError{Column: ColInt}
}

// Prepare applies the request's filters and labels each row with its
// condition, stage + "_" + sample.
func Prepare(t *table.Table, req Request, valueCol string) (*Frame, error) {
	for _, c := range []string{ColDistance, ColSample, valueCol} {
		if !t.Has(c) {
			return nil, &table.MissingColumnError{Column: c}
		}
	}

	if req.SubtractBaseline {
		var err error
		if t, err = SubtractBaseline(t, valueCol); err != nil {
			return nil, err
		}
	}

	stageAvailable := t.Has(ColStage)
	if !stageAvailable {
		sentinel := make([]string, t.Len())
		for i := range sentinel {
			sentinel[i] = StageNotAvailable
		}
		var err error
		if t, err = t.WithColumn(ColStage, sentinel); err != nil {
			return nil, err
		}
	}

	t = filterIn(t, ColStage, req.Stages)
	t = filterIn(t, ColSample, req.Samples)

	stages, _ := t.Column(ColStage)
	samples, _ := t.Column(ColSample)
	labels := make([]string, t.Len())
	for i := range labels {
		labels[i] = stages[i] + "_" + samples[i]
	}
	t, err := t.WithColumn(ColCondition, labels)
	if err != nil {
		return nil, err
	}
	conditions, _ := t.Unique(ColCondition)

	return &Frame{
		Table:          t,
		ValueColumn:    valueCol,
		Conditions:     conditions,
		StageAvailable: stageAvailable,
	}, nil
}

func filterIn(t *table.Table, col string, values []string) *table.Table {
	if values == nil {
		return t
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	cells, _ := t.Column(col)
	return t.Filter(func(i int) bool {
		_, ok := set[cells[i]]
		return ok
	})
}

// Points returns the (distance, value) pairs of one condition in row order.
func (f *Frame) Points(condition string) []regime.Point {
	conds, _ := f.Table.Column(ColCondition)
	dist, _ := f.Table.Floats(ColDistance)
	vals, _ := f.Table.Floats(f.ValueColumn)

	var out []regime.Point
	for i, c := range conds {
		if c == condition {
			out = append(out, regime.Point{Distance: dist[i], Value: vals[i]})
		}
	}
	return out
}

// FitConditions runs the regime fitter once per condition, in the order
// conditions first appear. In strict mode the first underdetermined
// regime aborts; otherwise failures become warnings.
func FitConditions(f *Frame, end1, end2 float64, strict bool) ([]ConditionFit, []string, error) {
	fits := make([]ConditionFit, 0, len(f.Conditions))
	var warnings []string
	for _, cond := range f.Conditions {
		tbl, err := regime.Fit(f.Points(cond), end1, end2)
		if err != nil {
			if strict {
				return nil, nil, fmt.Errorf("condition %q: %w", cond, err)
			}
			for _, row := range tbl.Rows {
				if row.Err != nil {
					warnings = append(warnings, fmt.Sprintf("%s: %v", cond, row.Err))
				}
			}
		}
		fits = append(fits, ConditionFit{Condition: cond, Table: tbl})
	}
	return fits, warnings, nil
}

// Series aggregates each condition's curve for plotting: values sharing
// a distance are averaged, and points are sorted by distance.
func (f *Frame) Series() []render.Series {
	conds, _ := f.Table.Column(ColCondition)
	dist, _ := f.Table.Floats(ColDistance)
	vals, _ := f.Table.Floats(f.ValueColumn)

	type acc struct {
		sum float64
		n   int
	}
	byCond := make(map[string]map[float64]*acc, len(f.Conditions))
	for i, c := range conds {
		if math.IsNaN(dist[i]) || math.IsNaN(vals[i]) {
			continue
		}
		m := byCond[c]
		if m == nil {
			m = make(map[float64]*acc)
			byCond[c] = m
		}
		a := m[dist[i]]
		if a == nil {
			a = &acc{}
			m[dist[i]] = a
		}
		a.sum += vals[i]
		a.n++
	}

	out := make([]render.Series, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		m := byCond[c]
		xs := make([]float64, 0, len(m))
		for d := range m {
			xs = append(xs, d)
		}
		sort.Float64s(xs)
		ys := make([]float64, len(xs))
		for i, d := range xs {
			ys[i] = m[d].sum / float64(m[d].n)
		}
		out = append(out, render.Series{Name: c, X: xs, Y: ys})
	}
	return out
}
