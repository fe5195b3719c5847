package service

import (
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/scaling-viz/server/internal/data/table"
)

// Columns used by baseline subtraction.
const (
	ColCellLine       = "cell_line"
	ColInductionTime  = "induction_time"
	BaselineInduction = "fixed"
)

// SubtractBaseline removes the per-cell-line systematic error from valueCol.
// The baseline of a cell line is the mean value of its "fixed" rows at
// their smallest distance, rounded to 4 decimals. Fixed rows are dropped
// from the result. Cell lines without fixed rows are left unchanged.
func SubtractBaseline(t *table.Table, valueCol string) (*table.Table, error) {
	lines, err := t.Column(ColCellLine)
	if err != nil {
		return nil, err
	}
	induction, err := t.Column(ColInductionTime)
	if err != nil {
		return nil, err
	}
	dist, err := t.Floats(ColDistance)
	if err != nil {
		return nil, err
	}
	vals, err := t.Floats(valueCol)
	if err != nil {
		return nil, err
	}

	type ref struct {
		dist float64
		sum  float64
		n    int
	}
	refs := make(map[string]*ref)
	for i, line := range lines {
		if induction[i] != BaselineInduction || math.IsNaN(dist[i]) || math.IsNaN(vals[i]) {
			continue
		}
		r := refs[line]
		switch {
		case r == nil || dist[i] < r.dist:
			refs[line] = &ref{dist: dist[i], sum: vals[i], n: 1}
		case dist[i] == r.dist:
			r.sum += vals[i]
			r.n++
		}
	}

	baseline := make(map[string]float64, len(refs))
	for line, r := range refs {
		baseline[line] = math.Round(r.sum/float64(r.n)*1e4) / 1e4
	}

	raw, _ := t.Column(valueCol)
	adjusted := make([]string, len(raw))
	for i, line := range lines {
		b, ok := baseline[line]
		if !ok || math.IsNaN(vals[i]) {
			adjusted[i] = raw[i]
			continue
		}
		adjusted[i] = strconv.FormatFloat(vals[i]-b, 'g', -1, 64)
	}
	for _, line := range uniqueStrings(lines) {
		if _, ok := baseline[line]; !ok {
			log.Warn().Str("component", "service").Str("cell_line", line).Msg("no fixed rows, baseline not subtracted")
		}
	}

	out, err := t.WithColumn(valueCol, adjusted)
	if err != nil {
		return nil, err
	}
	induction, _ = out.Column(ColInductionTime)
	return out.Filter(func(i int) bool { return induction[i] != BaselineInduction }), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
