// Package regime fits piecewise power laws to scaling curves.
//
// A curve of interaction frequency against genomic distance is split into
// three distance regimes by two breakpoints. Each regime gets its own
// ordinary least-squares fit in log10-log10 space, so the slope is the
// scaling exponent alpha and 10^intercept is the prefactor D.
package regime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInsufficientData is returned when a regime cannot support a regression.
var ErrInsufficientData = errors.New("insufficient data")

// NumRegimes is the number of regimes produced by Fit.
const NumRegimes = 3

// Point is one observation of a scaling curve.
type Point struct {
	Distance float64
	Value    float64
}

// FitError reports an underdetermined regime.
type FitError struct {
	Regime int // 1-based
	Points int
	Reason string
}

func (e *FitError) Error() string {
	return fmt.Sprintf("regime %d: %s (%d points)", e.Regime, e.Reason, e.Points)
}

// Unwrap lets errors.Is match ErrInsufficientData.
func (e *FitError) Unwrap() error {
	return ErrInsufficientData
}

// Convention selects which columns a fit table exposes.
type Convention int

const (
	// ConventionAlpha reports "alpha +/- stderr" strings.
	ConventionAlpha Convention = iota
	// ConventionAlphaD reports numeric alphas and prefactors D.
	ConventionAlphaD
)

// ParseConvention maps "alpha" / "alpha_d" to a Convention.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alpha":
		return ConventionAlpha, nil
	case "alpha_d", "alphad", "d":
		return ConventionAlphaD, nil
	}
	return ConventionAlpha, fmt.Errorf("unknown convention %q", s)
}

// String implements fmt.Stringer.
func (c Convention) String() string {
	if c == ConventionAlphaD {
		return "alpha_d"
	}
	return "alpha"
}

// Row is the fit of a single regime.
type Row struct {
	Regime          int     `json:"regime"`
	Label           string  `json:"regimes"`
	N               int     `json:"n"`
	Alpha           float64 `json:"alpha"`
	AlphaStdErr     float64 `json:"alpha_stderr"`
	Intercept       float64 `json:"intercept"`
	InterceptStdErr float64 `json:"intercept_stderr"`
	Err             error   `json:"-"`
}

// OK reports whether the regime was fit.
func (r Row) OK() bool {
	return r.Err == nil
}

// D returns the prefactor 10^intercept.
func (r Row) D() float64 {
	return math.Pow(10, r.Intercept)
}

// AlphaText renders the exponent as "alpha +/- stderr", six decimals.
func (r Row) AlphaText() string {
	if r.Err != nil {
		return ""
	}
	return formatRounded(r.Alpha) + " +/- " + formatRounded(r.AlphaStdErr)
}

// Table holds the three regime fits of one curve, in regime order.
type Table struct {
	Rows    []Row
	Dropped int // points excluded for non-positive or non-finite coordinates
}

// Columns returns the header for the given convention.
func (t *Table) Columns(c Convention) []string {
	if c == ConventionAlphaD {
		return []string{"alphas", "Ds", "Regimes"}
	}
	return []string{"alpha", "Regimes"}
}

// Records renders rows as strings for the given convention.
// Unfit regimes produce empty value cells.
func (t *Table) Records(c Convention) [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if c == ConventionAlphaD {
			alpha, d := "", ""
			if r.OK() {
				alpha = strconv.FormatFloat(r.Alpha, 'g', -1, 64)
				d = strconv.FormatFloat(r.D(), 'g', -1, 64)
			}
			out = append(out, []string{alpha, d, r.Label})
			continue
		}
		out = append(out, []string{r.AlphaText(), r.Label})
	}
	return out
}

// Fit partitions points by the breakpoints end1 and end2 and fits each
// regime. The returned table always has NumRegimes rows. Regimes that
// cannot be fit carry a *FitError in Row.Err, and the same errors are
// joined into the returned error.
func Fit(points []Point, end1, end2 float64) (*Table, error) {
	parts, dropped := Partition(points, end1, end2)

	t := &Table{
		Rows:    make([]Row, 0, NumRegimes),
		Dropped: dropped,
	}
	labels := labelsFor(parts, end1, end2)

	var errs []error
	for i, part := range parts {
		row := fitRegime(part, i+1)
		row.Label = labels[i]
		if row.Err != nil {
			errs = append(errs, row.Err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, errors.Join(errs...)
}

// Partition splits points into the three regimes by comparing log10
// distance against log10(end1) and log10(end2). Points whose logarithm
// is undefined are dropped and counted.
func Partition(points []Point, end1, end2 float64) (parts [NumRegimes][]Point, dropped int) {
	le1 := math.Log10(end1)
	le2 := math.Log10(end2)

	for _, p := range points {
		x := math.Log10(p.Distance)
		y := math.Log10(p.Value)
		if !finite(x) || !finite(y) {
			dropped++
			continue
		}
		switch {
		case x < le1:
			parts[0] = append(parts[0], p)
		case x <= le2:
			parts[1] = append(parts[1], p)
		default:
			parts[2] = append(parts[2], p)
		}
	}
	return parts, dropped
}

func labelsFor(parts [NumRegimes][]Point, end1, end2 float64) [NumRegimes]string {
	lo := end1
	if len(parts[0]) > 0 {
		lo = parts[0][0].Distance
		for _, p := range parts[0][1:] {
			lo = math.Min(lo, p.Distance)
		}
	}
	hi := end2
	if len(parts[2]) > 0 {
		hi = parts[2][0].Distance
		for _, p := range parts[2][1:] {
			hi = math.Max(hi, p.Distance)
		}
	}
	e1, e2 := formatNumber(end1), formatNumber(end2)
	return [NumRegimes]string{
		formatNumber(lo) + "-" + e1,
		e1 + "-" + e2,
		e2 + "-" + formatNumber(hi),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRounded rounds to six decimals and prints the shortest repr:
// fixed point with a fractional part (1 -> "1.0"), or exponent form
// below 1e-4 and from 1e16 on (1.2e-05, 1e+21).
func formatRounded(v float64) string {
	if !finite(v) {
		return strings.ToLower(strconv.FormatFloat(v, 'g', -1, 64))
	}
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	if a := math.Abs(r); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(r, 'e', -1, 64)
	}
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
