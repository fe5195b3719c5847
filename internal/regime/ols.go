package regime

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fitRegime runs a degree-1 least-squares fit of log10(value) on
// log10(distance). Standard errors come from s^2 (X^T X)^-1 with
// s^2 = RSS/(n-2); two points give an exact line and zero error.
func fitRegime(points []Point, regime int) Row {
	row := Row{Regime: regime, N: len(points)}

	if len(points) < 2 {
		row.Err = &FitError{Regime: regime, Points: len(points), Reason: "fewer than 2 points"}
		return row
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	distinct := false
	for i, p := range points {
		xs[i] = math.Log10(p.Distance)
		ys[i] = math.Log10(p.Value)
		if xs[i] != xs[0] {
			distinct = true
		}
	}
	if !distinct {
		row.Err = &FitError{Regime: regime, Points: len(points), Reason: "all distances identical"}
		return row
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	// Columns: slope, then intercept.
	design := mat.NewDense(len(xs), 2, nil)
	for i, x := range xs {
		design.Set(i, 0, x)
		design.Set(i, 1, 1)
	}
	var gram, inv mat.Dense
	gram.Mul(design.T(), design)
	if err := inv.Inverse(&gram); err != nil {
		row.Err = &FitError{Regime: regime, Points: len(points), Reason: "singular design matrix"}
		return row
	}

	var s2 float64
	if dof := len(xs) - 2; dof > 0 {
		var rss float64
		for i, x := range xs {
			r := ys[i] - (slope*x + intercept)
			rss += r * r
		}
		s2 = rss / float64(dof)
	}

	row.Alpha = slope
	row.Intercept = intercept
	row.AlphaStdErr = math.Sqrt(s2 * inv.At(0, 0))
	row.InterceptStdErr = math.Sqrt(s2 * inv.At(1, 1))
	return row
}
