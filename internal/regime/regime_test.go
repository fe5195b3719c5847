package regime

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pts(pairs ...float64) []Point {
	out := make([]Point, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Point{Distance: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestFit_DecadeScenario(t *testing.T) {
	points := pts(1, 1, 10, 10, 100, 100, 1000, 1000, 10000, 10000)

	table, err := Fit(points, 50, 500)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInsufficientData)
	require.Len(t, table.Rows, NumRegimes)

	r1, r2, r3 := table.Rows[0], table.Rows[1], table.Rows[2]

	require.True(t, r1.OK())
	assert.Equal(t, 2, r1.N)
	assert.InDelta(t, 1.0, r1.Alpha, 1e-9)
	assert.InDelta(t, 0.0, r1.AlphaStdErr, 1e-9)
	assert.Equal(t, "1.0 +/- 0.0", r1.AlphaText())
	assert.Equal(t, "1-50", r1.Label)

	require.False(t, r2.OK())
	var fe *FitError
	require.True(t, errors.As(r2.Err, &fe))
	assert.Equal(t, 2, fe.Regime)
	assert.Equal(t, 1, fe.Points)
	assert.Equal(t, "50-500", r2.Label)
	assert.Empty(t, r2.AlphaText())

	require.True(t, r3.OK())
	assert.InDelta(t, 1.0, r3.Alpha, 1e-9)
	assert.InDelta(t, 0.0, r3.AlphaStdErr, 1e-9)
	assert.Equal(t, "500-10000", r3.Label)
}

func TestFit_ExactPowerLaw(t *testing.T) {
	const (
		c = 3.5
		k = -1.08
	)
	var points []Point
	for d := 1000.0; d < 1e7; d *= 1.3 {
		points = append(points, Point{Distance: d, Value: c * math.Pow(d, k)})
	}

	// Breakpoints chosen so everything lands in regime 2.
	table, err := Fit(points, 1, 1e9)
	require.ErrorIs(t, err, ErrInsufficientData)

	r2 := table.Rows[1]
	require.True(t, r2.OK())
	assert.InDelta(t, k, r2.Alpha, 1e-6)
	assert.InDelta(t, 0, r2.AlphaStdErr, 1e-6)
	assert.InDelta(t, c, r2.D(), 1e-6)
	assert.InDelta(t, 0, r2.InterceptStdErr, 1e-6)
}

func TestFit_ThreeRegimesAllFit(t *testing.T) {
	var points []Point
	for d := 1.0; d <= 1e6; d *= 2 {
		v := math.Pow(d, -0.5)
		switch {
		case d >= 1e2 && d <= 1e4:
			v = 10 * math.Pow(d, -1)
		case d > 1e4:
			v = 1e4 * math.Pow(d, -1.75)
		}
		points = append(points, Point{Distance: d, Value: v})
	}

	table, err := Fit(points, 1e2, 1e4)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, table.Rows[0].Alpha, 1e-9)
	assert.InDelta(t, -1.0, table.Rows[1].Alpha, 1e-9)
	assert.InDelta(t, -1.75, table.Rows[2].Alpha, 1e-9)
}

func TestFit_NoisyStdErrPositive(t *testing.T) {
	points := pts(1, 1, 2, 2.5, 3, 2.7, 4, 4.4, 5, 4.6)
	table, _ := Fit(points, 10, 100)

	r1 := table.Rows[0]
	require.True(t, r1.OK())
	assert.Greater(t, r1.AlphaStdErr, 0.0)
	assert.Greater(t, r1.InterceptStdErr, 0.0)
}

func TestFit_Idempotent(t *testing.T) {
	points := pts(1, 3, 2, 5, 7, 11, 60, 40, 90, 31, 700, 20, 1200, 9, 5000, 2)

	a, errA := Fit(points, 50, 500)
	b, errB := Fit(points, 50, 500)

	assert.Equal(t, errA, errB)
	assert.Equal(t, a.Records(ConventionAlpha), b.Records(ConventionAlpha))
	assert.Equal(t, a.Records(ConventionAlphaD), b.Records(ConventionAlphaD))
}

func TestFit_DuplicateDistance(t *testing.T) {
	points := pts(2, 1, 2, 4, 100, 1, 200, 2, 1000, 5, 2000, 10)
	table, err := Fit(points, 50, 500)
	require.ErrorIs(t, err, ErrInsufficientData)

	var fe *FitError
	require.True(t, errors.As(table.Rows[0].Err, &fe))
	assert.Equal(t, "all distances identical", fe.Reason)
	assert.True(t, table.Rows[1].OK())
	assert.True(t, table.Rows[2].OK())
}

func TestFit_InvertedBreakpoints(t *testing.T) {
	points := pts(1, 1, 10, 10, 100, 100, 1000, 1000)
	table, err := Fit(points, 500, 50)
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.False(t, table.Rows[1].OK())
	assert.Equal(t, 0, table.Rows[1].N)
}

func TestFit_DropsNonPositive(t *testing.T) {
	points := pts(0, 1, -3, 2, 5, 0, 7, -1, 1, 1, 10, 10, math.Inf(1), 4)
	table, _ := Fit(points, 50, 500)
	assert.Equal(t, 5, table.Dropped)
	assert.Equal(t, 2, table.Rows[0].N)
}

func TestPartition_ExactAndMonotonic(t *testing.T) {
	var points []Point
	for i := 0; i < 200; i++ {
		d := math.Pow(10, float64(i%37)/6)
		v := float64(i%11) - 1 // some zero and negative values
		points = append(points, Point{Distance: d, Value: v})
	}

	parts, dropped := Partition(points, 30, 3000)

	total := dropped
	for _, p := range parts {
		total += len(p)
	}
	assert.Equal(t, len(points), total, "regimes plus dropped must cover the input")

	maxOf := func(ps []Point) float64 {
		m := math.Inf(-1)
		for _, p := range ps {
			m = math.Max(m, p.Distance)
		}
		return m
	}
	minOf := func(ps []Point) float64 {
		m := math.Inf(1)
		for _, p := range ps {
			m = math.Min(m, p.Distance)
		}
		return m
	}
	assert.LessOrEqual(t, maxOf(parts[0]), minOf(parts[1]))
	assert.LessOrEqual(t, maxOf(parts[1]), minOf(parts[2]))
}

func TestRecords_Conventions(t *testing.T) {
	points := pts(1, 2, 10, 20, 100, 200, 1000, 2000, 10000, 20000, 100000, 200000)
	table, err := Fit(points, 50, 5000)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "Regimes"}, table.Columns(ConventionAlpha))
	assert.Equal(t, []string{"alphas", "Ds", "Regimes"}, table.Columns(ConventionAlphaD))

	recs := table.Records(ConventionAlphaD)
	require.Len(t, recs, 3)
	assert.Equal(t, "50-5000", recs[1][2])
	assert.Equal(t, "5000-100000", recs[2][2])
	assert.InDelta(t, 2.0, table.Rows[0].D(), 1e-9)
}

func TestFormatRounded(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-0.0000001, "0.0"},
		{0.12345678, "0.123457"},
		{-1.5, "-1.5"},
		{250, "250.0"},
		{0.0001, "0.0001"},
		{0.000012, "1.2e-05"},
		{-0.00005, "-5e-05"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRounded(tt.in), "formatRounded(%v)", tt.in)
	}
}

func TestParseConvention(t *testing.T) {
	c, err := ParseConvention("")
	require.NoError(t, err)
	assert.Equal(t, ConventionAlpha, c)

	c, err = ParseConvention("alpha_d")
	require.NoError(t, err)
	assert.Equal(t, ConventionAlphaD, c)

	_, err = ParseConvention("beta")
	assert.Error(t, err)
}
