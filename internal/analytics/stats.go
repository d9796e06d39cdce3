package analytics

import (
	"math"
	"sort"

	"riskdash/internal/harmonize"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Mean averages the finite values; invalid when there are none
func Mean(values []float64) harmonize.Num {
	sum := 0.0
	n := 0
	for _, v := range values {
		if finite(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return harmonize.Num{}
	}
	return harmonize.Some(sum / float64(n))
}

// Median of the finite values; invalid when there are none
func Median(values []float64) harmonize.Num {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return harmonize.Num{}
	}
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return harmonize.Some(sorted[mid])
	}
	return harmonize.Some((sorted[mid-1] + sorted[mid]) / 2)
}

// Regression is a simple least-squares fit of y on x
type Regression struct {
	N         int           `json:"n"`
	Pearson   harmonize.Num `json:"pearson"`
	Slope     harmonize.Num `json:"slope"`
	Intercept harmonize.Num `json:"intercept"`
	RSquared  harmonize.Num `json:"r_squared"`
}

// MinRegressionPoints is the smallest sample a Regression is fitted on
const MinRegressionPoints = 3

// Pearson computes the correlation coefficient over pairs where both values
// are finite. It is invalid with fewer than two pairs or zero variance.
func Pearson(x, y []float64) harmonize.Num {
	xs, ys := pairs(x, y)
	if len(xs) < 2 {
		return harmonize.Num{}
	}
	mx, my := Mean(xs).Value, Mean(ys).Value
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return harmonize.Num{}
	}
	r := sxy / math.Sqrt(sxx*syy)
	if !finite(r) {
		return harmonize.Num{}
	}
	return harmonize.Some(r)
}

// OLS fits y = intercept + slope*x. Fewer than MinRegressionPoints pairs or
// a constant x leaves the estimates invalid.
func OLS(x, y []float64) Regression {
	xs, ys := pairs(x, y)
	reg := Regression{N: len(xs)}
	if reg.N < MinRegressionPoints {
		return reg
	}
	mx, my := Mean(xs).Value, Mean(ys).Value
	var sxy, sxx float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
		sxx += (xs[i] - mx) * (xs[i] - mx)
	}
	if sxx == 0 {
		return reg
	}
	slope := sxy / sxx
	reg.Slope = harmonize.Some(slope)
	reg.Intercept = harmonize.Some(my - slope*mx)
	reg.Pearson = Pearson(xs, ys)
	if reg.Pearson.Valid {
		reg.RSquared = harmonize.Some(reg.Pearson.Value * reg.Pearson.Value)
	}
	return reg
}

func pairs(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if finite(x[i]) && finite(y[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	return xs, ys
}
