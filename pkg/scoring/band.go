package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// band maps a raw feature onto [floor,100] piecewise-linearly. Values inside
// [lo,hi] score 100. Below lo the score ramps linearly from zero (at x=0) up
// to 100 (at x=lo); above hi it drops by slope per unit. Nothing scores
// below floor.
type band struct {
	lo, hi float64
	zero   float64
	slope  float64
	floor  float64
}

func (b band) score(x float64) float64 {
	var s float64
	switch {
	case x < b.lo:
		if x <= 0 {
			s = b.zero
		} else {
			s = b.zero + (100-b.zero)*x/b.lo
		}
	case x > b.hi:
		s = 100 - (x-b.hi)*b.slope
	default:
		s = 100
	}
	return math.Max(b.floor, math.Min(100, s))
}

// Feature bands.
var (
	pitchVariationBand = band{lo: 0.03, hi: 0.35, zero: 70, slope: 150, floor: 40}

	rhythmConsistencyBand = band{lo: 0.05, hi: 0.6, zero: 80, slope: 100, floor: 40}
	rhythmPaceBand        = band{lo: 0.2, hi: 0.8, zero: 40, slope: 100, floor: 40}
	rhythmSimilarityBand  = band{lo: 0, hi: 0.3, slope: 100, floor: 40}

	stressCountBand      = band{lo: 0, hi: 0.5, slope: 60, floor: 40}
	stressRegularityBand = band{lo: 0, hi: 0.5, slope: 80, floor: 40}

	fluencySilenceBand   = band{lo: 0.1, hi: 0.4, zero: 70, slope: 100, floor: 40}
	fluencyRateBand      = band{lo: 0.8, hi: 3.5, zero: 40, slope: 20, floor: 40}
	fluencyVariationBand = band{lo: 0.01, hi: 0.2, zero: 50, slope: 200, floor: 50}
)

// meanStd returns the mean and population standard deviation of x.
func meanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.Mean(x, nil), math.Sqrt(stat.PopVariance(x, nil))
}

// cv returns the coefficient of variation of x, or 0 when the mean is 0.
func cv(x []float64) float64 {
	mean, std := meanStd(x)
	if mean == 0 {
		return 0
	}
	return std / math.Abs(mean)
}

// bucketMeans averages x into n equal-width buckets.
func bucketMeans(x []float64, n int) []float64 {
	if n >= len(x) {
		return x
	}
	out := make([]float64, n)
	for i := range n {
		lo := i * len(x) / n
		hi := (i + 1) * len(x) / n
		out[i] = stat.Mean(x[lo:hi], nil)
	}
	return out
}

// correlation returns the Pearson correlation of a and b after averaging the
// longer series down to the length of the shorter one. The second return
// value is false when the correlation is undefined.
func correlation(a, b []float64) (float64, bool) {
	n := min(len(a), len(b))
	if n < 2 {
		return 0, false
	}
	x, y := bucketMeans(a, n), bucketMeans(b, n)
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// round1 rounds to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
