package phenology

import "math"

// percentile returns the p-th percentile (0-100) of sorted values, interpolating
// linearly between the closest ranks (rank = p/100 * (n-1)).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	if lower < 0 {
		return sorted[0]
	}
	if lower >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
