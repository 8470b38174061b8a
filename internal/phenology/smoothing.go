package phenology

import "math"

// gaussianTruncate is the kernel half-width in standard deviations
const gaussianTruncate = 4.0

// GaussianFilter convolves data with a normalized Gaussian kernel of standard
// deviation sigma. The kernel radius is int(4*sigma + 0.5) and the signal is
// mirrored at both edges including the edge sample (d c b a | a b c d | d c b a).
func GaussianFilter(data []float64, sigma float64) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n == 0 || sigma <= 0 {
		copy(result, data)
		return result
	}

	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	for i := 0; i < n; i++ {
		acc := 0.0
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * data[reflectIndex(i+k, n)]
		}
		result[i] = acc
	}
	return result
}

// reflectIndex maps an index into [0, n) by symmetric reflection about the edges
func reflectIndex(idx, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	idx %= period
	if idx < 0 {
		idx += period
	}
	if idx >= n {
		idx = period - 1 - idx
	}
	return idx
}
