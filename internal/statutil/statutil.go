// Package statutil collects the small mean/stddev/sigma-filter helpers
// shared by ScaleCalibrator and Stereopsis, both of which filter a
// sample by distance from its own mean.
package statutil

import "gonum.org/v1/gonum/stat"

// MeanStdDev returns the (unweighted) mean and standard deviation of xs.
// Returns (0, 0) for an empty or single-element slice.
func MeanStdDev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// WithinOneSigma reports whether x is within one standard deviation of
// mean, i.e. |x-mean| <= stddev.
func WithinOneSigma(x, mean, stddev float64) bool {
	d := x - mean
	if d < 0 {
		d = -d
	}
	return d <= stddev
}

// FilterOneSigma returns the subset of xs within one standard deviation
// of the sample mean.
func FilterOneSigma(xs []float64) []float64 {
	mean, stddev := MeanStdDev(xs)
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if WithinOneSigma(x, mean, stddev) {
			out = append(out, x)
		}
	}
	return out
}
