package statutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterOneSigmaReducesOrPreservesSpread(t *testing.T) {
	xs := []float64{10, 10.1, 9.9, 10.05, 9.95, 50} // 50 is a wild outlier
	filtered := FilterOneSigma(xs)

	_, originalStd := MeanStdDev(xs)
	_, filteredStd := MeanStdDev(filtered)

	assert.Less(t, filteredStd, originalStd)
	assert.NotContains(t, filtered, 50.0)
}

func TestMeanStdDevEdgeCases(t *testing.T) {
	mean, std := MeanStdDev(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)

	mean, std = MeanStdDev([]float64{7})
	assert.Equal(t, 7.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestWithinOneSigma(t *testing.T) {
	assert.True(t, WithinOneSigma(10, 10, 1))
	assert.True(t, WithinOneSigma(11, 10, 1))
	assert.True(t, WithinOneSigma(9, 10, 1))
	assert.False(t, WithinOneSigma(11.1, 10, 1))
}
