package edge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/blade-inspector/internal/models"
)

func TestSigmaFilterPointsDropsOutlier(t *testing.T) {
	points := []models.Point2D{
		{X: 10, Y: 10},
		{X: 11, Y: 10},
		{X: 10, Y: 11},
		{X: 9, Y: 9},
		{X: 500, Y: 500}, // wild outlier
	}
	out := sigmaFilterPoints(points)
	for _, p := range out {
		assert.NotEqual(t, 500.0, p.X)
	}
	assert.Less(t, len(out), len(points))
}

func TestSigmaFilterPointsFallsBackWhenTooFewSurvive(t *testing.T) {
	// One point is within one sigma on both axes, one fails only the X
	// check and one fails only the Y check: the AND of both leaves a
	// single survivor, below the 2-point floor, so the filter falls
	// back to returning every input point unchanged.
	points := []models.Point2D{
		{X: 0, Y: 0},
		{X: 1000, Y: 0},
		{X: 0, Y: 1000},
	}
	out := sigmaFilterPoints(points)
	assert.Equal(t, points, out)
}

func TestFitNearVerticalLineRecoversRhoAndTheta(t *testing.T) {
	// Points along x=42 (a vertical line, theta=0).
	points := []models.Point2D{
		{X: 42, Y: 10},
		{X: 42, Y: 20},
		{X: 42, Y: 30},
		{X: 42, Y: 40},
	}
	rho, theta, ok := fitNear(points, false)
	assert.True(t, ok)
	assert.InDelta(t, 42.0, rho, 1.0)
	assert.InDelta(t, 0.0, math.Mod(theta+math.Pi, math.Pi), 0.1)
}

func TestFitNearHorizontalLineRecoversRhoAndTheta(t *testing.T) {
	// Points along y=17 (a horizontal line, theta=pi/2).
	points := []models.Point2D{
		{X: 10, Y: 17},
		{X: 20, Y: 17},
		{X: 30, Y: 17},
		{X: 40, Y: 17},
	}
	rho, theta, ok := fitNear(points, true)
	assert.True(t, ok)
	assert.InDelta(t, 17.0, rho, 1.0)
	assert.InDelta(t, math.Pi/2, theta, 0.2)
}

func TestFitNearNoPointsFails(t *testing.T) {
	_, _, ok := fitNear(nil, true)
	assert.False(t, ok)
}

func TestMedianFEvenAndOdd(t *testing.T) {
	assert.InDelta(t, 2.0, medianF([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2.5, medianF([]float64{1, 2, 3, 4}), 1e-9)
}
