package stereo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/your-org/blade-inspector/internal/models"
)

// fakeCalib is a minimal calib.StereoCalibration for tests that never
// touch undistortion.
type fakeCalib struct {
	pl, pr, q                    mat.Dense
	focalPx, basePx, baseMM float64
}

func (f fakeCalib) UndistortLeft(fr models.Frame) (models.Frame, error)  { return fr, nil }
func (f fakeCalib) UndistortRight(fr models.Frame) (models.Frame, error) { return fr, nil }
func (f fakeCalib) ProjectionLeft() mat.Dense                            { return f.pl }
func (f fakeCalib) ProjectionRight() mat.Dense                           { return f.pr }
func (f fakeCalib) DisparityToDepth() mat.Dense                          { return f.q }
func (f fakeCalib) FocalLengthPx() float64                               { return f.focalPx }
func (f fakeCalib) BaselinePx() float64                                  { return f.basePx }
func (f fakeCalib) BaselineMM() float64                                  { return f.baseMM }

func TestMatchReturnsNoPointMatchesWhenEmpty(t *testing.T) {
	_, err := Match(nil, nil, nil, nil, MatchConfig{UseBlockMatching: true})
	assert.ErrorIs(t, err, models.ErrNo3DPointMatches)
}

func TestBlockMatchPairsNearbyEqualSizeKeypoints(t *testing.T) {
	left := []models.Keypoint{
		{Centre: models.Point2D{X: 100, Y: 50}, Size: 10},
		{Centre: models.Point2D{X: 200, Y: 60}, Size: 10},
	}
	right := []models.Keypoint{
		{Centre: models.Point2D{X: 95, Y: 50}, Size: 10},
		{Centre: models.Point2D{X: 198, Y: 60}, Size: 10},
	}
	matches := blockMatch(left, right, 20, 2.5)
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].RightIndex)
	assert.Equal(t, 1, matches[1].RightIndex)
}

func TestBlockMatchSkipsMismatchedSize(t *testing.T) {
	left := []models.Keypoint{{Centre: models.Point2D{X: 10, Y: 10}, Size: 10}}
	right := []models.Keypoint{{Centre: models.Point2D{X: 11, Y: 10}, Size: 40}}
	matches := blockMatch(left, right, 20, 2.5)
	assert.Empty(t, matches)
}

func TestBruteForceMatchRequiresMutualNearest(t *testing.T) {
	left := []models.Descriptor{{0, 0}, {10, 10}}
	right := []models.Descriptor{{0, 1}, {10, 11}}
	matches := bruteForceMatch(left, right)
	require.Len(t, matches, 2)
}

func TestFlannMatchAcceptsDistinctiveNearestNeighbour(t *testing.T) {
	left := []models.Descriptor{{0, 0, 0}}
	right := []models.Descriptor{
		{0, 0, 0},
		{100, 100, 100},
		{200, 200, 200},
		{300, 300, 300},
		{400, 400, 400},
		{500, 500, 500},
		{600, 600, 600},
	}
	matches := flannMatch(left, right)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].RightIndex)
}

func TestReconstructDisparitySkipsZeroDisparity(t *testing.T) {
	c := fakeCalib{focalPx: 500, basePx: 100, baseMM: 50}
	left := []models.Keypoint{{Centre: models.Point2D{X: 10, Y: 10}}}
	right := []models.Keypoint{{Centre: models.Point2D{X: 10, Y: 10}}} // zero disparity
	matches := []models.Match{{LeftIndex: 0, RightIndex: 0}}

	_, err := Reconstruct(matches, left, right, ReconstructConfig{UseTriangulation: false, Calib: c})
	assert.ErrorIs(t, err, models.ErrNo3DPointMatches)
}

func TestReconstructDisparityProducesPositiveZ(t *testing.T) {
	c := fakeCalib{focalPx: 500, basePx: 100, baseMM: 50}
	left := []models.Keypoint{{Centre: models.Point2D{X: 110, Y: 10}}}
	right := []models.Keypoint{{Centre: models.Point2D{X: 100, Y: 10}}}
	matches := []models.Match{{LeftIndex: 0, RightIndex: 0}}

	points, err := Reconstruct(matches, left, right, ReconstructConfig{UseTriangulation: false, Calib: c})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Greater(t, points[0].Z, 0.0)
}

func TestSigmaFilterZKeepsIdenticalValues(t *testing.T) {
	points := []models.Point3D{{Z: 1}, {Z: 1}, {Z: 1}}
	out, err := sigmaFilterZ(points)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestSigmaFilterZExcludesOutlier(t *testing.T) {
	points := []models.Point3D{{Z: 10}, {Z: 10.1}, {Z: 9.9}, {Z: 500}}
	out, err := sigmaFilterZ(points)
	require.NoError(t, err)
	for _, p := range out {
		assert.NotEqual(t, 500.0, p.Z)
	}
}
