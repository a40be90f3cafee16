package frameops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

func TestHalvingStepsExactPowerOfTwo(t *testing.T) {
	steps, ok := halvingSteps(models.Shape{H: 480, W: 640}, models.Shape{H: 120, W: 160})
	require.True(t, ok)
	assert.Equal(t, 2, steps)
}

func TestHalvingStepsSameShapeIsZeroSteps(t *testing.T) {
	steps, ok := halvingSteps(models.Shape{H: 100, W: 100}, models.Shape{H: 100, W: 100})
	require.True(t, ok)
	assert.Equal(t, 0, steps)
}

func TestHalvingStepsUnreachableShapeFails(t *testing.T) {
	_, ok := halvingSteps(models.Shape{H: 481, W: 640}, models.Shape{H: 120, W: 160})
	assert.False(t, ok)
}

func TestHalvingStepsDesiredLargerThanSourceFails(t *testing.T) {
	_, ok := halvingSteps(models.Shape{H: 100, W: 100}, models.Shape{H: 200, W: 200})
	assert.False(t, ok)
}

func TestEnsureShapeMatches(t *testing.T) {
	f := models.Frame{Shape: models.Shape{H: 10, W: 20}}
	assert.NoError(t, EnsureShape(f, models.Shape{H: 10, W: 20}))
}

func TestEnsureShapeMismatchErrors(t *testing.T) {
	f := models.Frame{Shape: models.Shape{H: 10, W: 20}}
	err := EnsureShape(f, models.Shape{H: 10, W: 21})
	assert.ErrorIs(t, err, models.ErrFailedCapturingFrame)
}

func TestDownscaleHalvesToDesiredShape(t *testing.T) {
	mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()
	frame := models.Frame{Mat: mat, Shape: models.Shape{H: 480, W: 640}}

	out := Downscale(frame, 1, models.Shape{H: 120, W: 160})
	defer out.Mat.Close()

	assert.Equal(t, models.Shape{H: 120, W: 160}, out.Shape)
	assert.Equal(t, 120, out.Mat.Rows())
	assert.Equal(t, 160, out.Mat.Cols())
}

func TestDownscaleFallsBackToDefaultDivisorWhenUnreachable(t *testing.T) {
	mat := gocv.NewMatWithSize(481, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()
	frame := models.Frame{Mat: mat, Shape: models.Shape{H: 481, W: 640}}

	out := Downscale(frame, 1, models.Shape{H: 120, W: 160})
	defer out.Mat.Close()

	// One fallback halving of an odd height rounds up: (481+1)/2 = 241.
	assert.Equal(t, models.Shape{H: 241, W: 320}, out.Shape)
}

func TestCropCenteredScalesBothSides(t *testing.T) {
	mat := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8UC1)
	defer mat.Close()
	frame := models.Frame{Mat: mat, Shape: models.Shape{H: 100, W: 200}, Gray: true}

	out := CropCentered(frame, 0.5)
	defer out.Mat.Close()

	assert.Equal(t, models.Shape{H: 50, W: 100}, out.Shape)
	assert.Equal(t, 50, out.Mat.Rows())
	assert.Equal(t, 100, out.Mat.Cols())
}

func TestCropCenteredClampsOutOfRangeDivisor(t *testing.T) {
	mat := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC1)
	defer mat.Close()
	frame := models.Frame{Mat: mat, Shape: models.Shape{H: 10, W: 10}}

	out := CropCentered(frame, 1.5)
	defer out.Mat.Close()
	assert.Equal(t, models.Shape{H: 10, W: 10}, out.Shape)
}
