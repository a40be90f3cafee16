package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

func uniformGrayFrame(rows, cols int, value uint8) models.Frame {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			mat.SetUCharAt(r, c, value)
		}
	}
	return models.Frame{Mat: mat, Shape: models.Shape{H: rows, W: cols}, Gray: true}
}

func TestDeltaIdenticalFramesProduceEmptyMask(t *testing.T) {
	normal := uniformGrayFrame(10, 10, 100)
	defer normal.Mat.Close()
	structured := uniformGrayFrame(10, 10, 100)
	defer structured.Mat.Close()

	mask := Delta(normal, structured, 10)
	defer mask.Mat.Close()

	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			assert.EqualValues(t, 0, mask.Mat.GetUCharAt(r, c))
		}
	}
}

func TestDeltaUniformDifferenceAboveThresholdIsAllWhite(t *testing.T) {
	normal := uniformGrayFrame(10, 10, 150)
	defer normal.Mat.Close()
	structured := uniformGrayFrame(10, 10, 100)
	defer structured.Mat.Close()

	mask := Delta(normal, structured, 10)
	defer mask.Mat.Close()

	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			assert.EqualValues(t, 255, mask.Mat.GetUCharAt(r, c))
		}
	}
}

func TestDeltaPreservesShape(t *testing.T) {
	normal := uniformGrayFrame(12, 8, 50)
	defer normal.Mat.Close()
	structured := uniformGrayFrame(12, 8, 50)
	defer structured.Mat.Close()

	mask := Delta(normal, structured, 10)
	defer mask.Mat.Close()
	assert.Equal(t, models.Shape{H: 12, W: 8}, mask.Shape)
}

func TestEnhanceDefaultConfigAppliesBlurKeepingShape(t *testing.T) {
	mask := uniformGrayFrame(20, 20, 255)
	defer mask.Mat.Close()

	out := Enhance(mask, DefaultEnhanceConfig)
	defer out.Mat.Close()

	assert.Equal(t, mask.Shape, out.Shape)
	assert.True(t, out.Gray)
}

func TestEnhanceWithMorphologyForcesFullIntensityBinary(t *testing.T) {
	mask := uniformGrayFrame(20, 20, 255)
	defer mask.Mat.Close()

	out := Enhance(mask, EnhanceConfig{ErodeKernel: 3, ErodeIters: 1, DilateKernel: 3, DilateIters: 1})
	defer out.Mat.Close()

	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			assert.EqualValues(t, 255, out.Mat.GetUCharAt(r, c))
		}
	}
}
