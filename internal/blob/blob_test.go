package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/blade-inspector/internal/models"
)

func TestConcatenateCloseMergesNearPairsKeepingLarger(t *testing.T) {
	kps := []models.Keypoint{
		{Centre: models.Point2D{X: 0, Y: 0}, Size: 5},
		{Centre: models.Point2D{X: 1, Y: 0}, Size: 9}, // within threshold of kp 0, bigger
		{Centre: models.Point2D{X: 100, Y: 100}, Size: 3},
	}

	out, descs := ConcatenateClose(kps, nil, 5)
	assert.Nil(t, descs)
	assert.Len(t, out, 2)

	sizes := make(map[float64]bool)
	for _, k := range out {
		sizes[k.Size] = true
	}
	assert.True(t, sizes[9])
	assert.False(t, sizes[5])
	assert.True(t, sizes[3])
}

func TestConcatenateCloseIsIdempotent(t *testing.T) {
	kps := []models.Keypoint{
		{Centre: models.Point2D{X: 0, Y: 0}, Size: 5},
		{Centre: models.Point2D{X: 2, Y: 0}, Size: 9},
		{Centre: models.Point2D{X: 2.5, Y: 0}, Size: 1},
		{Centre: models.Point2D{X: 50, Y: 50}, Size: 4},
	}

	first, _ := ConcatenateClose(kps, nil, 5)
	second, _ := ConcatenateClose(first, nil, 5)

	assert.ElementsMatch(t, first, second)
}

func TestConcatenateCloseCarriesDescriptorsAlongSurvivor(t *testing.T) {
	kps := []models.Keypoint{
		{Centre: models.Point2D{X: 0, Y: 0}, Size: 2},
		{Centre: models.Point2D{X: 1, Y: 1}, Size: 8},
	}
	descs := []models.Descriptor{
		{1, 1, 1},
		{2, 2, 2},
	}

	outKps, outDescs := ConcatenateClose(kps, descs, 5)
	assert.Len(t, outKps, 1)
	assert.Equal(t, models.Descriptor{2, 2, 2}, outDescs[0])
}

func TestConcatenateCloseBelowThresholdLeavesAllDistinct(t *testing.T) {
	kps := []models.Keypoint{
		{Centre: models.Point2D{X: 0, Y: 0}, Size: 5},
		{Centre: models.Point2D{X: 100, Y: 0}, Size: 5},
		{Centre: models.Point2D{X: 0, Y: 100}, Size: 5},
	}

	out, _ := ConcatenateClose(kps, nil, 1)
	assert.Len(t, out, 3)
}
