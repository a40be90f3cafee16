package coordinator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/blade-inspector/internal/models"
)

func TestStageKindExtractsCoreErrorKind(t *testing.T) {
	err := models.NewError(models.KindNoBlobs)
	assert.Equal(t, string(models.KindNoBlobs), stageKind(err))
}

func TestStageKindWrappedCoreErrorStillResolves(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", models.NewError(models.KindFailedCapturingFrame))
	assert.Equal(t, string(models.KindFailedCapturingFrame), stageKind(err))
}

func TestStageKindNonCoreErrorIsUnknown(t *testing.T) {
	assert.Equal(t, "unknown", stageKind(errors.New("boom")))
}
