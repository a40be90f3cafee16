package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreErrorIsMatchesOnKindOnly(t *testing.T) {
	cause := errors.New("disk full")
	err := NewErrorf(KindFailedCapturingFrame, "frame_0042.png", cause)

	assert.True(t, errors.Is(err, ErrFailedCapturingFrame))
	assert.False(t, errors.Is(err, ErrTimeoutCapturingFrame))
	assert.ErrorIs(t, err, cause)
}

func TestCoreErrorMessageFormatting(t *testing.T) {
	plain := NewError(KindNoBlobs)
	assert.Equal(t, "no_blobs", plain.Error())

	withCtx := NewErrorf(KindNoBlobs, "frame_3.png", nil)
	assert.Equal(t, "no_blobs (frame_3.png)", withCtx.Error())

	withCause := NewErrorf(KindNoBlobs, "", errors.New("boom"))
	assert.Equal(t, "no_blobs: boom", withCause.Error())
}
