package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameKeyFormatsNodeIterationKind(t *testing.T) {
	assert.Equal(t, "master/00000042/raw_normal.png", FrameKey("master", 42, "raw_normal"))
	assert.Equal(t, "slave/00000000/undistorted.png", FrameKey("slave", 0, "undistorted"))
}
