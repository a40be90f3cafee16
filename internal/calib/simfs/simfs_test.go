package simfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

func writeFixturePair(t *testing.T, root, name string, rows, cols int) {
	t.Helper()
	normalDir := filepath.Join(root, "normal")
	slDir := filepath.Join(root, "sl")
	require.NoError(t, os.MkdirAll(normalDir, 0o755))
	require.NoError(t, os.MkdirAll(slDir, 0o755))

	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	defer mat.Close()
	require.True(t, gocv.IMWrite(filepath.Join(normalDir, name), mat))
	require.True(t, gocv.IMWrite(filepath.Join(slDir, name), mat))
}

func TestSourceCapturesRecordedPairsInNameOrder(t *testing.T) {
	root := t.TempDir()
	writeFixturePair(t, root, "b.png", 10, 15)
	writeFixturePair(t, root, "a.png", 20, 30)

	src, err := New(root)
	require.NoError(t, err)

	normal, structured, err := src.Capture(context.Background())
	require.NoError(t, err)
	defer normal.Mat.Close()
	defer structured.Mat.Close()

	assert.Equal(t, models.Shape{H: 20, W: 30}, normal.Shape)
	assert.Equal(t, models.Shape{H: 20, W: 30}, structured.Shape)
}

func TestSourceRearmAdvancesAndExhausts(t *testing.T) {
	root := t.TempDir()
	writeFixturePair(t, root, "a.png", 10, 10)

	src, err := New(root)
	require.NoError(t, err)

	n, s, err := src.Capture(context.Background())
	require.NoError(t, err)
	n.Mat.Close()
	s.Mat.Close()

	require.NoError(t, src.Rearm(context.Background()))

	_, _, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, models.ErrFailedCapturingFrame)
}

func TestNewMissingDirErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
