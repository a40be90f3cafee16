// Package simfs implements a filesystem-backed calib.FrameSource that
// replays recorded normal/structured frame pairs from a directory, for
// the "simulate" CLI subcommand (spec §6). This is in-scope because
// simulate is one of the core's own CLI surfaces, unlike the real
// camera-driver FrameSource a live flight uses.
package simfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

// Source replays <dir>/normal/<name>.<ext> and <dir>/sl/<name>.<ext>
// pairs in filename order, matching the consumed scale_calib_folder
// layout of spec §6.
type Source struct {
	normalDir string
	slDir     string
	names     []string
	pos       int
}

// New opens a simfs.Source rooted at dir, expecting "normal" and "sl"
// subdirectories with matching filenames.
func New(dir string) (*Source, error) {
	normalDir := filepath.Join(dir, "normal")
	slDir := filepath.Join(dir, "sl")

	entries, err := os.ReadDir(normalDir)
	if err != nil {
		return nil, fmt.Errorf("read normal dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return &Source{normalDir: normalDir, slDir: slDir, names: names}, nil
}

// Capture returns the next recorded pair, advancing the internal cursor.
func (s *Source) Capture(ctx context.Context) (normal, structured models.Frame, err error) {
	if s.pos >= len(s.names) {
		return models.Frame{}, models.Frame{}, models.NewError(models.KindFailedCapturingFrame)
	}
	name := s.names[s.pos]

	nMat := gocv.IMRead(filepath.Join(s.normalDir, name), gocv.IMReadColor)
	if nMat.Empty() {
		return models.Frame{}, models.Frame{}, models.NewErrorf(models.KindFailedCapturingFrame, name, nil)
	}
	slMat := gocv.IMRead(filepath.Join(s.slDir, name), gocv.IMReadColor)
	if slMat.Empty() {
		nMat.Close()
		return models.Frame{}, models.Frame{}, models.NewErrorf(models.KindFailedCapturingFrame, name, nil)
	}

	normal = models.Frame{Mat: nMat, Shape: models.Shape{H: nMat.Rows(), W: nMat.Cols()}}
	structured = models.Frame{Mat: slMat, Shape: models.Shape{H: slMat.Rows(), W: slMat.Cols()}}
	return normal, structured, nil
}

// Rearm advances to the next recorded pair.
func (s *Source) Rearm(ctx context.Context) error {
	s.pos++
	return nil
}
