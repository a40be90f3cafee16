// Package calib defines the external-collaborator interfaces the core
// consumes rather than implements: camera capture (FrameSource) and
// stereo calibration (StereoCalibration), per spec §1's explicit
// out-of-scope boundary.
package calib

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/your-org/blade-inspector/internal/models"
)

// FrameSource yields synchronized normal/structured-light frame pairs
// and can be re-armed for the next capture. Camera driver bindings and
// GPIO toggling live behind this interface, outside the core.
type FrameSource interface {
	Capture(ctx context.Context) (normal, structured models.Frame, err error)
	Rearm(ctx context.Context) error
}

// StereoCalibration supplies the intrinsic/extrinsic products a
// chessboard solver would produce. Solving calibration is out of scope;
// this core only consumes the result.
type StereoCalibration interface {
	UndistortLeft(models.Frame) (models.Frame, error)
	UndistortRight(models.Frame) (models.Frame, error)
	ProjectionLeft() mat.Dense  // 3x4
	ProjectionRight() mat.Dense // 3x4
	DisparityToDepth() mat.Dense // 4x4, "Q"
	FocalLengthPx() float64
	BaselinePx() float64
	BaselineMM() float64
}
