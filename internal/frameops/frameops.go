// Package frameops implements pixel-level primitives shared by every
// stage of the vision pipeline: grayscale/color conversion, pyramid
// downscale to a target shape, centred cropping, and HSV green masking.
package frameops

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

// Downscale repeatedly halves frame via a 2x2 Gaussian pyramid until
// desired is reached. If desired does not divide frame's shape by an
// integer number of halvings, it falls back to halving defaultDivisor
// times and logs a warning. Never upscales.
func Downscale(frame models.Frame, defaultDivisor int, desired models.Shape) models.Frame {
	steps, ok := halvingSteps(frame.Shape, desired)
	if !ok {
		slog.Warn("downscale: desired shape not reachable by integer halvings, falling back",
			"from", frame.Shape, "desired", desired, "default_divisor", defaultDivisor)
		steps = defaultDivisor
	}

	cur := frame.Mat
	shape := frame.Shape
	owned := false
	for i := 0; i < steps; i++ {
		var next gocv.Mat = gocv.NewMat()
		gocv.PyrDown(cur, &next, image.Point{}, gocv.BorderDefault)
		if owned {
			_ = cur.Close()
		}
		cur = next
		owned = true
		shape = models.Shape{H: (shape.H + 1) / 2, W: (shape.W + 1) / 2}
	}

	if !owned {
		cur = frame.Mat.Clone()
	}
	return models.Frame{Mat: cur, Shape: shape, Gray: frame.Gray}
}

// halvingSteps reports how many 2x2 halvings take from to desired
// exactly, or ok=false if no integer number of halvings does.
func halvingSteps(from, desired models.Shape) (int, bool) {
	if desired.H <= 0 || desired.W <= 0 || desired.H > from.H || desired.W > from.W {
		return 0, false
	}
	h, w := from.H, from.W
	steps := 0
	for h > desired.H || w > desired.W {
		if h%2 != 0 || w%2 != 0 {
			return 0, false
		}
		h /= 2
		w /= 2
		steps++
		if steps > 32 {
			return 0, false
		}
	}
	if h != desired.H || w != desired.W {
		return 0, false
	}
	return steps, true
}

// CropCentered crops frame to a centred rectangle whose side lengths are
// the original sides times divisor, divisor in (0,1].
func CropCentered(frame models.Frame, divisor float64) models.Frame {
	if divisor <= 0 || divisor > 1 {
		divisor = 1
	}
	newH := int(float64(frame.Shape.H) * divisor)
	newW := int(float64(frame.Shape.W) * divisor)
	x0 := (frame.Shape.W - newW) / 2
	y0 := (frame.Shape.H - newH) / 2

	rect := image.Rect(x0, y0, x0+newW, y0+newH)
	cropped := frame.Mat.Region(rect)
	out := cropped.Clone()
	_ = cropped.Close()

	return models.Frame{Mat: out, Shape: models.Shape{H: newH, W: newW}, Gray: frame.Gray}
}

// Green mask HSV thresholds, per the spec: H in [60-tol, 60+tol],
// S in [40,255], V in [200,255].
const (
	greenHue    = 60.0
	saturationMin = 40.0
	saturationMax = 255.0
	valueMin      = 200.0
	valueMax      = 255.0
)

// GreenMask converts a color frame to HSV and returns a 0/255 mask of
// pixels within the laser-green hue band.
func GreenMask(color models.Frame, hueTol float64) models.Frame {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(color.Mat, &hsv, gocv.ColorBGRToHSV)

	lowHue := greenHue - hueTol
	highHue := greenHue + hueTol

	lb := gocv.NewScalar(clamp(lowHue, 0, 180), saturationMin, valueMin, 0)
	ub := gocv.NewScalar(clamp(highHue, 0, 180), saturationMax, valueMax, 0)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, lb, ub, &mask)

	return models.Frame{Mat: mask, Shape: color.Shape, Gray: true}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToGray converts frame to single-channel grayscale, cloning if already gray.
func ToGray(frame models.Frame) models.Frame {
	if frame.Gray {
		return models.Frame{Mat: frame.Mat.Clone(), Shape: frame.Shape, Gray: true}
	}
	gray := gocv.NewMat()
	gocv.CvtColor(frame.Mat, &gray, gocv.ColorBGRToGray)
	return models.Frame{Mat: gray, Shape: frame.Shape, Gray: true}
}

// ToColor converts frame to 3-channel BGR, cloning if already color.
func ToColor(frame models.Frame) models.Frame {
	if !frame.Gray {
		return models.Frame{Mat: frame.Mat.Clone(), Shape: frame.Shape, Gray: false}
	}
	color := gocv.NewMat()
	gocv.CvtColor(frame.Mat, &color, gocv.ColorGrayToBGR)
	return models.Frame{Mat: color, Shape: frame.Shape, Gray: false}
}

// EnsureGray returns frame unchanged if already gray, else converts.
func EnsureGray(frame models.Frame) models.Frame {
	if frame.Gray {
		return frame
	}
	return ToGray(frame)
}

// EnsureColor returns frame unchanged if already color, else converts.
func EnsureColor(frame models.Frame) models.Frame {
	if !frame.Gray {
		return frame
	}
	return ToColor(frame)
}

// EnsureShape validates that frame matches want, returning a CoreError
// if not — enforcing the "one shape per iteration" invariant.
func EnsureShape(frame models.Frame, want models.Shape) error {
	if frame.Shape != want {
		return models.NewErrorf(models.KindFailedCapturingFrame, "shape mismatch mid-iteration", nil)
	}
	return nil
}
