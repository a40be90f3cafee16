// Package delta implements DeltaExtractor: deriving a binary mask of
// pixels brightened by the structured-light laser from a normal/
// structured frame pair.
package delta

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/frameops"
	"github.com/your-org/blade-inspector/internal/models"
)

// DefaultThreshold is the default per-pixel delta threshold.
const DefaultThreshold = 10

// Delta computes the per-pixel absolute-difference mask between normal
// and structured, both reduced to grayscale first, smoothed by a 5x5
// gaussian blur, and thresholded at threshold.
func Delta(normal, structured models.Frame, threshold int) models.Frame {
	gn := frameops.EnsureGray(normal)
	defer gn.Mat.Close()
	gs := frameops.EnsureGray(structured)
	defer gs.Mat.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gn.Mat, gs.Mat, &diff)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(diff, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.Threshold(blurred, &mask, float32(threshold), 255, gocv.ThresholdBinary)

	return models.Frame{Mat: mask, Shape: normal.Shape, Gray: true}
}

// PointMask is the full point-pipeline mask (spec §4.4 step 1): the
// delta mask AND'ed with the structured frame's green mask, so only
// pixels that both brightened and fall in the laser's hue band survive.
func PointMask(normal, structured models.Frame, threshold int, hueTol float64) models.Frame {
	d := Delta(normal, structured, threshold)
	defer d.Mat.Close()

	g := frameops.GreenMask(frameops.EnsureColor(structured), hueTol)
	defer g.Mat.Close()

	out := gocv.NewMat()
	gocv.BitwiseAnd(d.Mat, g.Mat, &out)

	return models.Frame{Mat: out, Shape: normal.Shape, Gray: true}
}

// EnhanceConfig tunes the optional morphological cleanup pass.
type EnhanceConfig struct {
	ErodeKernel   int
	ErodeIters    int
	DilateKernel  int
	DilateIters   int
}

// DefaultEnhanceConfig performs only a light gaussian blur — no
// erosion/dilation — matching the source's default behaviour.
var DefaultEnhanceConfig = EnhanceConfig{}

// Enhance optionally erodes then dilates mask; any positive pixel value
// surviving the morphology is forced to 255. When cfg is the zero value
// it instead applies a small gaussian blur, per the default profile.
func Enhance(mask models.Frame, cfg EnhanceConfig) models.Frame {
	if cfg.ErodeKernel == 0 && cfg.DilateKernel == 0 {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(mask.Mat, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
		return models.Frame{Mat: blurred, Shape: mask.Shape, Gray: true}
	}

	cur := mask.Mat
	owned := false

	if cfg.ErodeKernel > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.ErodeKernel, cfg.ErodeKernel))
		eroded := gocv.NewMat()
		gocv.ErodeWithParams(cur, &eroded, kernel, image.Pt(-1, -1), maxInt(cfg.ErodeIters, 1), gocv.BorderConstant)
		kernel.Close()
		if owned {
			cur.Close()
		}
		cur = eroded
		owned = true
	}
	if cfg.DilateKernel > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.DilateKernel, cfg.DilateKernel))
		dilated := gocv.NewMat()
		gocv.DilateWithParams(cur, &dilated, kernel, image.Pt(-1, -1), maxInt(cfg.DilateIters, 1), gocv.BorderConstant, gocv.NewScalar(0, 0, 0, 0))
		kernel.Close()
		if owned {
			cur.Close()
		}
		cur = dilated
		owned = true
	}

	result := gocv.NewMat()
	gocv.Threshold(cur, &result, 0, 255, gocv.ThresholdBinary)
	if owned {
		cur.Close()
	}

	return models.Frame{Mat: result, Shape: mask.Shape, Gray: true}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
