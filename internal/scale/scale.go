// Package scale implements ScaleCalibrator: deriving the standard
// nearest-neighbour dot spacing and mean blob size from a set of
// calibration frame pairs, and pushing the result into a blob.Detector.
package scale

import (
	"math"

	"github.com/your-org/blade-inspector/internal/blob"
	"github.com/your-org/blade-inspector/internal/delta"
	"github.com/your-org/blade-inspector/internal/frameops"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/statutil"
)

// CalibrationPair is one recorded normal/structured frame pair used to
// derive the standard spacing.
type CalibrationPair struct {
	Normal     models.Frame
	Structured models.Frame
}

// Result is the persisted calibration output, pushed into a
// blob.Detector via Detector.ApplyScale.
type Result struct {
	StandardSpacing  float64
	StandardBlobSize float64
}

// Config tunes the point pipeline run on each pair before spacing
// statistics are gathered.
type Config struct {
	DefaultDownsamplingDivisor int
	DesiredShape               models.Shape
	HueTolerance               float64
	DeltaThreshold             int
	Detector                   *blob.Detector
}

// Calibrate runs the full point pipeline on every pair, derives a
// per-pair scaling frame of nearest-neighbour spacings, one-sigma
// filters it, and aggregates the per-pair statistics by arithmetic mean.
func Calibrate(pairs []CalibrationPair, cfg Config) (Result, error) {
	var spacings, sizes []float64

	for _, pair := range pairs {
		kps, err := detectPair(pair, cfg)
		if err != nil {
			continue
		}
		if len(kps) == 0 {
			continue
		}

		diag := diagonalOf(kps)
		nnDists := nearestNeighbourDistances(kps, diag/2)
		filtered := statutil.FilterOneSigma(nnDists)
		if len(filtered) == 0 {
			continue
		}

		spacingMean, _ := statutil.MeanStdDev(filtered)
		spacings = append(spacings, spacingMean)
		sizes = append(sizes, meanSize(kps))
	}

	if len(spacings) == 0 {
		return Result{}, models.NewError(models.KindNoBlobs)
	}

	spacingAgg, _ := statutil.MeanStdDev(spacings)
	sizeAgg, _ := statutil.MeanStdDev(sizes)
	return Result{
		StandardSpacing:  spacingAgg,
		StandardBlobSize: sizeAgg,
	}, nil
}

func detectPair(pair CalibrationPair, cfg Config) ([]models.Keypoint, error) {
	small := frameops.Downscale(pair.Normal, cfg.DefaultDownsamplingDivisor, cfg.DesiredShape)
	defer small.Mat.Close()
	smallSL := frameops.Downscale(pair.Structured, cfg.DefaultDownsamplingDivisor, cfg.DesiredShape)
	defer smallSL.Mat.Close()

	mask := delta.PointMask(small, smallSL, cfg.DeltaThreshold, cfg.HueTolerance)
	defer mask.Mat.Close()

	kps, err := cfg.Detector.Detect(mask, false)
	if err != nil {
		return nil, err
	}

	threshold := largestSize(kps)
	kps, _ = blob.ConcatenateClose(kps, nil, threshold/2)
	return kps, nil
}

func diagonalOf(kps []models.Keypoint) float64 {
	var maxX, maxY float64
	for _, k := range kps {
		if k.Centre.X > maxX {
			maxX = k.Centre.X
		}
		if k.Centre.Y > maxY {
			maxY = k.Centre.Y
		}
	}
	return math.Hypot(maxX, maxY)
}

// nearestNeighbourDistances computes, for each keypoint, the distance
// to its nearest neighbour among keypoints within a square window of
// the given half-side centred on it. Keypoints with no neighbour in
// range contribute no cell (the scaling frame stays sparse there).
func nearestNeighbourDistances(kps []models.Keypoint, halfWindow float64) []float64 {
	var out []float64
	for i, a := range kps {
		best := math.Inf(1)
		for j, b := range kps {
			if i == j {
				continue
			}
			if math.Abs(a.Centre.X-b.Centre.X) > halfWindow || math.Abs(a.Centre.Y-b.Centre.Y) > halfWindow {
				continue
			}
			d := math.Hypot(a.Centre.X-b.Centre.X, a.Centre.Y-b.Centre.Y)
			if d < best {
				best = d
			}
		}
		if !math.IsInf(best, 1) {
			out = append(out, best)
		}
	}
	return out
}

func meanSize(kps []models.Keypoint) float64 {
	sizes := make([]float64, len(kps))
	for i, k := range kps {
		sizes[i] = k.Size
	}
	m, _ := statutil.MeanStdDev(sizes)
	return m
}

func largestSize(kps []models.Keypoint) float64 {
	var max float64
	for _, k := range kps {
		if k.Size > max {
			max = k.Size
		}
	}
	return max
}
