// Package blob implements BlobDetector: keypoint (and optional
// descriptor) extraction from a delta mask, with four selectable
// backends and the close-pair merge pass used both standalone and by
// ScaleCalibrator.
package blob

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
)

// DetectorType selects the underlying feature-detection algorithm,
// matching spec §6's detector_type values 0-3.
type DetectorType int

const (
	SimpleBlob DetectorType = iota
	ORB
	SIFT
	// SURF is patented and absent from modern OpenCV builds; this
	// backend is served by AKAZE, the nearest descriptor-capable
	// detector in gocv's binding surface.
	SURF
)

// Detector wraps a gocv feature detector plus the calibrated thresholds
// ScaleCalibrator pushes into it via ApplyScale.
type Detector struct {
	Type DetectorType

	MinDistBetweenBlobs float64
	MinArea             float64
	MaxArea             float64
	StandardSpacing     float64
}

// NewDetector constructs a Detector of the given backend with
// unconfigured (zero) thresholds; call ApplyScale before first use in
// production.
func NewDetector(t DetectorType) *Detector {
	return &Detector{Type: t}
}

// ApplyScale installs the thresholds ScaleCalibrator derives: blobs
// closer than half the standard spacing are considered the same dot,
// and area bounds bracket the standard blob size.
func (d *Detector) ApplyScale(standardSpacing, standardBlobSize float64) {
	d.StandardSpacing = standardSpacing
	d.MinDistBetweenBlobs = 0.5 * standardSpacing
	d.MinArea = 0.1 * standardBlobSize
	d.MaxArea = 3.5 * standardBlobSize
}

// Detect extracts keypoints from mask. Unless ignoreNoBlobs is set, an
// empty result is reported as ErrNoBlobs.
func (d *Detector) Detect(mask models.Frame, ignoreNoBlobs bool) ([]models.Keypoint, error) {
	kps := d.detectRaw(mask.Mat)
	if len(kps) == 0 && !ignoreNoBlobs {
		return nil, models.ErrNoBlobs
	}
	return kps, nil
}

// DetectWithDescriptors extracts keypoints and, for every backend but
// SimpleBlob, a SIFT descriptor computed at each detected centre.
// SimpleBlob has no descriptor ability and always fails with
// ErrFeatureDescriptorUnavailable.
func (d *Detector) DetectWithDescriptors(mask models.Frame) ([]models.Keypoint, []models.Descriptor, error) {
	if d.Type == SimpleBlob {
		return nil, nil, models.ErrFeatureDescriptorUnavailable
	}

	kps := d.detectRaw(mask.Mat)
	if len(kps) == 0 {
		return nil, nil, models.ErrNoBlobs
	}

	cvKps := toCVKeyPoints(kps)
	sift := gocv.NewSIFT()
	defer sift.Close()

	_, descMat := sift.Compute(mask.Mat, cvKps)
	defer descMat.Close()

	descs := make([]models.Descriptor, len(kps))
	cols := descMat.Cols()
	for i := range kps {
		if i >= descMat.Rows() {
			descs[i] = models.Descriptor{}
			continue
		}
		row := make(models.Descriptor, cols)
		for c := 0; c < cols; c++ {
			row[c] = descMat.GetFloatAt(i, c)
		}
		descs[i] = row
	}

	return kps, descs, nil
}

func (d *Detector) detectRaw(mask gocv.Mat) []models.Keypoint {
	var cvKps []gocv.KeyPoint

	switch d.Type {
	case SimpleBlob:
		params := gocv.NewSimpleBlobDetectorParams()
		params.SetFilterByColor(true)
		params.SetBlobColor(255)
		params.SetFilterByArea(true)
		params.SetMinArea(float32(d.MinArea))
		params.SetMaxArea(float32(d.MaxArea))
		params.SetMinDistBetweenBlobs(float32(d.MinDistBetweenBlobs))
		sbd := gocv.NewSimpleBlobDetectorWithParams(params)
		defer sbd.Close()
		cvKps = sbd.Detect(mask)
	case ORB:
		orb := gocv.NewORB()
		defer orb.Close()
		cvKps = orb.Detect(mask)
	case SIFT:
		sift := gocv.NewSIFT()
		defer sift.Close()
		cvKps = sift.Detect(mask)
	case SURF:
		akaze := gocv.NewAKAZE()
		defer akaze.Close()
		cvKps = akaze.Detect(mask)
	}

	out := make([]models.Keypoint, len(cvKps))
	for i, k := range cvKps {
		out[i] = models.Keypoint{
			Centre:   models.Point2D{X: float64(k.X), Y: float64(k.Y)},
			Size:     float64(k.Size),
			Response: float64(k.Response),
		}
	}
	return out
}

func toCVKeyPoints(kps []models.Keypoint) []gocv.KeyPoint {
	out := make([]gocv.KeyPoint, len(kps))
	for i, k := range kps {
		out[i] = gocv.KeyPoint{
			X: k.Centre.X, Y: k.Centre.Y,
			Size: float32(k.Size), Response: float32(k.Response),
		}
	}
	return out
}

// ConcatenateClose merges keypoint pairs whose centre separation is
// below threshold (half the calibrated standard spacing in production
// use). Of two merging blobs the larger (by Size) survives; its
// descriptor (if any) is kept. Idempotent: a second pass over its own
// output is a no-op.
func ConcatenateClose(keypoints []models.Keypoint, descriptors []models.Descriptor, threshold float64) ([]models.Keypoint, []models.Descriptor) {
	n := len(keypoints)
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}

	for i := 0; i < n; i++ {
		if !alive[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if !alive[j] {
				continue
			}
			if dist(keypoints[i].Centre, keypoints[j].Centre) < threshold {
				if keypoints[j].Size > keypoints[i].Size {
					alive[i] = false
					break
				}
				alive[j] = false
			}
		}
	}

	outKps := make([]models.Keypoint, 0, n)
	var outDescs []models.Descriptor
	if descriptors != nil {
		outDescs = make([]models.Descriptor, 0, n)
	}
	for i := 0; i < n; i++ {
		if !alive[i] {
			continue
		}
		outKps = append(outKps, keypoints[i])
		if descriptors != nil {
			outDescs = append(outDescs, descriptors[i])
		}
	}
	return outKps, outDescs
}

func dist(a, b models.Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
