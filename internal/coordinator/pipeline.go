// Package coordinator wires the per-component pipeline into the
// master/slave node loops of spec §4.10 and their concurrency model
// (spec §5): a plain-struct MasterNode/SlaveNode, no inheritance chain,
// each owning its own config, protocol connection, and component
// instances.
package coordinator

import (
	"errors"

	"github.com/your-org/blade-inspector/internal/blob"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/delta"
	"github.com/your-org/blade-inspector/internal/frameops"
	"github.com/your-org/blade-inspector/internal/models"
)

// Pipeline runs the point-detection stages shared by both nodes:
// downscale, optional centre crop, delta/green-mask point extraction,
// detection, and close-blob merge.
type Pipeline struct {
	Vision   config.VisionConfig
	Detector *blob.Detector
}

func NewPipeline(vis config.VisionConfig, det *blob.Detector) *Pipeline {
	return &Pipeline{Vision: vis, Detector: det}
}

// Detect runs the shared pipeline on one (normal, structured) frame pair,
// returning the downscaled shape along with the merged keypoints/descriptors.
func (p *Pipeline) Detect(normal, structured models.Frame) ([]models.Keypoint, []models.Descriptor, models.Shape, error) {
	desired := models.Shape{H: p.Vision.DesiredFrameShapeH, W: p.Vision.DesiredFrameShapeW}
	dn := frameops.Downscale(normal, p.Vision.DefaultDownsamplingDivisor, desired)
	ds := frameops.Downscale(structured, p.Vision.DefaultDownsamplingDivisor, desired)
	defer dn.Close()
	defer ds.Close()

	if p.Vision.CropFrames {
		cropped := frameops.CropCentered(dn, 0.8)
		dn.Close()
		dn = cropped
		cropped = frameops.CropCentered(ds, 0.8)
		ds.Close()
		ds = cropped
	}

	if err := frameops.EnsureShape(ds, dn.Shape); err != nil {
		return nil, nil, models.Shape{}, err
	}

	mask := delta.PointMask(dn, ds, p.Vision.DeltaThreshold, p.Vision.HueTolerance)
	defer mask.Close()

	kps, descs, err := p.Detector.DetectWithDescriptors(mask)
	if err != nil {
		if !errors.Is(err, models.ErrFeatureDescriptorUnavailable) {
			return nil, nil, models.Shape{}, err
		}
		kps, err = p.Detector.Detect(mask, false)
		if err != nil {
			return nil, nil, models.Shape{}, err
		}
		descs = nil
	}

	threshold := 0.5 * p.Detector.StandardSpacing
	if threshold == 0 {
		threshold = largestSize(kps) / 2
	}
	kps, descs = blob.ConcatenateClose(kps, descs, threshold)

	return kps, descs, dn.Shape, nil
}

func largestSize(kps []models.Keypoint) float64 {
	var m float64
	for _, k := range kps {
		if k.Size > m {
			m = k.Size
		}
	}
	return m
}
