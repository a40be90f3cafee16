package protocol

import "github.com/your-org/blade-inspector/internal/models"

// KeypointWire is the ((x,y), size, response) tuple shape used when
// keypoints cross the wire (spec §6).
type KeypointWire struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Response float64 `json:"response"`
}

func EncodeKeypoints(kps []models.Keypoint) []KeypointWire {
	out := make([]KeypointWire, len(kps))
	for i, k := range kps {
		out[i] = KeypointWire{X: k.Centre.X, Y: k.Centre.Y, Size: k.Size, Response: k.Response}
	}
	return out
}

func DecodeKeypoints(wire []KeypointWire) []models.Keypoint {
	out := make([]models.Keypoint, len(wire))
	for i, w := range wire {
		out[i] = models.Keypoint{Centre: models.Point2D{X: w.X, Y: w.Y}, Size: w.Size, Response: w.Response}
	}
	return out
}

// DescriptorWire is a flat float32 slice per keypoint, empty when the
// active detector (SimpleBlob) offers no feature descriptor.
type DescriptorWire = []float32

func EncodeDescriptors(ds []models.Descriptor) []DescriptorWire {
	out := make([]DescriptorWire, len(ds))
	for i, d := range ds {
		out[i] = DescriptorWire(d)
	}
	return out
}

func DecodeDescriptors(wire []DescriptorWire) []models.Descriptor {
	out := make([]models.Descriptor, len(wire))
	for i, w := range wire {
		out[i] = models.Descriptor(w)
	}
	return out
}

// SetTimestampContent carries the master's clock reference.
type SetTimestampContent struct {
	Timestamp string `json:"timestamp"`
}

// CalibrateCVContent toggles which calibration passes run.
type CalibrateCVContent struct {
	CalibrateStereopsisSession        bool `json:"calibrate_stereopsis_session"`
	CalibrateBlobScaleDetectorSession bool `json:"calibrate_blob_scale_detector_session"`
}

// SlaveReadyContent reports the slave's own-frame-captured state.
type SlaveReadyContent struct {
	Ready bool `json:"ready"`
}

// FlagContent carries a single boolean flag, used by sendFlagToSlave
// (towards_tip / following_horizontal_edges) and restartPtGrey acks.
type FlagContent struct {
	Value bool `json:"value"`
}

// SetNewFrameContent signals a captured-frame-pair is ready for
// retrieval via getFrame.
type SetNewFrameContent struct {
	FrameIndex int `json:"frame_index"`
}

// FrameWire carries one image's raw bytes plus the shape/dtype tag
// needed to reinterpret them, per spec §6's "nested arrays of integers
// plus a dtype tag" convention. Bytes ride as base64 (encoding/json's
// native []byte handling) rather than literal nested int arrays — an
// equivalent, far cheaper wire encoding for the same logical payload.
type FrameWire struct {
	ShapeH int    `json:"shape_h"`
	ShapeW int    `json:"shape_w"`
	Dtype  string `json:"dtype"`
	Data   []byte `json:"data"`
}

func EncodeFrame(f models.Frame) FrameWire {
	return FrameWire{ShapeH: f.Shape.H, ShapeW: f.Shape.W, Dtype: "uint8", Data: f.Mat.ToBytes()}
}

// GetFrameContent is the getFrame reply: the raw/processed frames plus
// the detector output for them (spec §4.9's getFrame tuple).
type GetFrameContent struct {
	RawNormal   FrameWire        `json:"raw_normal"`
	RawSL       FrameWire        `json:"raw_sl"`
	Undistorted FrameWire        `json:"undistorted"`
	Delta       FrameWire        `json:"delta"`
	Keypoints   []KeypointWire   `json:"keypoints"`
	Descriptors []DescriptorWire `json:"descriptors,omitempty"`
	Valid       bool             `json:"valid"`
	Error       string           `json:"error,omitempty"`
}

// GetPointListContent is the getPointList reply carrying the slave's
// own detector output, to be matched against the master's.
type GetPointListContent struct {
	ShapeH      int              `json:"shape_h"`
	ShapeW      int              `json:"shape_w"`
	Keypoints   []KeypointWire   `json:"keypoints"`
	Descriptors []DescriptorWire `json:"descriptors,omitempty"`
	Valid       bool             `json:"valid"`
	Error       string           `json:"error,omitempty"`
}

// ErrorContent carries a CoreError's kind and message across the wire.
type ErrorContent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
