// Package calibfile loads the stereo calibration sidecar JSON format
// documented in spec §6: a ".json" file alongside the vendor's pickle,
// using a `["numpy_array", [[...]]]` sentinel pair for any ndarray
// field. This is the one concrete calib.StereoCalibration the core
// ships, letting the pipeline run end-to-end against recorded
// calibration without a live chessboard solver.
package calibfile

import (
	"encoding/json"
	"fmt"
	"os"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/your-org/blade-inspector/internal/models"
)

// NumpyArray round-trips the sidecar's ["numpy_array", [[row]...]] pair.
type NumpyArray struct {
	Rows, Cols int
	Data       []float64
}

func (n NumpyArray) MarshalJSON() ([]byte, error) {
	rows := make([][]float64, n.Rows)
	for r := 0; r < n.Rows; r++ {
		rows[r] = n.Data[r*n.Cols : (r+1)*n.Cols]
	}
	return json.Marshal([2]interface{}{"numpy_array", rows})
}

func (n *NumpyArray) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("unmarshal numpy_array pair: %w", err)
	}
	var tag string
	if err := json.Unmarshal(pair[0], &tag); err != nil {
		return fmt.Errorf("unmarshal numpy_array tag: %w", err)
	}
	if tag != "numpy_array" {
		return fmt.Errorf("calibfile: expected numpy_array sentinel, got %q", tag)
	}
	var rows [][]float64
	if err := json.Unmarshal(pair[1], &rows); err != nil {
		return fmt.Errorf("unmarshal numpy_array rows: %w", err)
	}
	n.Rows = len(rows)
	if n.Rows > 0 {
		n.Cols = len(rows[0])
	}
	n.Data = make([]float64, 0, n.Rows*n.Cols)
	for _, row := range rows {
		n.Data = append(n.Data, row...)
	}
	return nil
}

func (n NumpyArray) toDense() mat.Dense {
	d := mat.NewDense(n.Rows, n.Cols, append([]float64{}, n.Data...))
	return *d
}

// sidecar is the on-disk shape of the stereo calibration JSON file.
type sidecar struct {
	ProjectionLeft   NumpyArray `json:"projection_left"`
	ProjectionRight  NumpyArray `json:"projection_right"`
	DisparityToDepth NumpyArray `json:"disparity_to_depth"`
	CameraMatrixLeft NumpyArray `json:"camera_matrix_left"`
	CameraMatrixRight NumpyArray `json:"camera_matrix_right"`
	DistCoeffsLeft   NumpyArray `json:"dist_coeffs_left"`
	DistCoeffsRight  NumpyArray `json:"dist_coeffs_right"`
	FocalLengthPx    float64    `json:"focal_length_px"`
	BaselinePx       float64    `json:"baseline_px"`
	BaselineMM       float64    `json:"baseline_mm"`
}

// Calibration implements calib.StereoCalibration from a loaded sidecar.
type Calibration struct {
	data sidecar

	camLeft, camRight   gocv.Mat
	distLeft, distRight gocv.Mat
}

// Load reads and parses a calibration sidecar JSON file.
func Load(path string) (*Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration sidecar: %w", err)
	}

	var s sidecar
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse calibration sidecar: %w", err)
	}

	c := &Calibration{data: s}
	c.camLeft = denseToMat(s.CameraMatrixLeft)
	c.camRight = denseToMat(s.CameraMatrixRight)
	c.distLeft = denseToMat(s.DistCoeffsLeft)
	c.distRight = denseToMat(s.DistCoeffsRight)
	return c, nil
}

func denseToMat(n NumpyArray) gocv.Mat {
	if n.Rows == 0 || n.Cols == 0 {
		return gocv.NewMat()
	}
	m := gocv.NewMatWithSize(n.Rows, n.Cols, gocv.MatTypeCV64F)
	for r := 0; r < n.Rows; r++ {
		for c := 0; c < n.Cols; c++ {
			m.SetDoubleAt(r, c, n.Data[r*n.Cols+c])
		}
	}
	return m
}

func (c *Calibration) undistort(frame models.Frame, camMat, dist gocv.Mat) (models.Frame, error) {
	if camMat.Empty() {
		return models.Frame{Mat: frame.Mat.Clone(), Shape: frame.Shape, Gray: frame.Gray}, nil
	}
	out := gocv.NewMat()
	gocv.Undistort(frame.Mat, &out, camMat, dist, camMat)
	return models.Frame{Mat: out, Shape: frame.Shape, Gray: frame.Gray}, nil
}

func (c *Calibration) UndistortLeft(frame models.Frame) (models.Frame, error) {
	return c.undistort(frame, c.camLeft, c.distLeft)
}

func (c *Calibration) UndistortRight(frame models.Frame) (models.Frame, error) {
	return c.undistort(frame, c.camRight, c.distRight)
}

func (c *Calibration) ProjectionLeft() mat.Dense  { return c.data.ProjectionLeft.toDense() }
func (c *Calibration) ProjectionRight() mat.Dense { return c.data.ProjectionRight.toDense() }
func (c *Calibration) DisparityToDepth() mat.Dense { return c.data.DisparityToDepth.toDense() }
func (c *Calibration) FocalLengthPx() float64     { return c.data.FocalLengthPx }
func (c *Calibration) BaselinePx() float64        { return c.data.BaselinePx }
func (c *Calibration) BaselineMM() float64        { return c.data.BaselineMM }

// Close releases the gocv resources backing the undistortion maps.
func (c *Calibration) Close() {
	c.camLeft.Close()
	c.camRight.Close()
	c.distLeft.Close()
	c.distRight.Close()
}

// SaveScale persists a scale-calibration result to path as a JSON
// object with the two scalar fields inline (no numpy_array sentinel is
// needed, since neither value is an array).
func SaveScale(path string, standardSpacing, standardBlobSize float64) error {
	payload := struct {
		StandardSpacing  float64 `json:"standard_spacing"`
		StandardBlobSize float64 `json:"standard_blob_size"`
	}{standardSpacing, standardBlobSize}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scale calibration: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadScale reads back a persisted scale-calibration result.
func LoadScale(path string) (standardSpacing, standardBlobSize float64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read scale calibration: %w", err)
	}
	var payload struct {
		StandardSpacing  float64 `json:"standard_spacing"`
		StandardBlobSize float64 `json:"standard_blob_size"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0, fmt.Errorf("parse scale calibration: %w", err)
	}
	return payload.StandardSpacing, payload.StandardBlobSize, nil
}
