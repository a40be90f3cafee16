package models

import "math"

// Point2D is a floating-point pixel coordinate.
type Point2D struct {
	X, Y float64
}

// Keypoint is a detected structured-light dot.
type Keypoint struct {
	Centre   Point2D
	Size     float64 // diameter estimate, pixels
	Response float64 // optional; 0 if unused
}

// Descriptor is a fixed-length feature vector accompanying a keypoint,
// or empty when block-matching is used instead.
type Descriptor []float32

// Match pairs a left keypoint index with a right keypoint index.
type Match struct {
	LeftIndex  int
	RightIndex int
	Distance   float64
}

// HoughLine is a (rho, theta) line in the conventional Hough parametrisation.
// Grid lines (LineGrid) restrict theta to {0, pi/2}; edge lines (EdgeFinder,
// HeadingEngine) use free theta in [0, pi) or, once normalised, [0, 2*pi).
type HoughLine struct {
	Rho   float64
	Theta float64
}

// BoundedSegment is a HoughLine clipped to the convex hull of the
// keypoints that support it.
type BoundedSegment struct {
	Line       HoughLine
	P1, P2     Point2D
	Horizontal bool // theta == pi/2 family (constant y, i.e. a horizontal line); false for theta == 0
	NumPoints  int  // number of keypoints that supported the fit
}

// Midpoint returns the segment's midpoint.
func (b BoundedSegment) Midpoint() Point2D {
	return Point2D{X: (b.P1.X + b.P2.X) / 2, Y: (b.P1.Y + b.P2.Y) / 2}
}

// EdgeHeading is a detected blade-boundary line.
type EdgeHeading struct {
	Rho          float64
	Theta        float64
	IsMax        bool // true for bottom/right boundary, false for top/left
	IsHorizontal bool
}

// Heading is the (rho, theta) command in image-centre polar coordinates.
// Rho == 0 && Theta == 0 is the sentinel for mission-complete.
type Heading struct {
	Rho   float64
	Theta float64
}

// Complete reports whether h is the mission-complete sentinel.
func (h Heading) Complete() bool {
	return h.Rho == 0 && h.Theta == 0
}

// Point3D is a reconstructed point in camera-frame millimetres.
type Point3D struct {
	X, Y, Z float64
}

// Valid reports whether the point survived the Z >= 0 filter.
func (p Point3D) Valid() bool {
	return p.Z >= 0 && !math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// NormalizeAngle wraps theta into [0, 2*pi).
func NormalizeAngle(theta float64) float64 {
	const twoPi = 2 * math.Pi
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	return theta
}
