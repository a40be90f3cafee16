// Package models holds the data types shared across the vision core:
// frames, keypoints, descriptors, lines, headings and 3D points.
package models

import (
	"math"

	"gocv.io/x/gocv"
)

// Shape is a frame's (height, width) in pixels.
type Shape struct {
	H int
	W int
}

// Diagonal returns the pixel diagonal of the shape.
func (s Shape) Diagonal() float64 {
	return math.Hypot(float64(s.H), float64(s.W))
}

// Frame wraps a gocv.Mat with the shape it was captured/derived at.
// All frames flowing through one Coordinator iteration after the initial
// downscale share one Shape, per the frame invariant in the data model.
type Frame struct {
	Mat   gocv.Mat
	Shape Shape
	Gray  bool // true if single-channel
}

// Close releases the underlying Mat. Safe to call on a zero Frame.
func (f Frame) Close() {
	if !f.Mat.Empty() {
		_ = f.Mat.Close()
	}
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	return Frame{Mat: f.Mat.Clone(), Shape: f.Shape, Gray: f.Gray}
}
