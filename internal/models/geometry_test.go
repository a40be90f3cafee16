package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadingComplete(t *testing.T) {
	assert.True(t, Heading{}.Complete())
	assert.False(t, Heading{Rho: 1}.Complete())
	assert.False(t, Heading{Theta: 1}.Complete())
}

func TestPoint3DValid(t *testing.T) {
	cases := []struct {
		name  string
		p     Point3D
		valid bool
	}{
		{"positive z", Point3D{X: 1, Y: 2, Z: 3}, true},
		{"zero z", Point3D{Z: 0}, true},
		{"negative z", Point3D{Z: -0.1}, false},
		{"nan z", Point3D{Z: math.NaN()}, false},
		{"inf z", Point3D{Z: math.Inf(1)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.valid, c.p.Valid())
		})
	}
}

func TestNormalizeAngle(t *testing.T) {
	twoPi := 2 * math.Pi
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{twoPi, 0},
		{twoPi + 0.5, 0.5},
		{-twoPi - 0.5, twoPi - 0.5},
	}
	for _, c := range cases {
		got := NormalizeAngle(c.in)
		assert.InDelta(t, c.want, got, 1e-9)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, twoPi)
	}
}

func TestBoundedSegmentMidpoint(t *testing.T) {
	seg := BoundedSegment{P1: Point2D{X: 0, Y: 0}, P2: Point2D{X: 10, Y: 20}}
	mid := seg.Midpoint()
	assert.Equal(t, Point2D{X: 5, Y: 10}, mid)
}
