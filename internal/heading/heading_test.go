package heading

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/blade-inspector/internal/models"
)

func newEngine() (*Engine, *models.CoordinatorState) {
	state := &models.CoordinatorState{TowardsTip: true}
	eng := NewEngine(state, 20, 0.1, nil)
	return eng, state
}

// A steady, centred pair of horizontal edges should produce a heading
// with Rho pinned to the configured step distance (spec §4.7 stage 5/6
// invariant: the synthesised heading's magnitude is always RhoStep
// unless overridden by a tip/root transition).
func TestStepProducesConfiguredRhoStep(t *testing.T) {
	eng, _ := newEngine()
	shape := models.Shape{H: 480, W: 640}

	edges := [4]models.EdgeHeading{
		{Rho: 300, Theta: 0, IsMax: true, IsHorizontal: true},   // max_hor
		{Rho: 100, Theta: 0, IsMax: false, IsHorizontal: true},  // min_hor
		{Rho: 0, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
		{Rho: 0, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
	}

	heading, err := eng.Step(edges, shape)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, heading.Rho, 1e-9)
	assert.GreaterOrEqual(t, heading.Theta, 0.0)
	assert.Less(t, heading.Theta, 2*math.Pi)
}

// Orientation lock is pinned at most once per mission: once set by the
// first Step call, subsequent calls must not flip it even when a
// different family would otherwise look preferable.
func TestOrientationLockIsPinnedOnce(t *testing.T) {
	eng, state := newEngine()
	shape := models.Shape{H: 480, W: 640}

	edges := [4]models.EdgeHeading{
		{Rho: 300, Theta: 0, IsMax: true, IsHorizontal: true},
		{Rho: 100, Theta: 0, IsMax: false, IsHorizontal: true},
		{Rho: 0, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
		{Rho: 0, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
	}
	_, err := eng.Step(edges, shape)
	require.NoError(t, err)
	locked := state.FollowingHorizontalEdges
	assert.NotEqual(t, models.OrientationUnset, locked)

	_, err = eng.Step(edges, shape)
	require.NoError(t, err)
	assert.Equal(t, locked, state.FollowingHorizontalEdges)
}

// When no edge survives normalisation/perimeter filtering and no backup
// heading has yet been recorded, Step must report
// ErrNoBackupHeadingAvailable rather than panicking or returning a zero
// heading silently.
func TestStepNoEdgesNoBackupReturnsError(t *testing.T) {
	eng, _ := newEngine()
	shape := models.Shape{H: 100, W: 100}

	// All four edges land within perimeterMargin of the 100x100 frame
	// border once normalised (their closest point to centre sits at
	// x/y==5 or 95, inside the 10px margin), so every one is discarded
	// in stage 1.
	edges := [4]models.EdgeHeading{
		{Rho: 95, Theta: 0},
		{Rho: 5, Theta: 0},
		{Rho: 95, Theta: math.Pi / 2},
		{Rho: 5, Theta: math.Pi / 2},
	}

	_, err := eng.Step(edges, shape)
	assert.ErrorIs(t, err, models.ErrNoBackupHeadingAvailable)
}

// When both edges of the followed family survive the perimeter filter
// and both sit in their expected half-quadrant, the heading must
// average them rather than collapsing to the single-edge formula.
func TestStepAveragesBothEdgesOfFollowedFamily(t *testing.T) {
	eng, _ := newEngine()
	shape := models.Shape{H: 480, W: 640}

	edges := [4]models.EdgeHeading{
		{Rho: 400, Theta: 0, IsMax: true, IsHorizontal: true},           // max_hor, normalises to rho=80, theta=0
		{Rho: -120, Theta: math.Pi, IsMax: false, IsHorizontal: true},   // min_hor, normalises to rho=200, theta=pi
		{Rho: 0, Theta: math.Pi / 2, IsMax: true, IsHorizontal: false},  // discarded by the perimeter filter
		{Rho: 0, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false}, // discarded by the perimeter filter
	}

	heading, err := eng.Step(edges, shape)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, heading.Rho, 1e-9)
	assert.InDelta(t, 3*math.Pi/2, heading.Theta, 1e-9)
}

// Tip detection while travelling towards the tip must flip TowardsTip
// and return the reversal heading (tip_rho, tip_theta + pi/2), per the
// tip-arrival scenario documented in DESIGN.md's Open Question 2.
func TestTipArrivalReversesHeading(t *testing.T) {
	eng, state := newEngine()
	state.TowardsTip = true
	shape := models.Shape{H: 480, W: 640}
	diag := shape.Diagonal()

	// Horizontal family stays put; vertical family (the perpendicular
	// family once orientation locks horizontal) reports rho <= diag/3,
	// triggering tip detection.
	edges := [4]models.EdgeHeading{
		{Rho: 300, Theta: 0, IsMax: true, IsHorizontal: true},
		{Rho: 100, Theta: 0, IsMax: false, IsHorizontal: true},
		{Rho: diag/3 - 1, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
		{Rho: diag/3 - 1, Theta: math.Pi / 2, IsMax: false, IsHorizontal: false},
	}

	heading, err := eng.Step(edges, shape)
	require.NoError(t, err)
	assert.False(t, state.TowardsTip, "tip arrival must flip TowardsTip to false")
	assert.Greater(t, heading.Theta, 0.0)
}
