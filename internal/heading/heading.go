// Package heading implements HeadingEngine: the six-stage state machine
// that turns the four boundary edges into a flight-heading command,
// tracks orientation lock and tip/root transitions.
package heading

import (
	"math"

	"github.com/your-org/blade-inspector/internal/models"
)

// RootSensor reports whether the blade root has been reached. The
// source's stub always returns false; a real range sensor can be
// substituted without touching the state machine.
type RootSensor interface {
	Detected() bool
}

// AlwaysFalseRootSensor is the default RootSensor, matching the
// source's stub behaviour until a real sensor is wired in.
type AlwaysFalseRootSensor struct{}

func (AlwaysFalseRootSensor) Detected() bool { return false }

const perimeterMargin = 10.0 // pixels

// Engine holds the per-mission heading state machine. State is a
// pointer into the Coordinator's shared CoordinatorState, since
// towards_tip and following_horizontal_edges are process-wide.
type Engine struct {
	State      *models.CoordinatorState
	RhoStep    float64
	RhoMinPerc float64
	Root       RootSensor

	currentHorEdge  *models.EdgeHeading
	currentVertEdge *models.EdgeHeading
	backupHeading   *models.Heading
	currentTip      *models.EdgeHeading
}

// NewEngine constructs an Engine. If root is nil, AlwaysFalseRootSensor
// is used.
func NewEngine(state *models.CoordinatorState, rhoStep, rhoMinPerc float64, root RootSensor) *Engine {
	if root == nil {
		root = AlwaysFalseRootSensor{}
	}
	return &Engine{State: state, RhoStep: rhoStep, RhoMinPerc: rhoMinPerc, Root: root}
}

// Step runs one heading-engine iteration over the four boundary edges
// in [max_hor, min_hor, max_vert, min_vert] order.
func (e *Engine) Step(edges [4]models.EdgeHeading, shape models.Shape) (models.Heading, error) {
	// Stage 1: normalise, discard perimeter-adjacent edges.
	normalized := make([]*models.EdgeHeading, 4)
	for i, edge := range edges {
		n := normalize(edge, shape)
		if tooCloseToPerimeter(n, shape) {
			continue
		}
		normalized[i] = &n
	}

	horCandidates := []*models.EdgeHeading{normalized[0], normalized[1]}
	vertCandidates := []*models.EdgeHeading{normalized[2], normalized[3]}

	selectedHor := selectClosest(horCandidates, e.currentHorEdge)
	selectedVert := selectClosest(vertCandidates, e.currentVertEdge)

	if selectedHor == nil && selectedVert == nil {
		if e.backupHeading != nil {
			return *e.backupHeading, nil
		}
		return models.Heading{}, models.ErrNoBackupHeadingAvailable
	}

	if selectedHor != nil {
		e.currentHorEdge = selectedHor
	}
	if selectedVert != nil {
		e.currentVertEdge = selectedVert
	}

	// Stage 3: orientation lock, set at most once.
	if e.State.FollowingHorizontalEdges == models.OrientationUnset {
		switch {
		case selectedHor != nil && selectedVert == nil:
			e.State.FollowingHorizontalEdges = models.OrientationHorizontal
		case selectedVert != nil && selectedHor == nil:
			e.State.FollowingHorizontalEdges = models.OrientationVertical
		case selectedHor.Rho < selectedVert.Rho:
			e.State.FollowingHorizontalEdges = models.OrientationHorizontal
		default:
			e.State.FollowingHorizontalEdges = models.OrientationVertical
		}
	}

	followingHor := e.State.FollowingHorizontalEdges == models.OrientationHorizontal

	var followed []*models.EdgeHeading
	var perpendicular *models.EdgeHeading
	if followingHor {
		followed = nonNilAll(horCandidates)
		perpendicular = selectedVert
	} else {
		followed = nonNilAll(vertCandidates)
		perpendicular = selectedHor
	}
	if len(followed) == 0 {
		// Followed family vanished this call; fall back to whichever survived.
		if selectedHor != nil {
			followed = []*models.EdgeHeading{selectedHor}
		} else {
			followed = []*models.EdgeHeading{selectedVert}
		}
	}

	diag := shape.Diagonal()

	// Stage 4: tip detection on the perpendicular family.
	tipDetected := false
	var tipEdge *models.EdgeHeading
	if perpendicular != nil && perpendicular.Rho <= diag/3 {
		tipDetected = true
		tipEdge = perpendicular
		e.currentTip = perpendicular
	}

	// Stage 5: heading synthesis over the followed family. A zero RhoStep
	// (rho_step_distance unset) steps a quarter of the frame diagonal.
	theta := synthesize(followed, diag, e.RhoMinPerc, e.State.TowardsTip)
	rhoStep := e.RhoStep
	if rhoStep <= 0 {
		rhoStep = diag / 4
	}
	heading := models.Heading{Rho: rhoStep, Theta: models.NormalizeAngle(theta)}
	e.backupHeading = &heading

	// Stage 6: tip/root transition overrides the synthesised heading.
	if tipDetected && e.State.TowardsTip {
		e.State.TowardsTip = false
		return models.Heading{Rho: tipEdge.Rho, Theta: models.NormalizeAngle(tipEdge.Theta + math.Pi/2)}, nil
	}
	if !e.State.TowardsTip && e.Root.Detected() {
		return models.Heading{Rho: 0, Theta: 0}, nil
	}

	return heading, nil
}

// nonNilAll returns the surviving (non-nil) members of a family's
// candidate slice, i.e. both the max and min edges when the perimeter
// filter let both through, matching the original's
// possible_hor_edge_headings/possible_vert_edge_headings.
func nonNilAll(candidates []*models.EdgeHeading) []*models.EdgeHeading {
	var out []*models.EdgeHeading
	for _, c := range candidates {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// normalize rewrites (rho, theta) relative to the image centre so the
// line's closest point to the centre is reachable with rho>=0,
// theta in [0, 2*pi).
func normalize(e models.EdgeHeading, shape models.Shape) models.EdgeHeading {
	cx, cy := float64(shape.W)/2, float64(shape.H)/2
	rho := e.Rho - (cx*math.Cos(e.Theta) + cy*math.Sin(e.Theta))
	theta := e.Theta
	if rho < 0 {
		rho = -rho
		theta += math.Pi
	}
	e.Rho = rho
	e.Theta = models.NormalizeAngle(theta)
	return e
}

func tooCloseToPerimeter(e models.EdgeHeading, shape models.Shape) bool {
	cx, cy := float64(shape.W)/2, float64(shape.H)/2
	px := cx + e.Rho*math.Cos(e.Theta)
	py := cy + e.Rho*math.Sin(e.Theta)
	return px < perimeterMargin || px > float64(shape.W)-perimeterMargin ||
		py < perimeterMargin || py > float64(shape.H)-perimeterMargin
}

// selectClosest picks, among the non-nil candidates, the one with rho
// closest to current's rho, or the smallest-rho candidate if current is
// unset.
func selectClosest(candidates []*models.EdgeHeading, current *models.EdgeHeading) *models.EdgeHeading {
	var best *models.EdgeHeading
	for _, c := range candidates {
		if c == nil {
			continue
		}
		switch {
		case best == nil:
			best = c
		case current != nil:
			if math.Abs(c.Rho-current.Rho) < math.Abs(best.Rho-current.Rho) {
				best = c
			}
		case c.Rho < best.Rho:
			best = c
		}
	}
	return best
}

// synthesize computes theta for the followed family, per spec §4.7
// stage 5.
func synthesize(followed []*models.EdgeHeading, diag, rhoMinPerc float64, towardsTip bool) float64 {
	if len(followed) == 2 && followed[0] != nil && followed[1] != nil {
		a, b := followed[0], followed[1]
		if expectedQuadrant(a) && expectedQuadrant(b) {
			theta := (a.Theta+b.Theta)/2 + math.Pi
			if !towardsTip {
				theta += math.Pi
			}
			return theta
		}
		// At least one in the wrong quadrant: fall back to the closer edge.
		closer := a
		if math.Abs(b.Rho) < math.Abs(a.Rho) {
			closer = b
		}
		return singleEdgeTheta(closer, diag, rhoMinPerc, towardsTip)
	}

	if len(followed) == 1 && followed[0] != nil {
		return singleEdgeTheta(followed[0], diag, rhoMinPerc, towardsTip)
	}

	return 0
}

// expectedQuadrant checks the edge's half-quadrant against its max/min
// flag, independent of travel direction: a max line is expected with
// theta in the line's "near" half, a min line in the "far" half.
func expectedQuadrant(e *models.EdgeHeading) bool {
	theta := models.NormalizeAngle(e.Theta)
	if e.IsHorizontal {
		if e.IsMax {
			return !(theta > math.Pi && theta < 2*math.Pi)
		}
		return theta >= math.Pi && theta <= 2*math.Pi
	}
	if e.IsMax {
		return !(theta > math.Pi/2 && theta < 3*math.Pi/2)
	}
	return theta >= math.Pi/2 && theta <= 3*math.Pi/2
}

func singleEdgeTheta(e *models.EdgeHeading, diag, rhoMinPerc float64, towardsTip bool) float64 {
	rhoF := diag - e.Rho
	rhoMinAbs := diag * rhoMinPerc

	wrongQuadrant := !expectedQuadrant(e)
	if wrongQuadrant {
		rhoF, rhoMinAbs = rhoMinAbs, rhoF
	}

	var w float64
	if rhoMinAbs <= rhoF {
		w = 2 - rhoMinAbs/rhoF
	} else {
		w = rhoF / rhoMinAbs
	}

	sign := 1.0
	if e.IsMax {
		sign = -sign
	}
	if !towardsTip {
		sign = -sign
	}
	if wrongQuadrant {
		sign = -sign
	}

	return e.Theta + sign*(math.Pi/2)*w
}
