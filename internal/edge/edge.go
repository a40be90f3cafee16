// Package edge implements EdgeFinder: deriving the four blade boundary
// lines from an undistorted frame and the grid's extremal segments, by
// walking a canny edge map perpendicular to each candidate boundary.
package edge

import (
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/statutil"
)

const (
	idxMaxHor = iota
	idxMinHor
	idxMaxVert
	idxMinVert
)

const (
	cannyLow      = 30
	cannyHigh     = 45
	cannyAperture = 3
	strip         = 1 // pixels either side of the walk column/row
	peakRatio     = 1.2
)

// FindEdges derives the four (rho, theta) boundary edges in
// [max_hor, min_hor, max_vert, min_vert] order.
func FindEdges(undistorted gocv.Mat, shape models.Shape, segments []models.BoundedSegment, extremes [4]models.BoundedSegment, scaleThreshold float64) ([4]models.EdgeHeading, error) {
	canny := gocv.NewMat()
	defer canny.Close()
	gocv.CannyWithParams(undistorted, &canny, cannyLow, cannyHigh, cannyAperture, true)

	var out [4]models.EdgeHeading
	found := [4]bool{}

	borders := [4]float64{
		float64(shape.H - 1), // max_hor -> bottom
		0,                    // min_hor -> top
		float64(shape.W - 1), // max_vert -> right
		0,                    // min_vert -> left
	}
	isMax := [4]bool{true, false, true, false}
	horizFamily := [4]bool{true, true, false, false}

	for idx, ext := range extremes {
		if ext.NumPoints == 0 {
			continue
		}
		frameSide := float64(shape.W)
		if horizFamily[idx] {
			frameSide = float64(shape.H)
		}
		if math.Abs(ext.Line.Rho-borders[idx]) >= scaleThreshold*frameSide {
			continue
		}

		points := walkOrthogonal(canny, shape, segments, ext, horizFamily[idx], borders[idx])
		if len(points) < 2 {
			continue
		}
		points = sigmaFilterPoints(points)
		if len(points) < 2 {
			continue
		}

		rho, theta, ok := fitNear(points, horizFamily[idx])
		if !ok {
			continue
		}

		out[idx] = models.EdgeHeading{Rho: rho, Theta: theta, IsMax: isMax[idx], IsHorizontal: horizFamily[idx]}
		found[idx] = true
	}

	for _, f := range found {
		if !f {
			return out, models.ErrBoundaryEdgeNotFound
		}
	}
	return out, nil
}

// walkOrthogonal finds, for every bounded segment orthogonal to ext's
// family, the first canny edge pixel walking from ext's line toward
// border within a narrow strip.
func walkOrthogonal(canny gocv.Mat, shape models.Shape, segments []models.BoundedSegment, ext models.BoundedSegment, horizFamily bool, border float64) []models.Point2D {
	var points []models.Point2D

	for _, seg := range segments {
		if seg.Horizontal == horizFamily {
			continue // want the orthogonal family
		}

		if horizFamily {
			// ext is a horizontal line (y = ext.Line.Rho); seg is
			// vertical (x = seg.Line.Rho). Walk along column x=seg.Line.Rho
			// from y=ext.Line.Rho toward border.
			x := int(math.Round(seg.Line.Rho))
			y0 := int(math.Round(ext.Line.Rho))
			if p, ok := walkColumn(canny, shape, x, y0, int(border)); ok {
				points = append(points, p)
			}
		} else {
			y := int(math.Round(seg.Line.Rho))
			x0 := int(math.Round(ext.Line.Rho))
			if p, ok := walkRow(canny, shape, y, x0, int(border)); ok {
				points = append(points, p)
			}
		}
	}
	return points
}

func walkColumn(canny gocv.Mat, shape models.Shape, x, yFrom, yTo int) (models.Point2D, bool) {
	step := 1
	if yTo < yFrom {
		step = -1
	}
	for y := yFrom; y != yTo+step; y += step {
		if y < 0 || y >= shape.H {
			break
		}
		for dx := -strip; dx <= strip; dx++ {
			xx := x + dx
			if xx < 0 || xx >= shape.W {
				continue
			}
			if canny.GetUCharAt(y, xx) != 0 {
				return models.Point2D{X: float64(xx), Y: float64(y)}, true
			}
		}
	}
	return models.Point2D{}, false
}

func walkRow(canny gocv.Mat, shape models.Shape, y, xFrom, xTo int) (models.Point2D, bool) {
	step := 1
	if xTo < xFrom {
		step = -1
	}
	for x := xFrom; x != xTo+step; x += step {
		if x < 0 || x >= shape.W {
			break
		}
		for dy := -strip; dy <= strip; dy++ {
			yy := y + dy
			if yy < 0 || yy >= shape.H {
				continue
			}
			if canny.GetUCharAt(yy, x) != 0 {
				return models.Point2D{X: float64(x), Y: float64(yy)}, true
			}
		}
	}
	return models.Point2D{}, false
}

func sigmaFilterPoints(points []models.Point2D) []models.Point2D {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	mx, sx := statutil.MeanStdDev(xs)
	my, sy := statutil.MeanStdDev(ys)

	out := make([]models.Point2D, 0, len(points))
	for _, p := range points {
		if statutil.WithinOneSigma(p.X, mx, sx) && statutil.WithinOneSigma(p.Y, my, sy) {
			out = append(out, p)
		}
	}
	if len(out) < 2 {
		return points
	}
	return out
}

// fitNear fits a hough line to points with theta restricted to +-45
// degrees around the family's axis theta (pi/2 for horizontal, 0 for
// vertical): a Speeded-Up accumulator over that narrow band, taking the
// median rho/theta of every peak cell at or above maxVotes/1.2.
func fitNear(points []models.Point2D, horizFamily bool) (rho, theta float64, ok bool) {
	axisTheta := 0.0
	if horizFamily {
		axisTheta = math.Pi / 2
	}

	const steps = 91
	type cell struct {
		rho, theta float64
		votes      int
	}
	votes := map[[2]int]*cell{}

	for s := 0; s < steps; s++ {
		th := axisTheta - math.Pi/4 + float64(s)*(math.Pi/2)/float64(steps-1)
		cosT, sinT := math.Cos(th), math.Sin(th)
		for _, p := range points {
			r := math.Round(p.X*cosT + p.Y*sinT)
			key := [2]int{int(r), s}
			c, exists := votes[key]
			if !exists {
				c = &cell{rho: r, theta: th}
				votes[key] = c
			}
			c.votes++
		}
	}

	if len(votes) == 0 {
		return 0, 0, false
	}

	maxVotes := 0
	for _, c := range votes {
		if c.votes > maxVotes {
			maxVotes = c.votes
		}
	}
	if maxVotes == 0 {
		return 0, 0, false
	}

	thresh := float64(maxVotes) / peakRatio
	var rhos, thetas []float64
	for _, c := range votes {
		if float64(c.votes) >= thresh {
			rhos = append(rhos, c.rho)
			thetas = append(thetas, c.theta)
		}
	}
	if len(rhos) == 0 {
		return 0, 0, false
	}

	return medianF(rhos), medianF(thetas), true
}

func medianF(xs []float64) float64 {
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
