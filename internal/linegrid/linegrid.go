// Package linegrid implements LineGrid: fitting a sparse axis-aligned
// hough line grid to a keypoint cloud, bounding every line to its
// in-cloud segment, and picking the four extremal segments.
package linegrid

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/your-org/blade-inspector/internal/models"
)

// Result is LineGrid's output: every bounded segment found, plus the
// four extremal segments in [max_hor, min_hor, max_vert, min_vert] order.
type Result struct {
	Segments []models.BoundedSegment
	Extremes [4]models.BoundedSegment
}

const (
	idxMaxHor = iota
	idxMinHor
	idxMaxVert
	idxMinVert
)

// cluster is a run of keypoint indices collapsed onto one representative
// coordinate along a single axis.
type cluster struct {
	rho     float64
	members []int
}

// Fit runs steps A-E of the grid fit. r is the concatenation/bounding
// radius; when nil it falls back to the largest keypoint size, per
// spec §4.5.
func Fit(keypoints []models.Keypoint, shape models.Shape, r *float64) (Result, error) {
	if len(keypoints) == 0 {
		return Result{}, models.ErrFindLineLimitsNoHorOrVert
	}

	threshold := 0.0
	if r != nil {
		threshold = *r
	} else {
		threshold = largestSize(keypoints)
	}
	if threshold <= 0 {
		threshold = 1
	}

	// Step A: vote. The accumulator is conceptually a (2*diag, 2)
	// gonum/mat.Dense grid — one column per theta in {0, pi/2} — but
	// since only cells with >=1 vote matter (step B), we build the
	// sparse candidate set directly via vote maps keyed on the rounded
	// rho, tracking the accumulator shape for bounds validation only.
	diag := shape.Diagonal()
	acc := mat.NewDense(int(2*diag)+1, 2, nil)
	_ = acc // shape retained for parity with the spec's accumulator; votes live in the maps below

	vertVotes := map[int][]int{} // theta=0: rho = round(x)
	horizVotes := map[int][]int{}

	for i, k := range keypoints {
		vertVotes[roundInt(k.Centre.X)] = append(vertVotes[roundInt(k.Centre.X)], i)
		horizVotes[roundInt(k.Centre.Y)] = append(horizVotes[roundInt(k.Centre.Y)], i)
	}

	vertClusters := collapseClusters(toClusters(vertVotes), keypoints, axisX, threshold)
	horizClusters := collapseClusters(toClusters(horizVotes), keypoints, axisY, threshold)

	vertSegs := bound(vertClusters, keypoints, shape, false, threshold)
	horizSegs := bound(horizClusters, keypoints, shape, true, threshold)

	all := make([]models.BoundedSegment, 0, len(vertSegs)+len(horizSegs))
	all = append(all, horizSegs...)
	all = append(all, vertSegs...)

	maxHor, minHor, okHor := extremal(horizSegs)
	maxVert, minVert, okVert := extremal(vertSegs)
	if !okHor || !okVert {
		return Result{}, models.ErrFindLineLimitsNoHorOrVert
	}

	return Result{
		Segments: all,
		Extremes: [4]models.BoundedSegment{maxHor, minHor, maxVert, minVert},
	}, nil
}

type axis int

const (
	axisX axis = iota
	axisY
)

func toClusters(votes map[int][]int) []cluster {
	out := make([]cluster, 0, len(votes))
	for rho, members := range votes {
		out = append(out, cluster{rho: float64(rho), members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rho < out[j].rho })
	return out
}

// collapseClusters merges adjacent clusters whose rho gap is below
// threshold, replacing them with one cluster at the member median;
// threshold grows by half each round until <=2 clusters remain or a
// full pass makes no merge (convergence).
func collapseClusters(clusters []cluster, keypoints []models.Keypoint, ax axis, threshold float64) []cluster {
	for {
		if len(clusters) <= 2 {
			return clusters
		}
		merged := make([]cluster, 0, len(clusters))
		changed := false
		i := 0
		for i < len(clusters) {
			cur := clusters[i]
			j := i + 1
			for j < len(clusters) && clusters[j].rho-cur.rho < threshold {
				cur = mergeClusters(cur, clusters[j], keypoints, ax)
				changed = true
				j++
			}
			merged = append(merged, cur)
			i = j
		}
		clusters = merged
		if !changed {
			return clusters
		}
		threshold += threshold / 2
	}
}

func mergeClusters(a, b cluster, keypoints []models.Keypoint, ax axis) cluster {
	members := append(append([]int{}, a.members...), b.members...)
	vals := make([]float64, len(members))
	for i, idx := range members {
		vals[i] = coord(keypoints[idx], ax)
	}
	return cluster{rho: median(vals), members: members}
}

func coord(k models.Keypoint, ax axis) float64 {
	if ax == axisX {
		return k.Centre.X
	}
	return k.Centre.Y
}

func median(xs []float64) float64 {
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// bound performs step D: keypoints within threshold of each cluster's
// rho give that line's BoundedSegment; clusters with fewer than two
// supporting keypoints are discarded.
func bound(clusters []cluster, keypoints []models.Keypoint, shape models.Shape, horizontal bool, threshold float64) []models.BoundedSegment {
	var out []models.BoundedSegment
	for _, c := range clusters {
		var supporting []int
		for i, k := range keypoints {
			v := coord(k, axisForLine(horizontal))
			if math.Abs(v-c.rho) < threshold {
				supporting = append(supporting, i)
			}
		}
		if len(supporting) < 2 {
			continue
		}

		perp := axisOrtho(horizontal)
		var minV, maxV float64
		minV, maxV = math.Inf(1), math.Inf(-1)
		for _, i := range supporting {
			v := coord(keypoints[i], perp)
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}

		var p1, p2 models.Point2D
		var theta float64
		if horizontal {
			p1 = models.Point2D{X: minV, Y: c.rho}
			p2 = models.Point2D{X: maxV, Y: c.rho}
			theta = math.Pi / 2
		} else {
			p1 = models.Point2D{X: c.rho, Y: minV}
			p2 = models.Point2D{X: c.rho, Y: maxV}
			theta = 0
		}

		out = append(out, models.BoundedSegment{
			Line:       models.HoughLine{Rho: c.rho, Theta: theta},
			P1:         p1,
			P2:         p2,
			Horizontal: horizontal,
			NumPoints:  len(supporting),
		})
	}
	return out
}

func axisForLine(horizontal bool) axis {
	if horizontal {
		return axisY
	}
	return axisX
}

func axisOrtho(horizontal bool) axis {
	if horizontal {
		return axisX
	}
	return axisY
}

// extremal picks the segments with largest/smallest midpoint coordinate
// along the line's own rho axis.
func extremal(segs []models.BoundedSegment) (maxSeg, minSeg models.BoundedSegment, ok bool) {
	if len(segs) == 0 {
		return models.BoundedSegment{}, models.BoundedSegment{}, false
	}
	maxSeg, minSeg = segs[0], segs[0]
	for _, s := range segs[1:] {
		if s.Line.Rho > maxSeg.Line.Rho {
			maxSeg = s
		}
		if s.Line.Rho < minSeg.Line.Rho {
			minSeg = s
		}
	}
	return maxSeg, minSeg, true
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

func largestSize(kps []models.Keypoint) float64 {
	var max float64
	for _, k := range kps {
		if k.Size > max {
			max = k.Size
		}
	}
	return max
}
