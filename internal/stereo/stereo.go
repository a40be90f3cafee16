// Package stereo implements Stereopsis: left/right keypoint matching
// (block-window or descriptor-based) and 3D reconstruction (disparity
// formula or SVD/Hartley-Zisserman triangulation).
package stereo

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/your-org/blade-inspector/internal/calib"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/statutil"
)

// MatchConfig selects and tunes one matching strategy per mission.
type MatchConfig struct {
	UseBlockMatching   bool
	BlockMatchingParam float64 // tuning_param, default 2.5
	UseBruteForce      bool    // descriptor path only: brute-force L1 cross-check vs FLANN-style kd-tree
	CalibratedSpacing  float64
}

// Match pairs left and right keypoints per the configured strategy.
func Match(left, right []models.Keypoint, leftDesc, rightDesc []models.Descriptor, cfg MatchConfig) ([]models.Match, error) {
	var matches []models.Match

	if cfg.UseBlockMatching {
		matches = blockMatch(left, right, cfg.CalibratedSpacing, cfg.BlockMatchingParam)
	} else if cfg.UseBruteForce {
		matches = bruteForceMatch(leftDesc, rightDesc)
	} else {
		matches = flannMatch(leftDesc, rightDesc)
	}

	if len(matches) == 0 {
		return nil, models.ErrNo3DPointMatches
	}
	return matches, nil
}

// blockMatch scans a rectangular window around each left keypoint's row
// for the nearest-distance right keypoint of compatible size.
func blockMatch(left, right []models.Keypoint, spacing, tuningParam float64) []models.Match {
	if tuningParam == 0 {
		tuningParam = 2.5
	}
	k := int(math.Round(spacing * tuningParam))
	if k%2 == 0 {
		k++
	}
	halfV := k / 2
	halfH := k / 6

	meanSize := meanKeypointSize(append(append([]models.Keypoint{}, left...), right...))

	var matches []models.Match
	for li, l := range left {
		best := -1
		bestDist := math.Inf(1)
		for ri, r := range right {
			if math.Abs(r.Centre.Y-l.Centre.Y) > float64(halfV) {
				continue
			}
			if math.Abs(r.Centre.X-l.Centre.X) > float64(halfH) {
				continue
			}
			if math.Abs(r.Size-l.Size) >= 0.25*meanSize {
				continue
			}
			d := math.Hypot(r.Centre.X-l.Centre.X, r.Centre.Y-l.Centre.Y)
			if d < bestDist {
				bestDist = d
				best = ri
			}
		}
		if best >= 0 {
			matches = append(matches, models.Match{LeftIndex: li, RightIndex: best, Distance: bestDist})
		}
	}
	return matches
}

func meanKeypointSize(kps []models.Keypoint) float64 {
	if len(kps) == 0 {
		return 0
	}
	sizes := make([]float64, len(kps))
	for i, k := range kps {
		sizes[i] = k.Size
	}
	m, _ := statutil.MeanStdDev(sizes)
	return m
}

// flannMatch runs the kd-tree-backed k=7 nearest-neighbour search and
// accepts a candidate iff its distance is under 0.7x the mean distance
// of the other 6 neighbours.
func flannMatch(leftDesc, rightDesc []models.Descriptor) []models.Match {
	if len(leftDesc) == 0 || len(rightDesc) == 0 {
		return nil
	}

	points := make([]kdPoint, len(rightDesc))
	for i, d := range rightDesc {
		points[i] = kdPoint{vec: d, index: i}
	}
	tree := buildKDTree(points)

	const k = 7
	var matches []models.Match
	for li, ld := range leftDesc {
		neighbors := tree.kNearest(ld, k)
		if len(neighbors) == 0 {
			continue
		}
		best := neighbors[0]
		if len(neighbors) < 2 {
			matches = append(matches, models.Match{LeftIndex: li, RightIndex: best.index, Distance: best.dist})
			continue
		}
		var restSum float64
		for _, n := range neighbors[1:] {
			restSum += n.dist
		}
		restMean := restSum / float64(len(neighbors)-1)
		if best.dist < 0.7*restMean {
			matches = append(matches, models.Match{LeftIndex: li, RightIndex: best.index, Distance: best.dist})
		}
	}
	return matches
}

// bruteForceMatch does an L1 nearest-neighbour search with cross-check:
// a pair survives only if each is the other's nearest neighbour.
func bruteForceMatch(leftDesc, rightDesc []models.Descriptor) []models.Match {
	if len(leftDesc) == 0 || len(rightDesc) == 0 {
		return nil
	}

	nearestRight := make([]int, len(leftDesc))
	for i, ld := range leftDesc {
		nearestRight[i] = nearestL1(ld, rightDesc)
	}
	nearestLeft := make([]int, len(rightDesc))
	for i, rd := range rightDesc {
		nearestLeft[i] = nearestL1(rd, leftDesc)
	}

	var matches []models.Match
	for li, ri := range nearestRight {
		if ri < 0 {
			continue
		}
		if nearestLeft[ri] == li {
			matches = append(matches, models.Match{LeftIndex: li, RightIndex: ri, Distance: l1(leftDesc[li], rightDesc[ri])})
		}
	}
	return matches
}

func nearestL1(d models.Descriptor, pool []models.Descriptor) int {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range pool {
		dist := l1(d, p)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func l1(a, b models.Descriptor) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// ReconstructConfig selects the 3D reconstruction strategy.
type ReconstructConfig struct {
	UseTriangulation    bool // false -> disparity formula
	UseCV2Triangulation bool // true -> iterative Hartley-Zisserman, false -> linear SVD
	SigmaFilter         bool
	Calib               calib.StereoCalibration
}

// Reconstruct turns matched left/right keypoints into metric 3D points.
func Reconstruct(matches []models.Match, left, right []models.Keypoint, cfg ReconstructConfig) ([]models.Point3D, error) {
	if len(matches) == 0 {
		return nil, models.ErrNo3DPointMatches
	}

	var points []models.Point3D
	var err error
	if !cfg.UseTriangulation {
		points, err = reconstructDisparity(matches, left, right, cfg.Calib)
	} else if cfg.UseCV2Triangulation {
		points, err = reconstructHZ(matches, left, right, cfg.Calib)
	} else {
		points, err = reconstructSVD(matches, left, right, cfg.Calib)
	}
	if err != nil {
		return nil, err
	}

	filtered := make([]models.Point3D, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil, models.ErrNo3DPointMatches
	}

	if cfg.SigmaFilter {
		filtered, err = sigmaFilterZ(filtered)
		if err != nil {
			return nil, err
		}
	}

	return filtered, nil
}

func reconstructDisparity(matches []models.Match, left, right []models.Keypoint, c calib.StereoCalibration) ([]models.Point3D, error) {
	f := c.FocalLengthPx()
	bPx := c.BaselinePx()
	bMM := c.BaselineMM()
	scale := 1.0
	if bPx != 0 {
		scale = bMM / bPx
	}

	var out []models.Point3D
	for _, m := range matches {
		l, r := left[m.LeftIndex], right[m.RightIndex]
		d := l.Centre.X - r.Centre.X
		if d == 0 {
			continue // skip d=0 with a warning logged by the caller
		}
		z := f * bPx / d
		x := l.Centre.X * z / f
		y := l.Centre.Y * z / f
		out = append(out, models.Point3D{X: x * scale, Y: y * scale, Z: z * scale})
	}
	return out, nil
}

// reconstructSVD solves for the right null-vector of the 4x4 stack of
// x*P[2,:]-P[0,:], y*P[2,:]-P[1,:] for both views.
func reconstructSVD(matches []models.Match, left, right []models.Keypoint, c calib.StereoCalibration) ([]models.Point3D, error) {
	pl := c.ProjectionLeft()
	pr := c.ProjectionRight()
	q := c.DisparityToDepth()

	var out []models.Point3D
	for _, m := range matches {
		l, r := left[m.LeftIndex], right[m.RightIndex]
		a := buildDLT(pl, pr, l.Centre, r.Centre)
		homog, err := nullVector(a)
		if err != nil {
			return nil, models.NewErrorf(models.KindTriangulation, "svd triangulation", err)
		}
		p := applyQ(q, homog)
		out = append(out, p)
	}
	return out, nil
}

// reconstructHZ iteratively reweights the DLT system per
// Hartley-Zisserman, up to 10 iterations or until the weight delta
// settles below 1.0.
func reconstructHZ(matches []models.Match, left, right []models.Keypoint, c calib.StereoCalibration) ([]models.Point3D, error) {
	pl := c.ProjectionLeft()
	pr := c.ProjectionRight()
	q := c.DisparityToDepth()

	var out []models.Point3D
	for _, m := range matches {
		l, r := left[m.LeftIndex], right[m.RightIndex]

		wL, wR := 1.0, 1.0
		var homog []float64
		for iter := 0; iter < 10; iter++ {
			a := buildWeightedDLT(pl, pr, l.Centre, r.Centre, wL, wR)
			sol, err := nullVector(a)
			if err != nil {
				return nil, models.NewErrorf(models.KindTriangulation, "hz triangulation", err)
			}
			homog = sol

			newWL := dotRow(pl, 2, homog)
			newWR := dotRow(pr, 2, homog)
			deltaW := math.Abs(newWL-wL) + math.Abs(newWR-wR)
			wL, wR = newWL, newWR
			if deltaW <= 1.0 {
				break
			}
		}
		p := applyQ(q, homog)
		out = append(out, p)
	}
	return out, nil
}

func buildDLT(pl, pr mat.Dense, l, r models.Point2D) mat.Dense {
	return buildWeightedDLT(pl, pr, l, r, 1, 1)
}

func buildWeightedDLT(pl, pr mat.Dense, l, r models.Point2D, wL, wR float64) mat.Dense {
	a := mat.NewDense(4, 4, nil)
	fillDLTRow(a, 0, pl, l.X, 0, wL)
	fillDLTRow(a, 1, pl, l.Y, 1, wL)
	fillDLTRow(a, 2, pr, r.X, 0, wR)
	fillDLTRow(a, 3, pr, r.Y, 1, wR)
	return *a
}

func fillDLTRow(a *mat.Dense, row int, p mat.Dense, coord float64, axisRow int, w float64) {
	for c := 0; c < 4; c++ {
		v := coord*p.At(2, c) - p.At(axisRow, c)
		a.Set(row, c, v/w)
	}
}

func dotRow(p mat.Dense, row int, x []float64) float64 {
	var sum float64
	for c := 0; c < 4; c++ {
		sum += p.At(row, c) * x[c]
	}
	return sum
}

// nullVector returns the right null-vector of a (the last column of V
// in a's SVD), the homogeneous solution of the DLT system.
func nullVector(a mat.Dense) ([]float64, error) {
	var svd mat.SVD
	ok := svd.Factorize(&a, mat.SVDFull)
	if !ok {
		return nil, models.ErrTriangulation
	}
	var v mat.Dense
	svd.VTo(&v)
	r, _ := v.Dims()
	col := r - 1
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = v.At(i, col)
	}
	return out, nil
}

func applyQ(q mat.Dense, homog []float64) models.Point3D {
	// homog is itself the reconstructed homogeneous point in the DLT's
	// camera-left frame; Q maps a disparity-space point to metric space
	// for the disparity-formula path. For triangulation, the DLT
	// solution is already metric once dehomogenised by w.
	w := homog[3]
	if w == 0 {
		return models.Point3D{Z: -1}
	}
	return models.Point3D{X: homog[0] / w, Y: homog[1] / w, Z: homog[2] / w}
}

func sigmaFilterZ(points []models.Point3D) ([]models.Point3D, error) {
	zs := make([]float64, len(points))
	for i, p := range points {
		zs[i] = p.Z
	}
	mean, stddev := statutil.MeanStdDev(zs)

	out := make([]models.Point3D, 0, len(points))
	for _, p := range points {
		if statutil.WithinOneSigma(p.Z, mean, stddev) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, models.NewError(models.KindPointFiltrationFailed)
	}
	return out, nil
}
