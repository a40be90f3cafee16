// kdtree.go hand-rolls a small recursive-partition KD-tree for the
// descriptor-match path. No pack library exposes FLANN bindings, so
// this stands in for FLANN's kd-tree forest (trees=1 in the source's
// configuration, i.e. a single tree), performing an exact nearest-
// neighbour search rather than FLANN's approximate, checks-bounded one.
package stereo

import (
	"container/heap"
	"math"
)

type kdPoint struct {
	vec   []float32
	index int
}

type kdNode struct {
	point       kdPoint
	axis        int
	left, right *kdNode
}

type kdTree struct {
	root *kdNode
	dim  int
}

func buildKDTree(points []kdPoint) *kdTree {
	if len(points) == 0 {
		return &kdTree{}
	}
	dim := len(points[0].vec)
	root := buildNode(append([]kdPoint{}, points...), 0, dim)
	return &kdTree{root: root, dim: dim}
}

func buildNode(points []kdPoint, depth, dim int) *kdNode {
	if len(points) == 0 {
		return nil
	}
	axis := depth % dim
	sortByAxis(points, axis)
	mid := len(points) / 2
	node := &kdNode{point: points[mid], axis: axis}
	node.left = buildNode(points[:mid], depth+1, dim)
	node.right = buildNode(points[mid+1:], depth+1, dim)
	return node
}

func sortByAxis(points []kdPoint, axis int) {
	// insertion sort: descriptor batches per frame are small (tens of
	// keypoints), so an O(n^2) sort is not a hot path.
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].vec[axis] < points[j-1].vec[axis]; j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}

type neighbor struct {
	index int
	dist  float64
}

type neighborHeap []neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist } // min-heap on dist
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x interface{}) { *h = append(*h, x.(neighbor)) }
func (h *neighborHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kNearest returns the k nearest neighbours to target by euclidean
// distance, ascending by distance.
func (t *kdTree) kNearest(target []float32, k int) []neighbor {
	if t.root == nil || k <= 0 {
		return nil
	}
	h := &maxDistHeap{}
	heap.Init(h)
	search(t.root, target, k, h)

	out := make([]neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(neighbor)
	}
	return out
}

// maxDistHeap is a bounded max-heap on distance, used to keep the
// current k-best candidates during traversal.
type maxDistHeap []neighbor

func (h maxDistHeap) Len() int            { return len(h) }
func (h maxDistHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) { *h = append(*h, x.(neighbor)) }
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func search(node *kdNode, target []float32, k int, h *maxDistHeap) {
	if node == nil {
		return
	}
	d := l2(node.point.vec, target)
	if h.Len() < k {
		heap.Push(h, neighbor{index: node.point.index, dist: d})
	} else if d < (*h)[0].dist {
		heap.Pop(h)
		heap.Push(h, neighbor{index: node.point.index, dist: d})
	}

	diff := float64(target[node.axis] - node.point.vec[node.axis])
	near, far := node.left, node.right
	if diff > 0 {
		near, far = node.right, node.left
	}
	search(near, target, k, h)
	if h.Len() < k || math.Abs(diff) < (*h)[0].dist {
		search(far, target, k, h)
	}
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
