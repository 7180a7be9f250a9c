package raytracing

import (
	stdmath "math"
	"sort"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

const (
	// maxLeafSize bounds the primitives stored in one leaf.
	maxLeafSize   = 4
	sahBins       = 12
	maxStackDepth = 64
)

// BVHNode is one node of a flattened hierarchy. Leaves have Count > 0 and
// own Primitives[First:First+Count]. Interior nodes keep their left child
// at the next index and their right child at First.
type BVHNode struct {
	Bounds scene.AABB
	First  int32
	Count  int32
}

// IsLeaf reports whether the node stores primitives.
func (n BVHNode) IsLeaf() bool { return n.Count > 0 }

// BVH is a bounding volume hierarchy over abstract primitives, flattened in
// depth-first order so it can be uploaded to a GPU as-is.
type BVH struct {
	Nodes []BVHNode
	// Primitives lists primitive indices in leaf order.
	Primitives []int32
}

type buildPrim struct {
	index    int32
	bounds   scene.AABB
	centroid math.Vec3
}

// BuildBVH builds a hierarchy over the given primitive bounds using binned
// SAH splits, falling back to a median split when SAH finds no useful
// partition. An empty input yields an empty BVH.
func BuildBVH(bounds []scene.AABB) *BVH {
	b := &BVH{}
	if len(bounds) == 0 {
		return b
	}
	prims := make([]buildPrim, len(bounds))
	for i, box := range bounds {
		prims[i] = buildPrim{index: int32(i), bounds: box, centroid: box.Center()}
	}
	b.Nodes = make([]BVHNode, 0, 2*len(bounds))
	b.Primitives = make([]int32, 0, len(bounds))
	b.build(prims)
	return b
}

func (b *BVH) build(prims []buildPrim) int32 {
	box := scene.EmptyAABB()
	cbox := scene.EmptyAABB()
	for _, p := range prims {
		box = box.Union(p.bounds)
		cbox = cbox.Extend(p.centroid)
	}

	idx := int32(len(b.Nodes))
	b.Nodes = append(b.Nodes, BVHNode{Bounds: box})

	if len(prims) <= maxLeafSize {
		b.makeLeaf(idx, prims)
		return idx
	}

	axis := cbox.LongestAxis()
	extent := cbox.Max.Axis(axis) - cbox.Min.Axis(axis)
	mid := -1
	if extent > 0 {
		mid = sahSplit(prims, axis, cbox.Min.Axis(axis), extent)
	}
	if mid <= 0 || mid >= len(prims) {
		sort.Slice(prims, func(i, j int) bool {
			return prims[i].centroid.Axis(axis) < prims[j].centroid.Axis(axis)
		})
		mid = len(prims) / 2
	}
	b.split(idx, prims[:mid], prims[mid:])
	return idx
}

func (b *BVH) makeLeaf(idx int32, prims []buildPrim) {
	b.Nodes[idx].First = int32(len(b.Primitives))
	b.Nodes[idx].Count = int32(len(prims))
	for _, p := range prims {
		b.Primitives = append(b.Primitives, p.index)
	}
}

func (b *BVH) split(idx int32, left, right []buildPrim) {
	b.build(left)
	r := b.build(right)
	b.Nodes[idx].First = r
}

// sahSplit partitions prims in place around the cheapest bin boundary and
// returns the split position, or -1 when every centroid lands in one bin.
func sahSplit(prims []buildPrim, axis int, cmin, extent float32) int {
	type bin struct {
		box   scene.AABB
		count int
	}
	var bins [sahBins]bin
	for i := range bins {
		bins[i].box = scene.EmptyAABB()
	}
	binOf := func(p buildPrim) int {
		k := int(float32(sahBins) * (p.centroid.Axis(axis) - cmin) / extent)
		if k >= sahBins {
			k = sahBins - 1
		}
		if k < 0 {
			k = 0
		}
		return k
	}
	for _, p := range prims {
		k := binOf(p)
		bins[k].count++
		bins[k].box = bins[k].box.Union(p.bounds)
	}

	// sweep from the right to get suffix areas
	var rightArea [sahBins]float32
	var rightCount [sahBins]int
	acc := scene.EmptyAABB()
	n := 0
	for i := sahBins - 1; i > 0; i-- {
		acc = acc.Union(bins[i].box)
		n += bins[i].count
		rightArea[i] = acc.SurfaceArea()
		rightCount[i] = n
	}

	best := -1
	bestCost := float32(stdmath.MaxFloat32)
	acc = scene.EmptyAABB()
	n = 0
	for i := 0; i < sahBins-1; i++ {
		acc = acc.Union(bins[i].box)
		n += bins[i].count
		if n == 0 || rightCount[i+1] == 0 {
			continue
		}
		cost := acc.SurfaceArea()*float32(n) + rightArea[i+1]*float32(rightCount[i+1])
		if cost < bestCost {
			bestCost = cost
			best = i
		}
	}
	if best < 0 {
		return -1
	}
	// partition: bins <= best go left
	i, j := 0, len(prims)-1
	for i <= j {
		if binOf(prims[i]) <= best {
			i++
		} else {
			prims[i], prims[j] = prims[j], prims[i]
			j--
		}
	}
	return i
}

// Depth returns the length of the longest root-to-leaf path.
func (b *BVH) Depth() int {
	if len(b.Nodes) == 0 {
		return 0
	}
	var walk func(i int32) int
	walk = func(i int32) int {
		n := b.Nodes[i]
		if n.IsLeaf() {
			return 1
		}
		l, r := walk(i+1), walk(n.First)
		if r > l {
			l = r
		}
		return l + 1
	}
	return walk(0)
}

// Ray is a ray with a cached reciprocal direction for slab tests.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3
	invDir    math.Vec3
}

// NewRay prepares a ray for traversal. Direction need not be normalized.
func NewRay(origin, dir math.Vec3) Ray {
	return Ray{
		Origin:    origin,
		Direction: dir,
		invDir:    math.Vec3{X: safeInv(dir.X), Y: safeInv(dir.Y), Z: safeInv(dir.Z)},
	}
}

func safeInv(v float32) float32 {
	if v == 0 {
		return float32(stdmath.Inf(1))
	}
	return 1 / v
}

// HitsAABB is the slab test; it returns the entry distance on a hit.
func (r Ray) HitsAABB(box scene.AABB, tMin, tMax float32) (float32, bool) {
	for a := 0; a < 3; a++ {
		inv := r.invDir.Axis(a)
		o := r.Origin.Axis(a)
		t0 := (box.Min.Axis(a) - o) * inv
		t1 := (box.Max.Axis(a) - o) * inv
		if inv < 0 {
			t0, t1 = t1, t0
		}
		// 0*inf yields NaN when the origin sits on a slab; treat as inside
		if t0 == t0 && t0 > tMin {
			tMin = t0
		}
		if t1 == t1 && t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return 0, false
		}
	}
	return tMin, true
}

// Intersect walks the hierarchy and calls hit for every primitive whose
// leaf the ray reaches. hit returns the primitive distance and whether it
// counts; traversal narrows tMax to the closest accepted hit. It returns
// the closest primitive, or -1, and its distance.
func (b *BVH) Intersect(r Ray, tMin, tMax float32, hit func(prim int32, tMax float32) (float32, bool)) (int32, float32) {
	best := int32(-1)
	b.walk(r, tMin, &tMax, func(prim int32) bool {
		if t, ok := hit(prim, tMax); ok && t >= tMin && t < tMax {
			tMax = t
			best = prim
		}
		return false
	})
	return best, tMax
}

// Occluded reports whether any primitive accepted by hit lies within
// [tMin, tMax]. Traversal stops at the first accepted primitive.
func (b *BVH) Occluded(r Ray, tMin, tMax float32, hit func(prim int32, tMax float32) bool) bool {
	found := false
	b.walk(r, tMin, &tMax, func(prim int32) bool {
		found = hit(prim, tMax)
		return found
	})
	return found
}

// walk visits leaf primitives front to back along the ray. visit returns
// true to stop. tMax is re-read after every visit so callers can shrink it.
func (b *BVH) walk(r Ray, tMin float32, tMax *float32, visit func(prim int32) bool) {
	if len(b.Nodes) == 0 {
		return
	}
	var stack [maxStackDepth]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		i := stack[sp]
		node := b.Nodes[i]
		if _, ok := r.HitsAABB(node.Bounds, tMin, *tMax); !ok {
			continue
		}
		if node.IsLeaf() {
			for k := node.First; k < node.First+node.Count; k++ {
				if visit(b.Primitives[k]) {
					return
				}
			}
			continue
		}

		left, right := i+1, node.First
		tl, hitL := r.HitsAABB(b.Nodes[left].Bounds, tMin, *tMax)
		tr, hitR := r.HitsAABB(b.Nodes[right].Bounds, tMin, *tMax)
		switch {
		case hitL && hitR:
			// push the far child first so the near one is popped next
			if tl > tr {
				left, right = right, left
			}
			if sp+2 > maxStackDepth {
				continue
			}
			stack[sp] = right
			stack[sp+1] = left
			sp += 2
		case hitL:
			stack[sp] = left
			sp++
		case hitR:
			stack[sp] = right
			sp++
		}
	}
}
