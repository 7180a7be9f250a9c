package raytracing

import (
	"math/rand"
	"testing"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

func randomBoxes(rng *rand.Rand, n int) []scene.AABB {
	boxes := make([]scene.AABB, n)
	for i := range boxes {
		c := math.Vec3{X: rng.Float32()*20 - 10, Y: rng.Float32()*20 - 10, Z: rng.Float32()*20 - 10}
		h := math.Vec3{X: rng.Float32() + 0.01, Y: rng.Float32() + 0.01, Z: rng.Float32() + 0.01}
		boxes[i] = scene.AABB{Min: c.Sub(h), Max: c.Add(h)}
	}
	return boxes
}

func contains(outer, inner scene.AABB) bool {
	return outer.Min.X <= inner.Min.X && outer.Min.Y <= inner.Min.Y && outer.Min.Z <= inner.Min.Z &&
		outer.Max.X >= inner.Max.X && outer.Max.Y >= inner.Max.Y && outer.Max.Z >= inner.Max.Z
}

func TestBuildBVHStructure(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 3, 4, 5, 17, 256, 1000} {
		boxes := randomBoxes(rng, n)
		b := BuildBVH(boxes)

		seen := make([]int, n)
		for _, p := range b.Primitives {
			seen[p]++
		}
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("n=%d: primitive %d referenced %d times", n, i, c)
			}
		}

		var check func(i int32)
		check = func(i int32) {
			node := b.Nodes[i]
			if node.IsLeaf() {
				if node.Count > maxLeafSize {
					t.Fatalf("n=%d: leaf of %d primitives", n, node.Count)
				}
				for k := node.First; k < node.First+node.Count; k++ {
					if !contains(node.Bounds, boxes[b.Primitives[k]]) {
						t.Fatalf("n=%d: leaf does not contain its primitive", n)
					}
				}
				return
			}
			for _, c := range []int32{i + 1, node.First} {
				if !contains(node.Bounds, b.Nodes[c].Bounds) {
					t.Fatalf("n=%d: node %d does not contain child %d", n, i, c)
				}
				check(c)
			}
		}
		check(0)
	}
}

func TestBuildBVHCoincidentCentroids(t *testing.T) {
	boxes := make([]scene.AABB, 50)
	for i := range boxes {
		boxes[i] = scene.AABB{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}
	}
	b := BuildBVH(boxes)
	for _, n := range b.Nodes {
		if n.IsLeaf() && n.Count > maxLeafSize {
			t.Fatalf("leaf of %d primitives", n.Count)
		}
	}
	if len(b.Primitives) != 50 {
		t.Fatalf("primitives = %d", len(b.Primitives))
	}
}

func TestEmptyBVH(t *testing.T) {
	b := BuildBVH(nil)
	if len(b.Nodes) != 0 || b.Depth() != 0 {
		t.Fatal("empty input should give an empty hierarchy")
	}
	prim, _ := b.Intersect(NewRay(math.Vec3Zero, math.Vec3Back), 0, 100, func(int32, float32) (float32, bool) {
		t.Fatal("callback on empty BVH")
		return 0, false
	})
	if prim != -1 {
		t.Fatal("expected no hit")
	}
}

func TestBVHMatchesBruteForce(t *testing.T) {
	mesh := scene.CreateSphere(2, 24, 12)
	geo := BuildMeshBLAS(mesh)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		origin := math.Vec3{X: rng.Float32()*10 - 5, Y: rng.Float32()*10 - 5, Z: 6}
		target := math.Vec3{X: rng.Float32()*4 - 2, Y: rng.Float32()*4 - 2, Z: rng.Float32()*4 - 2}
		r := NewRay(origin, target.Sub(origin))

		wantT := float32(1e30)
		for k := 0; k < mesh.TriangleCount(); k++ {
			a, b, c := mesh.Triangle(k)
			if tt, _, _, _, ok := IntersectTriangle(r, a, b, c, 0, wantT); ok {
				wantT = tt
			}
		}

		_, gotT := geo.BVH.Intersect(r, 0, 1e30, func(prim int32, tMax float32) (float32, bool) {
			a, b, c := mesh.Triangle(int(prim))
			tt, _, _, _, ok := IntersectTriangle(r, a, b, c, 0, tMax)
			return tt, ok
		})
		if !approx(gotT, wantT, 1e-4) {
			t.Fatalf("ray %d: bvh t=%v, brute force t=%v", i, gotT, wantT)
		}
	}
}

func TestRayHitsAABB(t *testing.T) {
	box := scene.AABB{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}
	tests := []struct {
		name   string
		origin math.Vec3
		dir    math.Vec3
		hit    bool
		tEnter float32
	}{
		{"straight on", math.Vec3{Z: 5}, math.Vec3Back, true, 4},
		{"axis aligned miss", math.Vec3{X: 2, Z: 5}, math.Vec3Back, false, 0},
		{"from inside", math.Vec3Zero, math.Vec3Up, true, 0},
		{"pointing away", math.Vec3{Z: 5}, math.Vec3Front, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tEnter, ok := NewRay(tt.origin, tt.dir).HitsAABB(box, 0, 100)
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if ok && !approx(tEnter, tt.tEnter, 1e-5) {
				t.Fatalf("t = %v, want %v", tEnter, tt.tEnter)
			}
		})
	}
}

func TestIntersectTriangleWinding(t *testing.T) {
	a := math.Vec3{X: -1, Y: -1}
	b := math.Vec3{X: 1, Y: -1}
	c := math.Vec3{Y: 1}
	// a,b,c is counter-clockwise seen from +Z
	front := NewRay(math.Vec3{Z: 1}, math.Vec3Back)
	tt, _, _, det, ok := IntersectTriangle(front, a, b, c, 0, 10)
	if !ok || det <= 0 || !approx(tt, 1, 1e-6) {
		t.Fatalf("front hit t=%v det=%v ok=%v", tt, det, ok)
	}
	back := NewRay(math.Vec3{Z: -1}, math.Vec3Front)
	if _, _, _, det, ok := IntersectTriangle(back, a, b, c, 0, 10); !ok || det >= 0 {
		t.Fatalf("back hit det=%v ok=%v", det, ok)
	}
}

func BenchmarkBuildBVH(b *testing.B) {
	boxes := randomBoxes(rand.New(rand.NewSource(3)), 10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildBVH(boxes)
	}
}
