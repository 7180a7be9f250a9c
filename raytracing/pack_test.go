package raytracing

import (
	"math/rand"
	"testing"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

func packScene() *scene.Node {
	root := scene.NewNode("root")
	cube := scene.CreateCube(2)
	for i := 0; i < 6; i++ {
		n := meshNode("cube", math.Vec3{X: float32(i*3 - 8), Z: -10})
		n.Mesh = cube
		n.Rotate(math.Vec3Up, float32(i)*0.3)
		root.AddChild(n)
	}
	ball := scene.NewNode("ball")
	ball.Mesh = scene.CreateSphere(1.5, 12, 8)
	ball.SetPosition(math.Vec3{Y: 3, Z: -12})
	root.AddChild(ball)
	return root
}

// tracePacked walks the packed arrays the way the GPU kernels do.
func tracePacked(p *Packed, r Ray, tMax float32) (float32, bool) {
	best, found := tMax, false
	stack := []int32{0}
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := p.Nodes[ni]
		if _, ok := r.HitsAABB(nodeBox(n), 0, best); !ok {
			continue
		}
		if n.Count == 0 {
			stack = append(stack, ni+1, n.First)
			continue
		}
		for i := n.First; i < n.First+n.Count; i++ {
			inst := p.Instances[i]
			var m math.Mat4
			for k := 0; k < 16; k++ {
				m[k/4][k%4] = inst.WorldToObject[k]
			}
			local := NewRay(m.MulPoint(r.Origin), m.MulDir(r.Direction))
			if t, ok := traceBLAS(p, inst.Root, local, best); ok {
				best, found = t, true
			}
		}
	}
	return best, found
}

func traceBLAS(p *Packed, root int32, r Ray, tMax float32) (float32, bool) {
	best, found := tMax, false
	stack := []int32{root}
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := p.Nodes[ni]
		if _, ok := r.HitsAABB(nodeBox(n), 0, best); !ok {
			continue
		}
		if n.Count == 0 {
			stack = append(stack, ni+1, n.First)
			continue
		}
		for i := n.First; i < n.First+n.Count; i++ {
			tri := p.Triangles[i]
			if t, _, _, _, ok := IntersectTriangle(r, v3(tri.V0), v3(tri.V1), v3(tri.V2), 0, best); ok {
				best, found = t, true
			}
		}
	}
	return best, found
}

func nodeBox(n GPUNode) scene.AABB {
	return scene.AABB{
		Min: math.Vec3{X: n.Min[0], Y: n.Min[1], Z: n.Min[2]},
		Max: math.Vec3{X: n.Max[0], Y: n.Max[1], Z: n.Max[2]},
	}
}

func v3(a [4]float32) math.Vec3 { return math.Vec3{X: a[0], Y: a[1], Z: a[2]} }

func TestPackLayout(t *testing.T) {
	a := newBuiltStructure(t, newFakeDevice(), packScene())
	b := a.Current()
	p := Pack(b)

	wantNodes := len(b.TopLevel.Nodes)
	wantTris := 0
	for _, g := range b.Geometries {
		wantNodes += len(g.BVH.Nodes)
		wantTris += g.Mesh.TriangleCount()
	}
	if len(p.Nodes) != wantNodes || len(p.Triangles) != wantTris || len(p.Instances) != 7 {
		t.Fatalf("nodes=%d tris=%d instances=%d", len(p.Nodes), len(p.Triangles), len(p.Instances))
	}
	if len(b.Geometries) != 2 {
		t.Fatalf("cubes should share one geometry, got %d", len(b.Geometries))
	}
	for i, n := range p.Nodes {
		if n.Count == 0 && (n.First <= int32(i) || int(n.First) >= len(p.Nodes)) {
			t.Fatalf("node %d right child %d out of range", i, n.First)
		}
	}
	for _, inst := range p.Instances {
		if inst.Root < int32(len(b.TopLevel.Nodes)) || inst.Mask&uint32(MaskPrimary) == 0 {
			t.Fatalf("instance %+v", inst)
		}
	}
	if !p.FrontCounterClockwise || p.Version != b.Version {
		t.Fatal("header not carried")
	}

	nodes, tris, insts := p.Bytes()
	if len(nodes) != 32*len(p.Nodes) || len(tris) != 48*len(p.Triangles) || len(insts) != 144*len(p.Instances) {
		t.Fatalf("byte sizes %d %d %d", len(nodes), len(tris), len(insts))
	}
}

func TestPackedTraversalMatchesTrace(t *testing.T) {
	a := newBuiltStructure(t, newFakeDevice(), packScene())
	b := a.Current()
	p := Pack(b)

	rng := rand.New(rand.NewSource(7))
	hits := 0
	for i := 0; i < 500; i++ {
		dir := math.Vec3{
			X: rng.Float32()*1.6 - 0.8,
			Y: rng.Float32()*0.8 - 0.3,
			Z: -1,
		}.Normalize()
		r := NewRay(math.Vec3{Y: 1}, dir)
		want, wantOK := b.Trace(r, TraceOptions{Mask: MaskAll, TMax: 100})
		got, gotOK := tracePacked(p, r, 100)
		if wantOK != gotOK {
			t.Fatalf("ray %d: hit %v vs packed %v", i, wantOK, gotOK)
		}
		if wantOK {
			hits++
			if !approx(want.T, got, 1e-4) {
				t.Fatalf("ray %d: t %v vs packed %v", i, want.T, got)
			}
		}
	}
	if hits == 0 {
		t.Fatal("no ray hit the scene")
	}
}

func TestPackEmpty(t *testing.T) {
	if p := Pack(nil); len(p.Nodes) != 0 {
		t.Fatal("nil build should pack empty")
	}
	p := Pack(&Build{TopLevel: BuildBVH(nil)})
	nodes, tris, insts := p.Bytes()
	if len(nodes)+len(tris)+len(insts) != 0 {
		t.Fatal("empty build should encode to nothing")
	}
}

func TestPackFlags(t *testing.T) {
	m := scene.DefaultMaterial()
	m.AlphaMode = scene.AlphaMask
	m.AlphaCutoff = 0.3
	inst := &Instance{
		Mask:        MaskShadow,
		Flags:       SubMeshEnabled | SubMeshClosestHitOnly,
		Transparent: true,
		DoubleSided: true,
		Material:    m,
	}
	g := packInstance(inst, []int32{9})
	want := FlagDoubleSided | FlagTransparent | FlagAlphaMask | FlagClosestHitOnly
	if g.Flags != want || g.Root != 9 || g.Mask != uint32(MaskShadow) || g.Alpha[0] != 0.3 {
		t.Fatalf("packed %+v", g)
	}
}
