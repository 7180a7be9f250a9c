package raytracing

import (
	"testing"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

func handleOf(n *scene.Node) InstanceHandle {
	root := scene.NewNode("root")
	root.AddChild(n)
	hs := NewRegistry(newFakeDevice()).Collect(root)
	if len(hs) != 1 {
		panic("node not eligible")
	}
	return hs[0]
}

func TestNewCullingConfig(t *testing.T) {
	cam := testCamera(1920, 1080)
	cam.SetPosition(math.Vec3{X: 1, Y: 2, Z: 3})
	cfg := NewCullingConfig(cam, DefaultSettings())

	if cfg.SphereRadius != 50 {
		t.Fatalf("radius = %v, want far*0.5", cfg.SphereRadius)
	}
	if cfg.SphereCenter != cam.Position || cfg.LOD.CameraPosition != cam.Position {
		t.Fatal("sphere and LOD should be centred on the camera")
	}
	if cfg.LOD.PixelHeight != 1080 || cfg.LOD.FieldOfView != cam.FOV {
		t.Fatalf("lod = %+v", cfg.LOD)
	}
	if len(cfg.Tests) != 2 || cfg.Tests[0].InstanceMask != MaskPrimary || cfg.Tests[1].InstanceMask != MaskShadow {
		t.Fatalf("tests = %+v", cfg.Tests)
	}
	if !cfg.Triangles.FrontCounterClockwise || cfg.Triangles.ForceDoubleSided {
		t.Fatalf("triangle culling = %+v", cfg.Triangles)
	}
}

func TestEvaluateInstanceMasks(t *testing.T) {
	cfg := NewCullingConfig(testCamera(64, 64), DefaultSettings())
	tests := []struct {
		mode scene.ShadowCastingMode
		want RayMask
	}{
		{scene.ShadowsOff, MaskPrimary},
		{scene.ShadowsOn, MaskPrimary | MaskShadow},
		{scene.ShadowsTwoSided, MaskPrimary | MaskShadow},
		{scene.ShadowsOnly, MaskShadow},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			n := meshNode("n", math.Vec3{Z: -5})
			n.ShadowCasting = tt.mode
			inst, ok := cfg.Evaluate(handleOf(n))
			if !ok || inst.Mask != tt.want {
				t.Fatalf("mask = %b ok=%v, want %b", inst.Mask, ok, tt.want)
			}
		})
	}
}

func TestEvaluateSphereCull(t *testing.T) {
	cfg := NewCullingConfig(testCamera(64, 64), DefaultSettings())
	if _, ok := cfg.Evaluate(handleOf(meshNode("near", math.Vec3{Z: -40}))); !ok {
		t.Fatal("instance inside the sphere was culled")
	}
	if _, ok := cfg.Evaluate(handleOf(meshNode("far", math.Vec3{Z: -80}))); ok {
		t.Fatal("instance beyond far*0.5 should be culled")
	}
	cfg.Flags &^= CullSphere
	if _, ok := cfg.Evaluate(handleOf(meshNode("far", math.Vec3{Z: -80}))); !ok {
		t.Fatal("sphere cull disabled but instance culled")
	}
}

func TestEvaluateSubMeshFlags(t *testing.T) {
	cfg := NewCullingConfig(testCamera(64, 64), DefaultSettings())

	opaque, _ := cfg.Evaluate(handleOf(meshNode("opaque", math.Vec3Zero)))
	if opaque.Flags != SubMeshEnabled|SubMeshClosestHitOnly || len(opaque.Keywords) != 0 {
		t.Fatalf("opaque = %+v", opaque)
	}

	n := meshNode("glass", math.Vec3Zero)
	n.Mesh.Material = scene.DefaultMaterial()
	n.Mesh.Material.AlphaMode = scene.AlphaBlend
	n.Mesh.Material.DoubleSided = true
	glass, _ := cfg.Evaluate(handleOf(n))
	if glass.Flags != SubMeshEnabled {
		t.Fatalf("transparent flags = %b", glass.Flags)
	}
	want := map[string]bool{TransparentKeyword: true, DoubleSidedKeyword: true}
	for _, k := range glass.Keywords {
		delete(want, k)
	}
	if len(want) != 0 || !glass.DoubleSided {
		t.Fatalf("keywords = %v", glass.Keywords)
	}
}

func TestEvaluateForceDoubleSided(t *testing.T) {
	s := DefaultSettings()
	s.ForceDoubleSided = true
	cfg := NewCullingConfig(testCamera(64, 64), s)
	inst, ok := cfg.Evaluate(handleOf(meshNode("n", math.Vec3Zero)))
	if !ok || !inst.DoubleSided {
		t.Fatal("force double-sided should mark every instance double-sided")
	}
}

func TestEvaluateTestFilters(t *testing.T) {
	cfg := NewCullingConfig(testCamera(64, 64), DefaultSettings())
	for i := range cfg.Tests {
		cfg.Tests[i].AllowTransparent = false
	}
	n := meshNode("glass", math.Vec3Zero)
	n.Mesh.Material = scene.DefaultMaterial()
	n.Mesh.Material.Transmission = 1
	if _, ok := cfg.Evaluate(handleOf(n)); ok {
		t.Fatal("transparent instance passed tests that reject transparency")
	}

	cfg = NewCullingConfig(testCamera(64, 64), DefaultSettings())
	cfg.Tests[1].LayerMask = 1 << 5
	inst, ok := cfg.Evaluate(handleOf(meshNode("n", math.Vec3Zero)))
	if !ok || inst.Mask != MaskPrimary {
		t.Fatalf("layer-filtered shadow test still matched: %b", inst.Mask)
	}
}

func TestEvaluateScreenSizeCull(t *testing.T) {
	cam := testCamera(100, 100)
	cfg := NewCullingConfig(cam, DefaultSettings())
	cfg.MinScreenPixels = 10

	// radius sqrt(3) at distance 40: 1.73/(40*tan30)*100 ≈ 7.5 px
	if _, ok := cfg.Evaluate(handleOf(meshNode("small", math.Vec3{Z: -40}))); ok {
		t.Fatal("sub-threshold instance should be culled")
	}
	// at distance 5 it covers ~60 px
	if _, ok := cfg.Evaluate(handleOf(meshNode("big", math.Vec3{Z: -5}))); !ok {
		t.Fatal("large instance culled")
	}
	cfg.MinScreenPixels = 0
	if _, ok := cfg.Evaluate(handleOf(meshNode("small", math.Vec3{Z: -40}))); !ok {
		t.Fatal("zero threshold must disable the screen-size cull")
	}
}
