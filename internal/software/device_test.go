package software

import (
	"bytes"
	"errors"
	"image/color"
	stdmath "math"
	"testing"
	"time"

	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

func testCamera(w, h int) *scene.Camera {
	cam := scene.NewCamera(float32(stdmath.Pi/3), 1, 0.1, 100)
	cam.SetPixelSize(w, h)
	return cam
}

func boxScene() *scene.Node {
	root := scene.NewNode("root")
	box := scene.NewNode("box")
	box.Mesh = scene.CreateCube(2)
	box.Mesh.Material = scene.NewMaterial("red", scene.DefaultMaterial().Albedo)
	box.SetPosition(math.Vec3{Z: -5})
	root.AddChild(box)
	return root
}

func enabled() *raytracing.Settings {
	s := raytracing.DefaultSettings()
	s.Enable = true
	return &s
}

func frame(root *scene.Node, cam *scene.Camera, s *raytracing.Settings, color *ColorBuffer) raytracing.Frame {
	return raytracing.Frame{
		Camera:   cam,
		Root:     root,
		Settings: s,
		Elapsed:  16 * time.Millisecond,
		Color:    color,
	}
}

// buildFor commits a structure over root the way the pass does.
func buildFor(t *testing.T, dev *Device, root *scene.Node, cam *scene.Camera) *raytracing.Build {
	t.Helper()
	as := raytracing.NewAccelerationStructure(dev)
	if err := as.Initialize(raytracing.LayerEverything, raytracing.ManagementManual); err != nil {
		t.Fatal(err)
	}
	as.SetCandidates(raytracing.NewRegistry(dev).Collect(root))
	if err := as.Rebuild(raytracing.NewCullingConfig(cam, raytracing.DefaultSettings())); err != nil {
		t.Fatal(err)
	}
	return as.Current()
}

func TestPassCompositesHitsOnly(t *testing.T) {
	dev := NewDevice()
	pass, err := raytracing.NewPass(dev, raytracing.DefaultPassConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer pass.Dispose()

	cam := testCamera(32, 32)
	buf := NewColorBuffer(32, 32)
	bg := math.Vec4{X: 0, Y: 0, Z: 1, W: 1}
	buf.Fill(bg, bg)

	if err := pass.Execute(frame(boxScene(), cam, enabled(), buf)); err != nil {
		t.Fatal(err)
	}
	st := dev.Stats()
	if st.Dispatches != 1 || st.Composites != 1 || st.Uploads != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.Rays < 32*32 {
		t.Fatalf("traced %d rays, want at least one per pixel", st.Rays)
	}

	corner := buf.Image.RGBAAt(0, 0)
	if corner != (color.RGBA{B: 255, A: 255}) {
		t.Fatalf("missed pixel changed to %v", corner)
	}
	center := buf.Image.RGBAAt(16, 16)
	if center == corner {
		t.Fatal("box not composited over the centre")
	}

	out := dev.lastTarget(t)
	if out.At(0, 0).W != 0 || out.At(16, 16).W != 1 {
		t.Fatalf("coverage corner=%v centre=%v", out.At(0, 0).W, out.At(16, 16).W)
	}
}

func (d *Device) lastTarget(t *testing.T) *Target {
	t.Helper()
	if d.target == nil {
		t.Fatal("no target bound")
	}
	return d.target
}

func TestDisabledLeavesColorUntouched(t *testing.T) {
	dev := NewDevice()
	pass, err := raytracing.NewPass(dev, raytracing.DefaultPassConfig())
	if err != nil {
		t.Fatal(err)
	}
	buf := NewColorBuffer(16, 16)
	buf.Fill(math.Vec4{X: 0.2, Y: 0.4, Z: 0.6, W: 1}, math.Vec4{X: 0.1, Y: 0.1, Z: 0.1, W: 1})
	before := bytes.Clone(buf.Image.Pix)

	s := raytracing.DefaultSettings()
	for i := 0; i < 4; i++ {
		if err := pass.Execute(frame(boxScene(), testCamera(16, 16), &s, buf)); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(before, buf.Image.Pix) {
		t.Fatal("disabled pass modified the color target")
	}
	if st := dev.Stats(); st.Dispatches != 0 || st.Allocations != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRenderScaleResamples(t *testing.T) {
	dev := NewDevice()
	pass, _ := raytracing.NewPass(dev, raytracing.DefaultPassConfig())
	cam := testCamera(40, 40)
	cam.RenderScale = 0.5
	buf := NewColorBuffer(40, 40)

	if err := pass.Execute(frame(boxScene(), cam, enabled(), buf)); err != nil {
		t.Fatal(err)
	}
	if w, h := dev.lastTarget(t).Size(); w != 20 || h != 20 {
		t.Fatalf("ray target %dx%d, want 20x20", w, h)
	}
	if buf.Image.RGBAAt(20, 20).A == 0 {
		t.Fatal("scaled result not blended onto the full-size buffer")
	}
}

func TestDispatchDeterministicAcrossWorkers(t *testing.T) {
	root := boxScene()
	cam := testCamera(24, 24)
	render := func(workers int) *Target {
		dev := NewDevice()
		dev.Workers = workers
		dev.TileSize = 5
		build := buildFor(t, dev, root, cam)
		u := (&raytracing.FrameBinder{}).Bind(cam, *enabled(), time.Second)
		u.Apply(dev)
		dev.SetShaderPass(raytracing.ShaderPassName)
		dev.BindAccelerationStructure(raytracing.AccelerationSlot, build)
		target, _ := dev.AllocateTarget(raytracing.OutputTargetName, 24, 24)
		if err := dev.DispatchRays(raytracing.RayGenName, target, 24, 24, 1); err != nil {
			t.Fatal(err)
		}
		return target.(*Target)
	}
	a, b := render(1), render(7)
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			if a.At(x, y) != b.At(x, y) {
				t.Fatalf("pixel (%d,%d) differs: %v vs %v", x, y, a.At(x, y), b.At(x, y))
			}
		}
	}
}

func TestShadowRaysHonorMask(t *testing.T) {
	root := scene.NewNode("root")
	ground := scene.NewNode("ground")
	ground.Mesh = scene.CreatePlane(20, 20, 1)
	root.AddChild(ground)

	caster := scene.NewNode("caster")
	caster.Mesh = scene.CreateCube(2)
	caster.ShadowCasting = scene.ShadowsOnly
	caster.SetPosition(math.Vec3{Y: 3})
	root.AddChild(caster)

	dev := NewDevice()
	cam := testCamera(8, 8)
	build := buildFor(t, dev, root, cam)
	if build.InstanceCount() != 2 {
		t.Fatalf("instances = %d", build.InstanceCount())
	}

	// Shadows-only geometry is invisible to primary rays.
	down := raytracing.NewRay(math.Vec3{Y: 10}, math.Vec3Down)
	hit, ok := build.Trace(down, raytracing.TraceOptions{Mask: raytracing.MaskPrimary, TMax: 100})
	if !ok || hit.Position.Y > 1e-3 {
		t.Fatalf("primary ray should reach the ground, got %+v ok=%v", hit, ok)
	}

	k := &kernel{
		build:         build,
		clip:          100,
		shadowSamples: 2,
		sunDir:        math.Vec3Up,
		sunColor:      math.Vec3One,
	}
	ps := &pixelState{rng: nil}
	if v := k.shadow(ps, math.Vec3{Y: 0.01}); v != 0 {
		t.Fatalf("point under the caster lit %v", v)
	}
	if v := k.shadow(ps, math.Vec3{X: 8, Y: 0.01}); v != 1 {
		t.Fatalf("open point lit %v", v)
	}
	if ps.rays != 4 {
		t.Fatalf("rays = %d, want one per sample", ps.rays)
	}
}

func TestNoShadowSamplesMeansLit(t *testing.T) {
	k := &kernel{}
	if v := k.shadow(&pixelState{}, math.Vec3Zero); v != 1 {
		t.Fatalf("shadow = %v", v)
	}
}

func TestSkyGradient(t *testing.T) {
	k := &kernel{
		top:    math.Vec3{Z: 1},
		bottom: math.Vec3{X: 1},
	}
	if c := k.sky(math.Vec3Up); c != (math.Vec3{Z: 1}) {
		t.Fatalf("zenith = %v", c)
	}
	if c := k.sky(math.Vec3Down); c != (math.Vec3{X: 1}) {
		t.Fatalf("nadir = %v", c)
	}
	k.env = scene.NewSolidTexture("env", 0, 255, 0, 255)
	if c := k.sky(math.Vec3Up); c != (math.Vec3{Y: 1}) {
		t.Fatalf("env = %v", c)
	}
}

func TestKernelResolvesSharedSlots(t *testing.T) {
	d := NewDevice()
	k := d.kernel()
	want := math.Vec3{X: 0.4, Y: 1, Z: 0.3}.Normalize()
	if k.sunDir.Sub(want).Length() > 1e-5 || k.sunColor != math.Vec3One {
		t.Fatalf("default sun = %v %v", k.sunDir, k.sunColor)
	}
	if k.clip != stdmath.MaxFloat32 || k.sunSpread != 0 || k.env != nil {
		t.Fatalf("defaults: clip %v spread %v env %v", k.clip, k.sunSpread, k.env)
	}

	env := scene.NewSolidTexture("env", 0, 255, 0, 255)
	d.SetFloat(raytracing.UniformSunSpread, 3)
	d.SetVector(raytracing.UniformSunDirection, math.Vec4{Y: -2})
	d.SetTexture(raytracing.UniformEnvTexture, env)
	d.SetInt(raytracing.UniformUseSkyBox, 1)
	d.SetInt(raytracing.UniformMaxReflectDepth, 4)
	k = d.kernel()
	if spread := 2 * float32(stdmath.Pi) / 180; stdmath.Abs(float64(k.sunSpread-spread)) > 1e-6 {
		t.Fatalf("sunSpread = %v, want %v", k.sunSpread, spread)
	}
	if k.sunDir != math.Vec3Up || k.env != env || k.maxReflect != 4 {
		t.Fatalf("sun %v env %v reflect %d", k.sunDir, k.env, k.maxReflect)
	}
}

func TestRefract(t *testing.T) {
	n := math.Vec3Up
	straight, ok := refract(math.Vec3Down, n, 1/1.5)
	if !ok || straight.Sub(math.Vec3Down).Length() > 1e-5 {
		t.Fatalf("normal incidence bent: %v", straight)
	}
	grazing := math.Vec3{X: 1, Y: -0.05}.Normalize()
	if _, ok := refract(grazing, n, 1.5); ok {
		t.Fatal("expected total internal reflection leaving a dense medium")
	}
}

func TestReflectanceModes(t *testing.T) {
	mirror := &scene.Material{Metallic: 1, Roughness: 0, Albedo: scene.DefaultMaterial().Albedo}
	matte := &scene.Material{Metallic: 0, Roughness: 1}
	white := math.Vec3One
	tests := []struct {
		mode int
		m    *scene.Material
		want func(float32) bool
	}{
		{0, mirror, func(v float32) bool { return v == 0 }},
		{1, mirror, func(v float32) bool { return v == 1 }},
		{1, matte, func(v float32) bool { return v == 0 }},
		{2, matte, func(v float32) bool { return v == 0 }},
		{3, mirror, func(v float32) bool { return v > 0.999 && v < 1.001 }},
	}
	for _, tt := range tests {
		if got := reflectance(tt.mode, tt.m, white, 1); !tt.want(got) {
			t.Errorf("mode %d metallic %v: %v", tt.mode, tt.m.Metallic, got)
		}
	}
}

func TestDispatchValidation(t *testing.T) {
	dev := NewDevice()
	target, _ := dev.AllocateTarget(raytracing.OutputTargetName, 4, 4)

	if err := dev.DispatchRays(raytracing.RayGenName, target, 4, 4, 1); err == nil {
		t.Fatal("dispatch without a shader pass should fail")
	}
	dev.SetShaderPass(raytracing.ShaderPassName)
	if err := dev.DispatchRays("Other", target, 4, 4, 1); err == nil {
		t.Fatal("unknown ray generation program accepted")
	}
	if err := dev.DispatchRays(raytracing.RayGenName, target, 8, 4, 1); err == nil {
		t.Fatal("mismatched extent accepted")
	}
	if err := dev.DispatchRays(raytracing.RayGenName, foreign{}, 4, 4, 1); !errors.Is(err, ErrForeignTarget) {
		t.Fatalf("err = %v", err)
	}
	// An unbound structure traces nothing but still writes every pixel.
	if err := dev.DispatchRays(raytracing.RayGenName, target, 4, 4, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.AllocateTarget("x", 0, 4); err == nil {
		t.Fatal("zero-area allocation accepted")
	}
}

type foreign struct{}

func (foreign) Name() string     { return "foreign" }
func (foreign) Size() (int, int) { return 4, 4 }
func (foreign) Release()         {}

func TestCompositeScalesOver(t *testing.T) {
	src := NewTarget("src", 2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.set(x, y, math.Vec4{X: 100, W: 1})
		}
	}
	dst := NewColorBuffer(6, 6)
	Blend(src, dst)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if c := dst.Image.RGBAAt(x, y); c.R < 250 || c.A != 255 {
				t.Fatalf("(%d,%d) = %v", x, y, c)
			}
		}
	}
}

func TestEncode(t *testing.T) {
	if encode(0) != 0 || encode(-1) != 0 {
		t.Fatal("non-positive should encode to black")
	}
	if encode(float32(stdmath.NaN())) != 0 {
		t.Fatal("NaN should encode to black")
	}
	if encode(1) <= encode(0.5) || encode(1e6) < 0xfff0 {
		t.Fatal("encode not monotonic")
	}
}

func TestDeviceLifecycle(t *testing.T) {
	dev := NewDevice()
	pass, _ := raytracing.NewPass(dev, raytracing.DefaultPassConfig())
	buf := NewColorBuffer(8, 8)
	pass.Execute(frame(boxScene(), testCamera(8, 8), enabled(), buf))
	if !dev.Keyword(raytracing.RayTracingKeyword) {
		t.Fatal("keyword not enabled")
	}
	target := dev.lastTarget(t)
	pass.Dispose()
	if dev.Keyword(raytracing.RayTracingKeyword) || !target.Released() {
		t.Fatal("dispose left state behind")
	}
	if st := dev.Stats(); st.Releases != 1 || dev.Uploaded() != nil {
		t.Fatalf("stats = %+v", st)
	}
}
