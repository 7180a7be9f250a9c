package renderer

import (
	"errors"
	stdmath "math"
	"testing"
	"time"

	"raytrace-engine/internal/software"
	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

func testScene(w, h int) *scene.Scene {
	s := scene.NewScene()
	cam := scene.NewCamera(float32(stdmath.Pi/3), 1, 0.1, 100)
	cam.SetPixelSize(w, h)
	s.SetCamera(cam)

	box := scene.NewNode("box")
	box.Mesh = scene.CreateCube(2)
	box.SetPosition(math.Vec3{Z: -5})
	s.AddNode(box)

	glass := scene.NewNode("glass")
	glass.Mesh = scene.CreateSphere(0.5, 8, 6)
	glass.Mesh.Material = &scene.Material{Albedo: scene.DefaultMaterial().Albedo, Transmission: 1, IOR: 1.5}
	glass.SetPosition(math.Vec3{X: 3, Z: -6})
	s.AddNode(glass)
	return s
}

func enabled() *raytracing.Settings {
	s := raytracing.DefaultSettings()
	s.Enable = true
	return &s
}

func newEngine(t *testing.T, s *scene.Scene) (*RenderEngine, *software.Device) {
	t.Helper()
	dev := software.NewDevice()
	re, err := NewRenderEngine(dev, raytracing.DefaultPassConfig())
	if err != nil {
		t.Fatal(err)
	}
	re.SetScene(s)
	return re, dev
}

func TestStageOrder(t *testing.T) {
	re, _ := newEngine(t, testScene(8, 8))
	var ran []string
	record := func(name string, ev raytracing.RenderPassEvent) {
		re.AddStage(NewStage(name, ev, func(*CameraContext) error {
			ran = append(ran, name)
			return nil
		}))
	}
	record("late", raytracing.AfterRendering)
	record("early", raytracing.BeforeRenderingOpaques)
	record("afterSkybox", raytracing.AfterRenderingSkybox)

	var names []string
	for _, s := range re.Stages() {
		names = append(names, s.Name())
	}
	want := []string{"early", "DrawOpaques", "DrawSkybox", raytracing.ShaderPassName, "afterSkybox", "DrawTransparents", "late"}
	if len(names) != len(want) {
		t.Fatalf("stages = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("stages = %v, want %v", names, want)
		}
	}

	if err := re.Render(16 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 3 || ran[0] != "early" || ran[2] != "late" {
		t.Fatalf("ran = %v", ran)
	}
}

func TestRenderWithRayTracing(t *testing.T) {
	s := testScene(24, 24)
	re, dev := newEngine(t, s)
	re.Settings = enabled()

	if err := re.Render(16 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	st := re.Stats()
	if st.Cameras != 1 || st.Opaque != 1 || st.Transparent != 1 || st.Instances != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if dev.Stats().Dispatches != 1 {
		t.Fatalf("dispatches = %d", dev.Stats().Dispatches)
	}
	if dev.Keyword(raytracing.RayTracingKeyword) {
		t.Fatal("keyword should be off once the camera stack ends")
	}
	sky := dev.Color().Image.RGBAAt(0, 0)
	box := dev.Color().Image.RGBAAt(12, 12)
	if sky == box {
		t.Fatal("box not visible over the background")
	}
}

func TestRenderWithoutSettingsIsRasterOnly(t *testing.T) {
	re, dev := newEngine(t, testScene(8, 8))
	for i := 0; i < 3; i++ {
		if err := re.Render(16 * time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if dev.Stats().Dispatches != 0 {
		t.Fatal("pass ran without settings")
	}
	if c := dev.Color().Image.RGBAAt(0, 0); c.A != 255 {
		t.Fatal("background not drawn")
	}
}

func TestRenderEveryCamera(t *testing.T) {
	s := testScene(8, 8)
	second := scene.NewCamera(float32(stdmath.Pi/3), 1, 0.1, 100)
	second.SetPixelSize(4, 4)
	s.AddCamera(second)

	re, dev := newEngine(t, s)
	re.Settings = enabled()
	if err := re.Render(16 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if re.Stats().Cameras != 2 || dev.Stats().Dispatches != 2 {
		t.Fatalf("cameras=%d dispatches=%d", re.Stats().Cameras, dev.Stats().Dispatches)
	}
	if w, _ := dev.Color().Size(); w != 4 {
		t.Fatalf("last color buffer width %d, want the second camera's", w)
	}
}

func TestRenderAdvancesTimeOncePerFrame(t *testing.T) {
	s := testScene(8, 8)
	second := scene.NewCamera(float32(stdmath.Pi/3), 1, 0.1, 100)
	second.SetPixelSize(4, 4)
	s.AddCamera(second)

	re, _ := newEngine(t, s)
	re.Settings = enabled()
	const (
		frames = 62
		step   = 16 * time.Millisecond
	)
	for i := 0; i < frames; i++ {
		if err := re.Render(step); err != nil {
			t.Fatal(err)
		}
	}

	total := frames * step
	lo := int(total / raytracing.DefaultRebuildInterval)
	if got := re.Pass().Accel().Rebuilds(); got < lo || got > lo+1 {
		t.Errorf("rebuilds = %d over %v, want %d or %d", got, total, lo, lo+1)
	}
	want := total.Seconds() * 60
	if got := re.Pass().FrameIndex(); stdmath.Abs(got-want) > 1e-6 {
		t.Errorf("frame index = %v, want %v", got, want)
	}
}

func TestStageErrorStopsFrame(t *testing.T) {
	re, _ := newEngine(t, testScene(8, 8))
	boom := errors.New("boom")
	re.AddStage(NewStage("fail", raytracing.BeforeRenderingOpaques, func(*CameraContext) error { return boom }))
	if err := re.Render(time.Millisecond); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderRequiresCamera(t *testing.T) {
	re, _ := newEngine(t, scene.NewScene())
	if err := re.Render(time.Millisecond); err == nil {
		t.Fatal("expected an error without a camera")
	}
	re.SetScene(nil)
	if err := re.Render(time.Millisecond); err == nil {
		t.Fatal("expected an error without a scene")
	}
}

func TestResize(t *testing.T) {
	s := testScene(8, 8)
	re, _ := newEngine(t, s)
	re.Resize(320, 200)
	if s.Camera.PixelWidth != 320 || s.Camera.PixelHeight != 200 {
		t.Fatalf("camera size %dx%d", s.Camera.PixelWidth, s.Camera.PixelHeight)
	}
}

func TestDestroy(t *testing.T) {
	re, dev := newEngine(t, testScene(8, 8))
	re.Settings = enabled()
	re.Render(time.Millisecond)
	re.Destroy()
	re.Destroy()
	if dev.Stats().Releases != 1 {
		t.Fatalf("releases = %d", dev.Stats().Releases)
	}
	if err := re.Render(time.Millisecond); !errors.Is(err, raytracing.ErrReleased) {
		t.Fatalf("err = %v", err)
	}
}
