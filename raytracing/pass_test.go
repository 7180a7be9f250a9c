package raytracing

import (
	"errors"
	"testing"
	"time"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

func newTestPass(t *testing.T, dev *fakeDevice) *Pass {
	t.Helper()
	p, err := NewPass(dev, DefaultPassConfig())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func testFrame(settings *Settings) Frame {
	root := scene.NewNode("root")
	root.AddChild(meshNode("box", math.Vec3{Z: -5}))
	return Frame{
		Camera:   testCamera(64, 36),
		Root:     root,
		Settings: settings,
		Elapsed:  16 * time.Millisecond,
		Color:    fakeColor{64, 36},
	}
}

func TestNewPassUnsupported(t *testing.T) {
	dev := newFakeDevice()
	dev.unsupported = true
	if _, err := NewPass(dev, DefaultPassConfig()); !errors.Is(err, ErrRayTracingUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestDefaultPassConfig(t *testing.T) {
	cfg := DefaultPassConfig()
	if cfg.Event != AfterRenderingSkybox || cfg.RebuildInterval != 33*time.Millisecond || cfg.Management != ManagementManual {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestExecuteGates(t *testing.T) {
	disabled := DefaultSettings()
	tests := []struct {
		name  string
		frame func() Frame
	}{
		{"disabled", func() Frame { return testFrame(&disabled) }},
		{"no settings", func() Frame { return testFrame(nil) }},
		{"post-processing off", func() Frame {
			f := testFrame(enabledSettings())
			f.Camera.PostProcessing = false
			return f
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			p := newTestPass(t, dev)
			for i := 0; i < 3; i++ {
				if err := p.Execute(tt.frame()); err != nil {
					t.Fatal(err)
				}
			}
			if len(dev.dispatches) != 0 || dev.composites != 0 || len(dev.uploads) != 0 || len(dev.allocations) != 0 {
				t.Fatal("gated frame did device work")
			}
			if dev.keywords[RayTracingKeyword] {
				t.Fatal("keyword enabled on a gated frame")
			}
			if p.FrameIndex() != 0 {
				t.Fatal("frame index advanced on a gated frame")
			}
		})
	}
}

func TestExecuteRendersFrame(t *testing.T) {
	dev := newFakeDevice()
	p := newTestPass(t, dev)
	f := testFrame(enabledSettings())
	f.Camera.RenderScale = 0.5

	if err := p.Execute(f); err != nil {
		t.Fatal(err)
	}
	if len(dev.dispatches) != 1 {
		t.Fatalf("dispatches = %d", len(dev.dispatches))
	}
	if d := dev.dispatches[0]; d.w != 32 || d.h != 18 || d.d != 1 {
		t.Fatalf("dispatch = %+v, want scaled 32x18x1", d)
	}
	if !dev.keywords[RayTracingKeyword] {
		t.Fatal("keyword should be on during the camera stack")
	}
	if p.Accel().InstanceCount() != 1 || dev.boundBuild != p.Accel().Current() {
		t.Fatal("dispatch should bind the committed build")
	}
	if dev.composites != 1 {
		t.Fatal("result not composited")
	}

	p.EndCameraStack()
	if dev.keywords[RayTracingKeyword] {
		t.Fatal("keyword should be off after the camera stack")
	}
}

func TestExecuteReusesTarget(t *testing.T) {
	dev := newFakeDevice()
	p := newTestPass(t, dev)
	f := testFrame(enabledSettings())
	for i := 0; i < 5; i++ {
		if err := p.Execute(f); err != nil {
			t.Fatal(err)
		}
	}
	if len(dev.allocations) != 1 {
		t.Fatalf("allocations = %d for an unchanged size", len(dev.allocations))
	}
	f.Camera.SetPixelSize(128, 72)
	p.Execute(f)
	if len(dev.allocations) != 2 {
		t.Fatal("resize did not reallocate")
	}
}

func TestExecuteZeroAreaCamera(t *testing.T) {
	dev := newFakeDevice()
	p := newTestPass(t, dev)
	f := testFrame(enabledSettings())
	f.Camera.SetPixelSize(0, 0)
	if err := p.Execute(f); err != nil {
		t.Fatal(err)
	}
	if len(dev.dispatches) != 0 {
		t.Fatal("zero-area camera dispatched")
	}
}

func TestExecuteThrottlesRebuilds(t *testing.T) {
	dev := newFakeDevice()
	p := newTestPass(t, dev)
	f := testFrame(enabledSettings())
	f.Elapsed = 10 * time.Millisecond
	for i := 0; i < 10; i++ {
		p.Execute(f)
	}
	// 1 forced + floor(90/33)
	if got := p.Accel().Rebuilds(); got != 3 {
		t.Fatalf("rebuilds = %d, want 3", got)
	}
	if len(dev.dispatches) != 10 {
		t.Fatal("every frame should dispatch even without a rebuild")
	}
	if !approx(float32(p.FrameIndex()), 6, 1e-4) {
		t.Fatalf("frame index = %v", p.FrameIndex())
	}
}

func TestExecuteRemovesDestroyedNodes(t *testing.T) {
	cfg := DefaultPassConfig()
	cfg.RebuildInterval = 0
	dev := newFakeDevice()
	p, err := NewPass(dev, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f := testFrame(enabledSettings())
	p.Execute(f)
	f.Root.Children[0].Destroy()
	p.Execute(f)
	if p.Accel().InstanceCount() != 0 || p.Registry().Len() != 0 {
		t.Fatal("destroyed node still tracked")
	}
}

func TestDispose(t *testing.T) {
	dev := newFakeDevice()
	p := newTestPass(t, dev)
	p.Execute(testFrame(enabledSettings()))
	p.Dispose()
	p.Dispose()
	if dev.releases != 1 {
		t.Fatalf("structure released %d times", dev.releases)
	}
	if !dev.allocations[0].released {
		t.Fatal("output target not released")
	}
	if err := p.Execute(testFrame(enabledSettings())); !errors.Is(err, ErrReleased) {
		t.Fatalf("execute after dispose: %v", err)
	}
}
