package io

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

const testScene = `{
  "version": "1.0",
  "name": "test",
  "camera": {"position": [0, 2, 6], "target": [0, 0, 0], "fov": 60, "near": 0.1, "far": 200, "render_scale": 0.5},
  "sun": {"direction": [0, -2, 0], "color": [1, 0.9, 0.8, 1]},
  "objects": [
    {"name": "ground", "mesh": "plane", "size": 20, "ray_tracing": "static"},
    {"name": "glass", "mesh": "sphere", "position": [1, 1, 0],
     "material": {"name": "glass", "albedo": [1, 1, 1, 0.3], "transmission": 1, "alpha_mode": "blend", "double_sided": true}},
    {"name": "caster", "mesh": "cube", "shadow_casting": "shadows-only", "layer": 3,
     "children": [{"name": "tri", "mesh": "obj", "file": "tri.obj"}]},
    {"name": "hidden", "mesh": "cube", "hidden": true, "ray_tracing": "off"}
  ],
  "settings": {"enable": true, "maxReflections": 20, "shadowSamples": 2}
}`

const triOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

func writeScene(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tri.obj"), []byte(triOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "test.rtscene")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScene(t *testing.T) {
	s, settings, err := LoadScene(writeScene(t, testScene))
	if err != nil {
		t.Fatal(err)
	}

	if !settings.Enable || settings.MaxReflections != raytracing.MaxDepthLimit || settings.ShadowSamples != 2 {
		t.Fatalf("settings = %+v", settings)
	}
	if settings.MaxRefractions != raytracing.DefaultSettings().MaxRefractions {
		t.Fatal("omitted settings should keep their defaults")
	}

	cam := s.Camera
	if cam == nil || cam.RenderScale != 0.5 || cam.FarPlane != 200 || !cam.PostProcessing {
		t.Fatalf("camera = %+v", cam)
	}
	if f := cam.GetForward(); f.Z > -0.5 || f.Y > 0 {
		t.Fatalf("camera should look down at the origin, forward %v", f)
	}
	if s.SunDirection.Y != -1 {
		t.Fatalf("sun direction not normalized: %v", s.SunDirection)
	}

	ground := s.Root.FindByName("ground")
	if ground == nil || ground.RayTracing != scene.RayTracingStatic || ground.ShadowCasting != scene.ShadowsOn {
		t.Fatalf("ground = %+v", ground)
	}
	glass := s.Root.FindByName("glass")
	m := glass.Mesh.Material
	if m.AlphaMode != scene.AlphaBlend || !m.DoubleSided || m.Transmission != 1 || m.IOR != 1.5 {
		t.Fatalf("glass material = %+v", m)
	}
	caster := s.Root.FindByName("caster")
	if caster.ShadowCasting != scene.ShadowsOnly || caster.Layer != 3 {
		t.Fatalf("caster = %+v", caster)
	}
	tri := caster.FindByName("tri")
	if tri == nil || tri.Mesh.TriangleCount() != 1 || tri.Parent != caster {
		t.Fatal("obj child not loaded under its parent")
	}
	hidden := s.Root.FindByName("hidden")
	if hidden.Visible || hidden.RayTracing != scene.RayTracingOff {
		t.Fatalf("hidden = %+v", hidden)
	}
}

func TestLoadSceneWithoutSettings(t *testing.T) {
	s, settings, err := LoadScene(writeScene(t, `{"camera": {"position": [0,0,5]}, "objects": [{"name": "a", "mesh": "cube"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if settings != raytracing.DefaultSettings() {
		t.Fatalf("settings = %+v", settings)
	}
	if s.Camera.FOV <= 0 || s.Camera.NearPlane != 0.1 {
		t.Fatal("camera defaults not applied")
	}
}

func TestLoadSceneErrors(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"syntax", `{`, "parse scene file"},
		{"mesh type", `{"objects": [{"name": "x", "mesh": "teapot"}]}`, "unknown mesh type"},
		{"mode", `{"objects": [{"name": "x", "ray_tracing": "sometimes"}]}`, "unknown ray tracing mode"},
		{"shadow", `{"objects": [{"name": "x", "shadow_casting": "maybe"}]}`, "unknown shadow casting mode"},
		{"alpha", `{"objects": [{"name": "x", "mesh": "cube", "material": {"alpha_mode": "dither"}}]}`, "unknown alpha mode"},
		{"missing obj", `{"objects": [{"name": "x", "mesh": "obj", "file": "nope.obj"}]}`, "nope.obj"},
		{"settings", `{"settings": {"enable": "yes"}}`, "decode settings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadScene(writeScene(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
	if _, _, err := LoadScene(filepath.Join(t.TempDir(), "missing.rtscene")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestSaveSceneRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.rtscene")
	in := &SceneFile{
		Version: "1.0",
		Name:    "saved",
		Camera:  CameraData{Position: [3]float32{0, 0, 5}, FOV: 45},
		Objects: []ObjectData{{Name: "box", Mesh: "cube", RayTracing: "dynamic-geometry"}},
	}
	if err := SaveScene(path, in); err != nil {
		t.Fatal(err)
	}
	s, _, err := LoadScene(path)
	if err != nil {
		t.Fatal(err)
	}
	if box := s.Root.FindByName("box"); box == nil || box.RayTracing != scene.RayTracingDynamicGeometry {
		t.Fatal("saved object not restored")
	}
}
