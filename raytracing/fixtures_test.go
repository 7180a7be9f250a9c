package raytracing

import (
	stdmath "math"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

const fov60 = float32(stdmath.Pi / 3)

func testCamera(w, h int) *scene.Camera {
	cam := scene.NewCamera(fov60, 1, 0.1, 100)
	cam.SetPixelSize(w, h)
	return cam
}

func meshNode(name string, pos math.Vec3) *scene.Node {
	n := scene.NewNode(name)
	n.Mesh = scene.CreateCube(2)
	n.SetPosition(pos)
	return n
}

func approx(a, b, eps float32) bool {
	d := a - b
	return d > -eps && d < eps
}

func enabledSettings() *Settings {
	s := DefaultSettings()
	s.Enable = true
	return &s
}
