package main

import (
	"testing"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

func TestOrbitControlKeepsStartingView(t *testing.T) {
	cam := scene.NewCamera(1, 1, 0.1, 100)
	cam.SetPosition(math.Vec3{Z: 10})
	oc := newOrbitControl(cam)
	if got := oc.orbit.Target; got.Length() > 1e-4 {
		t.Fatalf("pivot = %v, want origin", got)
	}
	if !near(oc.orbit.Distance, 10) || !near(oc.orbit.Yaw, 0) || !near(oc.orbit.Pitch, 0) {
		t.Fatalf("orbit = %+v", oc.orbit)
	}

	oc.zoom(2)
	if !near(cam.Position.Z, 9) || !near(cam.Position.X, 0) {
		t.Fatalf("after zoom position = %v, want (0,0,9)", cam.Position)
	}
}

func TestOrbitControlRotateKeepsDistance(t *testing.T) {
	cam := scene.NewCamera(1, 1, 0.1, 100)
	cam.SetPosition(math.Vec3{Z: 5})
	oc := newOrbitControl(cam)
	oc.rotate(-100, 0)
	if !near(cam.Position.Length(), 5) {
		t.Fatalf("distance after orbit = %v", cam.Position.Length())
	}
	if cam.Position.X <= 0 {
		t.Fatalf("dragging left should swing the camera to +X, got %v", cam.Position)
	}
	fwd := cam.GetForward()
	toPivot := cam.Position.Negate().Normalize()
	if fwd.Dot(toPivot) < 0.999 {
		t.Fatalf("camera looks along %v, want %v", fwd, toPivot)
	}
}

func TestOrbitControlFocus(t *testing.T) {
	cam := scene.NewCamera(1, 1, 0.1, 100)
	cam.SetPosition(math.Vec3{Z: 5})
	oc := newOrbitControl(cam)
	target := math.Vec3{X: 3}
	oc.focus(target)
	if !near(cam.Position.Sub(target).Length(), oc.orbit.Distance) {
		t.Fatalf("camera %v not at orbit distance %v from %v", cam.Position, oc.orbit.Distance, target)
	}
	if d := cam.GetForward().Dot(target.Sub(cam.Position).Normalize()); d < 0.999 {
		t.Fatalf("camera does not face the focus target (dot %v)", d)
	}
}
