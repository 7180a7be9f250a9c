package main

import (
	stdmath "math"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

const (
	orbitSpeed = 0.005 // radians per pixel of drag
	zoomStep   = 0.5   // world units per scroll notch
)

// orbitControl drives a scene camera around a pivot in front of it.
type orbitControl struct {
	cam   *scene.Camera
	orbit *scene.OrbitCamera
}

// newOrbitControl pivots around the point as far in front of cam as cam
// is from the origin, so the starting view does not jump.
func newOrbitControl(cam *scene.Camera) *orbitControl {
	dist := max(cam.Position.Length(), 1)
	o := &orbitControl{cam: cam, orbit: &scene.OrbitCamera{Camera: *cam}}
	o.aim(cam.Position.Add(cam.GetForward().Mul(dist)))
	return o
}

// aim sets the pivot, keeping the camera where it is.
func (o *orbitControl) aim(target math.Vec3) {
	offset := o.cam.Position.Sub(target)
	dist := max(offset.Length(), 1e-3)
	o.orbit.Target = target
	o.orbit.Distance = dist
	o.orbit.Yaw = float32(stdmath.Atan2(float64(offset.X), float64(offset.Z)))
	o.orbit.Pitch = float32(stdmath.Asin(float64(max(-1, min(1, offset.Y/dist)))))
}

// focus turns the camera to look at target and orbits around it from now on.
func (o *orbitControl) focus(target math.Vec3) {
	o.aim(target)
	o.orbit.UpdatePosition()
	o.sync()
}

// rotate orbits by a cursor drag of (dx, dy) pixels.
func (o *orbitControl) rotate(dx, dy float64) {
	o.orbit.Orbit(float32(-dx*orbitSpeed), float32(dy*orbitSpeed))
	o.sync()
}

// zoom moves towards the pivot for positive notches.
func (o *orbitControl) zoom(notches float64) {
	o.orbit.Zoom(float32(-notches * zoomStep))
	o.sync()
}

func (o *orbitControl) sync() {
	o.cam.SetPosition(o.orbit.Position)
	o.cam.SetRotation(o.orbit.Rotation)
}
