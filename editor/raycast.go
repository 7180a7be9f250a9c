// Package editor picks scene nodes under the cursor by casting rays
// through the committed acceleration structure, the same one the tracer
// dispatches against.
package editor

import (
	stdmath "math"

	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// HitResult is the closest node under a pick ray.
type HitResult struct {
	Hit      bool
	Distance float32
	Point    math.Vec3
	Normal   math.Vec3
	Node     *scene.Node
	FaceIdx  int // triangle index in the node's mesh
}

// ScreenToRay converts a cursor position in pixels, origin top-left, into
// a world-space ray through the pixel. It builds the ray the way the
// tracer builds primary rays.
func ScreenToRay(mouseX, mouseY, screenWidth, screenHeight float32, camera *scene.Camera) raytracing.Ray {
	ndcX := (2*mouseX)/screenWidth - 1
	ndcY := 1 - (2*mouseY)/screenHeight

	view := math.Vec4{X: ndcX, Y: ndcY, Z: 1, W: 1}.MulMat(camera.InverseProjection()).ToVec3DivW()
	toWorld := camera.CameraToWorld()
	return raytracing.NewRay(toWorld.Translation(), toWorld.MulDir(view).Normalize())
}

// Raycast returns the closest primary-visible node along ray in build.
// Shadow-only instances are not pickable.
func Raycast(ray raytracing.Ray, build *raytracing.Build) HitResult {
	hit, ok := build.Trace(ray, raytracing.TraceOptions{
		Mask: raytracing.MaskPrimary,
		TMax: float32(stdmath.MaxFloat32),
	})
	if !ok {
		return HitResult{Distance: float32(stdmath.MaxFloat32)}
	}
	inst := &build.Instances[hit.Instance]
	return HitResult{
		Hit:      true,
		Distance: hit.T,
		Point:    hit.Position,
		Normal:   hit.Normal,
		Node:     inst.Handle.Node,
		FaceIdx:  int(hit.Triangle),
	}
}

// Pick casts through pixel (x, y) of a width x height view of camera.
func Pick(x, y float32, width, height int, camera *scene.Camera, build *raytracing.Build) HitResult {
	return Raycast(ScreenToRay(x, y, float32(width), float32(height), camera), build)
}
