package raytracing

import (
	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// Hit describes the closest intersection found by Build.Trace.
type Hit struct {
	Instance int
	Triangle int32
	T        float32
	U, V     float32
	Position math.Vec3
	// Normal is the world-space geometric normal facing the incoming ray.
	Normal      math.Vec3
	FrontFacing bool
}

// TraceOptions carry the per-ray state a ray-generation program would pass
// to TraceRay.
type TraceOptions struct {
	Mask          RayMask
	CullBackfaces bool
	TMin, TMax    float32
}

// Trace finds the closest hit along r among instances whose mask overlaps
// opts.Mask.
func (b *Build) Trace(r Ray, opts TraceOptions) (Hit, bool) {
	if b == nil || b.TopLevel == nil {
		return Hit{}, false
	}
	var best Hit
	found := false
	b.TopLevel.Intersect(r, opts.TMin, opts.TMax, func(prim int32, tMax float32) (float32, bool) {
		h, ok := b.traceInstance(int(prim), r, opts, tMax, false)
		if !ok {
			return 0, false
		}
		best = h
		found = true
		return h.T, true
	})
	if !found {
		return Hit{}, false
	}
	inst := &b.Instances[best.Instance]
	best.Position = r.Origin.Add(r.Direction.Mul(best.T))
	best.Normal = transformNormal(inst.WorldToObject, best.Normal)
	if !best.FrontFacing {
		best.Normal = best.Normal.Negate()
	}
	return best, true
}

// Occluded reports whether anything with a matching mask blocks r within
// [opts.TMin, opts.TMax].
func (b *Build) Occluded(r Ray, opts TraceOptions) bool {
	if b == nil || b.TopLevel == nil {
		return false
	}
	return b.TopLevel.Occluded(r, opts.TMin, opts.TMax, func(prim int32, tMax float32) bool {
		_, ok := b.traceInstance(int(prim), r, opts, tMax, true)
		return ok
	})
}

// traceInstance intersects r with one instance in its object space. The
// transformed direction is not renormalized, so t is shared between
// spaces. Normal in the result is still in object space.
func (b *Build) traceInstance(idx int, r Ray, opts TraceOptions, tMax float32, anyHit bool) (Hit, bool) {
	inst := &b.Instances[idx]
	if inst.Mask&opts.Mask == 0 {
		return Hit{}, false
	}
	geo := b.Geometries[inst.Geometry]
	local := NewRay(inst.WorldToObject.MulPoint(r.Origin), inst.WorldToObject.MulDir(r.Direction))

	cull := opts.CullBackfaces && !inst.DoubleSided

	var best Hit
	found := false
	test := func(prim int32, limit float32) (float32, bool) {
		a, bb, c := geo.Mesh.Triangle(int(prim))
		t, u, v, det, ok := IntersectTriangle(local, a, bb, c, opts.TMin, limit)
		if !ok {
			return 0, false
		}
		front := (det > 0) == b.FrontCounterClockwise
		if cull && !front {
			return 0, false
		}
		if inst.Transparent && !passesAlpha(inst.Material, geo.Mesh, prim, u, v) {
			return 0, false
		}
		best = Hit{
			Instance:    idx,
			Triangle:    prim,
			T:           t,
			U:           u,
			V:           v,
			Normal:      bb.Sub(a).Cross(c.Sub(a)),
			FrontFacing: front,
		}
		if !b.FrontCounterClockwise {
			best.Normal = best.Normal.Negate()
		}
		found = true
		return t, true
	}

	if anyHit {
		ok := geo.BVH.Occluded(local, opts.TMin, tMax, func(prim int32, limit float32) bool {
			_, hit := test(prim, limit)
			return hit
		})
		return best, ok
	}
	geo.BVH.Intersect(local, opts.TMin, tMax, test)
	return best, found
}

// passesAlpha is the any-hit alpha test for masked materials. Blended
// and transmissive materials always register a hit; their transparency is
// resolved by shading.
func passesAlpha(m *scene.Material, mesh *scene.Mesh, prim int32, u, v float32) bool {
	if m == nil || m.AlphaMode != scene.AlphaMask {
		return true
	}
	alpha := m.Albedo.A
	if tex := m.AlbedoTexture; tex != nil && tex.Width > 0 {
		i := prim * 3
		uv := math.Vec2Barycentric(
			mesh.Vertices[mesh.Indices[i]].UV,
			mesh.Vertices[mesh.Indices[i+1]].UV,
			mesh.Vertices[mesh.Indices[i+2]].UV,
			u, v)
		alpha *= tex.SampleAlpha(uv.X, uv.Y)
	}
	return alpha >= m.AlphaCutoff
}
