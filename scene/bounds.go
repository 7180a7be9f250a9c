package scene

import "raytrace-engine/math"

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max math.Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	const inf = float32(3.4e38)
	return AABB{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (box AABB) IsEmpty() bool {
	return box.Min.X > box.Max.X || box.Min.Y > box.Max.Y || box.Min.Z > box.Max.Z
}

func (box AABB) Extend(p math.Vec3) AABB {
	return AABB{Min: box.Min.Min(p), Max: box.Max.Max(p)}
}

func (box AABB) Union(other AABB) AABB {
	return AABB{Min: box.Min.Min(other.Min), Max: box.Max.Max(other.Max)}
}

func (box AABB) Center() math.Vec3 {
	return box.Min.Add(box.Max).Mul(0.5)
}

func (box AABB) Size() math.Vec3 {
	return box.Max.Sub(box.Min)
}

// SurfaceArea is used by the SAH cost model.
func (box AABB) SurfaceArea() float32 {
	if box.IsEmpty() {
		return 0
	}
	d := box.Size()
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// LongestAxis returns 0, 1 or 2 for X, Y or Z.
func (box AABB) LongestAxis() int {
	d := box.Size()
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

// BoundingSphere returns the sphere through the box corners.
func (box AABB) BoundingSphere() Sphere {
	return Sphere{Center: box.Center(), Radius: box.Size().Length() * 0.5}
}

// Sphere is a bounding or culling sphere.
type Sphere struct {
	Center math.Vec3
	Radius float32
}

// IntersectsAABB reports whether any point of the box lies inside the sphere.
func (s Sphere) IntersectsAABB(box AABB) bool {
	closest := s.Center.Max(box.Min).Min(box.Max)
	return closest.Sub(s.Center).LengthSqr() <= s.Radius*s.Radius
}

// ComputeAABB computes the world-space AABB for a mesh transformed by worldMatrix.
// If the mesh has a cached local AABB, it transforms the 8 corners (fast path).
// Otherwise it falls back to iterating all vertices.
func ComputeAABB(mesh *Mesh, worldMatrix math.Mat4) AABB {
	if mesh.HasLocalAABB {
		return transformAABB(mesh.LocalAABB, worldMatrix)
	}
	out := EmptyAABB()
	for _, v := range mesh.Vertices {
		out = out.Extend(worldMatrix.MulPoint(v.Position))
	}
	return out
}

func transformAABB(local AABB, m math.Mat4) AABB {
	mn, mx := local.Min, local.Max
	corners := [8]math.Vec3{
		{X: mn.X, Y: mn.Y, Z: mn.Z},
		{X: mx.X, Y: mn.Y, Z: mn.Z},
		{X: mn.X, Y: mx.Y, Z: mn.Z},
		{X: mx.X, Y: mx.Y, Z: mn.Z},
		{X: mn.X, Y: mn.Y, Z: mx.Z},
		{X: mx.X, Y: mn.Y, Z: mx.Z},
		{X: mn.X, Y: mx.Y, Z: mx.Z},
		{X: mx.X, Y: mx.Y, Z: mx.Z},
	}
	out := EmptyAABB()
	for _, c := range corners {
		out = out.Extend(m.MulPoint(c))
	}
	return out
}
