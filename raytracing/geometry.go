package raytracing

import (
	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// MeshBLAS is the bottom-level hierarchy over one mesh's triangles in
// object space. It is shared by every instance of the mesh.
type MeshBLAS struct {
	Mesh *scene.Mesh
	BVH  *BVH

	vertexCount int
	indexCount  int
}

// BuildMeshBLAS builds the triangle hierarchy for m.
func BuildMeshBLAS(m *scene.Mesh) *MeshBLAS {
	n := m.TriangleCount()
	bounds := make([]scene.AABB, n)
	for i := 0; i < n; i++ {
		a, b, c := m.Triangle(i)
		bounds[i] = scene.EmptyAABB().Extend(a).Extend(b).Extend(c)
	}
	return &MeshBLAS{
		Mesh:        m,
		BVH:         BuildBVH(bounds),
		vertexCount: len(m.Vertices),
		indexCount:  len(m.Indices),
	}
}

// matches reports whether the cached hierarchy still fits the mesh's
// current topology.
func (g *MeshBLAS) matches(m *scene.Mesh) bool {
	return g.Mesh == m && g.vertexCount == len(m.Vertices) && g.indexCount == len(m.Indices)
}

const triangleEpsilon = 1e-8

// IntersectTriangle is the Möller-Trumbore test. It returns the hit
// distance, the barycentrics of b and c, and the determinant, whose sign
// tells which side was hit: positive means the ray sees the a,b,c
// winding counter-clockwise.
func IntersectTriangle(r Ray, a, b, c math.Vec3, tMin, tMax float32) (t, u, v, det float32, ok bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Direction.Cross(e2)
	det = e1.Dot(p)
	if det > -triangleEpsilon && det < triangleEpsilon {
		return 0, 0, 0, det, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u = s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, 0, 0, det, false
	}
	q := s.Cross(e1)
	v = r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, 0, 0, det, false
	}
	t = e2.Dot(q) * inv
	if t < tMin || t >= tMax {
		return 0, 0, 0, det, false
	}
	return t, u, v, det, true
}

// transformNormal maps an object-space normal to world space given the
// world-to-object matrix (row-vector convention).
func transformNormal(worldToObject math.Mat4, n math.Vec3) math.Vec3 {
	m := worldToObject
	return math.Vec3{
		X: m[0][0]*n.X + m[0][1]*n.Y + m[0][2]*n.Z,
		Y: m[1][0]*n.X + m[1][1]*n.Y + m[1][2]*n.Z,
		Z: m[2][0]*n.X + m[2][1]*n.Y + m[2][2]*n.Z,
	}.Normalize()
}
