package scene

import (
	"raytrace-engine/core"
	"raytrace-engine/math"
)

// Mesh holds CPU-side vertex/index data. Triangles are indexed and wound
// counter-clockwise when seen from the front.
type Mesh struct {
	Name     string
	Vertices []core.Vertex
	Indices  []uint32

	// Cached local-space AABB (computed by CreateMeshFromData).
	LocalAABB    AABB
	HasLocalAABB bool

	// Material holds surface shading properties. If nil, DefaultMaterial() is used.
	Material *Material

	// GPUData is set by a raster backend (e.g. *opengl.GPUMesh).
	GPUData interface{}
}

// CreateMeshFromData builds a Mesh and pre-computes its local-space AABB.
// A nil index slice is treated as a plain triangle list.
func CreateMeshFromData(name string, vertices []core.Vertex, indices []uint32) *Mesh {
	if indices == nil {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	m := &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
	}
	if len(vertices) > 0 {
		box := EmptyAABB()
		for _, v := range vertices {
			box = box.Extend(v.Position)
		}
		m.LocalAABB = box
		m.HasLocalAABB = true
	}
	return m
}

// TriangleCount returns the number of indexed triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns the object-space corners of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c math.Vec3) {
	a = m.Vertices[m.Indices[i*3]].Position
	b = m.Vertices[m.Indices[i*3+1]].Position
	c = m.Vertices[m.Indices[i*3+2]].Position
	return a, b, c
}

// MaterialOrDefault never returns nil.
func (m *Mesh) MaterialOrDefault() *Material {
	if m.Material != nil {
		return m.Material
	}
	return DefaultMaterial()
}

func CreateQuad() *Mesh {
	vertices := []core.Vertex{
		{Position: math.Vec3{X: -0.5, Y: -0.5, Z: 0}, Normal: math.Vec3Front, UV: math.Vec2{X: 0, Y: 0}, Color: core.ColorWhite},
		{Position: math.Vec3{X: 0.5, Y: -0.5, Z: 0}, Normal: math.Vec3Front, UV: math.Vec2{X: 1, Y: 0}, Color: core.ColorWhite},
		{Position: math.Vec3{X: 0.5, Y: 0.5, Z: 0}, Normal: math.Vec3Front, UV: math.Vec2{X: 1, Y: 1}, Color: core.ColorWhite},
		{Position: math.Vec3{X: -0.5, Y: 0.5, Z: 0}, Normal: math.Vec3Front, UV: math.Vec2{X: 0, Y: 1}, Color: core.ColorWhite},
	}
	indices := []uint32{0, 1, 2, 2, 3, 0}
	return CreateMeshFromData("Quad", vertices, indices)
}

// CreateCube builds an axis-aligned cube centred on the origin.
func CreateCube(size float32) *Mesh {
	s := size / 2
	faces := []struct{ normal, u, v math.Vec3 }{
		{math.Vec3Front, math.Vec3Right, math.Vec3Up},
		{math.Vec3Back, math.Vec3Left, math.Vec3Up},
		{math.Vec3Up, math.Vec3Right, math.Vec3Back},
		{math.Vec3Down, math.Vec3Right, math.Vec3Front},
		{math.Vec3Right, math.Vec3Back, math.Vec3Up},
		{math.Vec3Left, math.Vec3Front, math.Vec3Up},
	}

	vertices := make([]core.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		c := f.normal.Mul(s)
		u := f.u.Mul(s)
		v := f.v.Mul(s)
		base := uint32(len(vertices))
		corners := [4]struct {
			p  math.Vec3
			uv math.Vec2
		}{
			{c.Sub(u).Sub(v), math.Vec2{X: 0, Y: 0}},
			{c.Add(u).Sub(v), math.Vec2{X: 1, Y: 0}},
			{c.Add(u).Add(v), math.Vec2{X: 1, Y: 1}},
			{c.Sub(u).Add(v), math.Vec2{X: 0, Y: 1}},
		}
		for _, k := range corners {
			vertices = append(vertices, core.Vertex{Position: k.p, Normal: f.normal, UV: k.uv, Color: core.ColorWhite})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return CreateMeshFromData("Cube", vertices, indices)
}
