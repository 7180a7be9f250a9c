package raytracing

import (
	"bytes"
	"encoding/binary"

	"raytrace-engine/scene"
)

// Instance flag bits in GPUInstance.Flags.
const (
	FlagDoubleSided uint32 = 1 << iota
	FlagTransparent
	FlagAlphaMask
	FlagClosestHitOnly
)

// GPUNode is a BVHNode laid out for std430 storage buffers. Indices are
// absolute into the packed arrays: an interior node's left child is the
// next node and its right child is First; a leaf covers
// [First, First+Count) of the triangle array (bottom level) or of the
// instance array (top level).
type GPUNode struct {
	Min   [3]float32
	First int32
	Max   [3]float32
	Count int32
}

// GPUTriangle holds one object-space triangle; W is unused.
type GPUTriangle struct {
	V0, V1, V2 [4]float32
}

// GPUInstance is one committed instance. Instances are stored in
// top-level leaf order.
type GPUInstance struct {
	WorldToObject [16]float32
	Root          int32 // node index of the instance's bottom-level root
	Mask          uint32
	Flags         uint32
	_             uint32
	Albedo        [4]float32
	Emissive      [4]float32
	Surface       [4]float32 // metallic, roughness, transmission, ior
	Alpha         [4]float32 // x is the alpha cutoff
}

// Packed is a Build flattened for upload.
type Packed struct {
	Version               uint64
	Nodes                 []GPUNode
	Triangles             []GPUTriangle
	Instances             []GPUInstance
	FrontCounterClockwise bool
}

// Pack flattens b. The top-level hierarchy starts at node 0; a build with
// no instances packs to empty arrays.
func Pack(b *Build) *Packed {
	p := &Packed{}
	if b == nil || b.TopLevel == nil || len(b.TopLevel.Nodes) == 0 {
		return p
	}
	p.Version = b.Version
	p.FrontCounterClockwise = b.FrontCounterClockwise

	top := b.TopLevel
	p.Nodes = appendNodes(p.Nodes, top, 0, 0)

	roots := make([]int32, len(b.Geometries))
	for gi, g := range b.Geometries {
		nodeBase := int32(len(p.Nodes))
		triBase := int32(len(p.Triangles))
		roots[gi] = nodeBase
		p.Nodes = appendNodes(p.Nodes, g.BVH, nodeBase, triBase)
		for _, prim := range g.BVH.Primitives {
			a, bb, c := g.Mesh.Triangle(int(prim))
			p.Triangles = append(p.Triangles, GPUTriangle{
				V0: [4]float32{a.X, a.Y, a.Z, 1},
				V1: [4]float32{bb.X, bb.Y, bb.Z, 1},
				V2: [4]float32{c.X, c.Y, c.Z, 1},
			})
		}
	}

	p.Instances = make([]GPUInstance, 0, len(top.Primitives))
	for _, prim := range top.Primitives {
		p.Instances = append(p.Instances, packInstance(&b.Instances[prim], roots))
	}
	return p
}

func appendNodes(dst []GPUNode, bvh *BVH, nodeBase, primBase int32) []GPUNode {
	for _, n := range bvh.Nodes {
		g := GPUNode{
			Min:   [3]float32{n.Bounds.Min.X, n.Bounds.Min.Y, n.Bounds.Min.Z},
			Max:   [3]float32{n.Bounds.Max.X, n.Bounds.Max.Y, n.Bounds.Max.Z},
			Count: n.Count,
		}
		if n.IsLeaf() {
			g.First = primBase + n.First
		} else {
			g.First = nodeBase + n.First
		}
		dst = append(dst, g)
	}
	return dst
}

func packInstance(inst *Instance, roots []int32) GPUInstance {
	m := inst.Material
	if m == nil {
		m = scene.DefaultMaterial()
	}
	g := GPUInstance{
		WorldToObject: inst.WorldToObject.Flatten(),
		Root:          roots[inst.Geometry],
		Mask:          uint32(inst.Mask),
		Albedo:        [4]float32{m.Albedo.R, m.Albedo.G, m.Albedo.B, m.Albedo.A},
		Emissive:      [4]float32{m.EmissiveColor.R, m.EmissiveColor.G, m.EmissiveColor.B, 1},
		Surface:       [4]float32{m.Metallic, m.Roughness, m.Transmission, m.IOR},
		Alpha:         [4]float32{m.AlphaCutoff},
	}
	if inst.DoubleSided {
		g.Flags |= FlagDoubleSided
	}
	if inst.Transparent {
		g.Flags |= FlagTransparent
	}
	if m.AlphaMode == scene.AlphaMask {
		g.Flags |= FlagAlphaMask
	}
	if inst.Flags&SubMeshClosestHitOnly != 0 {
		g.Flags |= FlagClosestHitOnly
	}
	return g
}

// Bytes encodes the three arrays little-endian, ready for buffer uploads.
func (p *Packed) Bytes() (nodes, triangles, instances []byte) {
	return encode(p.Nodes), encode(p.Triangles), encode(p.Instances)
}

func encode(data any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		// Every packed type is fixed-size.
		panic(err)
	}
	return buf.Bytes()
}
