package gpu

import "raytrace-engine/raytracing"

// Element strides of the packed storage arrays.
const (
	NodeStride     = 32
	TriangleStride = 48
	InstanceStride = 144
)

// Buffers encodes p for storage-buffer upload. Empty arrays become one
// zeroed element because zero-sized bindings are invalid; Block.Nodes and
// Block.Instances tell the kernel how much is real.
func Buffers(p *raytracing.Packed) (nodes, triangles, instances []byte) {
	nodes, triangles, instances = p.Bytes()
	return pad(nodes, NodeStride), pad(triangles, TriangleStride), pad(instances, InstanceStride)
}

func pad(b []byte, stride int) []byte {
	if len(b) == 0 {
		return make([]byte, stride)
	}
	return b
}
