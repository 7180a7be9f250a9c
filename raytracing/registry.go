package raytracing

import (
	"sort"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// RayMask selects which ray categories may hit an instance.
type RayMask uint32

const (
	MaskNone    RayMask = 0
	MaskPrimary RayMask = 1 << 0 // the "default" category
	MaskShadow  RayMask = 1 << 1
	MaskAll             = MaskPrimary | MaskShadow
)

// LayerEverything selects every node layer.
const LayerEverything uint32 = 0xFFFFFFFF

// ClassifyShadowCasting maps a node's shadow-casting mode to the ray
// categories it takes part in.
func ClassifyShadowCasting(mode scene.ShadowCastingMode) RayMask {
	switch mode {
	case scene.ShadowsOff:
		return MaskPrimary
	case scene.ShadowsOn, scene.ShadowsTwoSided:
		return MaskPrimary | MaskShadow
	case scene.ShadowsOnly:
		return MaskShadow
	}
	return MaskNone
}

// InstanceHandle is the registry's view of one eligible renderable.
// World and Bounds are refreshed on every Sync.
type InstanceHandle struct {
	Node   *scene.Node
	Mesh   *scene.Mesh
	World  math.Mat4
	Bounds scene.AABB

	Mask        RayMask
	Transparent bool
	DoubleSided bool
	Mode        scene.RayTracingMode
	Shadows     scene.ShadowCastingMode
}

// ID returns the owning node's id.
func (h InstanceHandle) ID() uint32 {
	return h.Node.Id
}

// Registry tracks which scene nodes are eligible for ray tracing.
// It holds at most one handle per node.
type Registry struct {
	// LayerMask selects the node layers the registry tracks.
	LayerMask uint32

	supported bool
	handles   map[uint32]InstanceHandle
	order     []uint32
}

// NewRegistry returns a registry for dev. A nil device, or one without
// ray-tracing support, yields a registry that never reports instances.
func NewRegistry(dev Device) *Registry {
	return &Registry{
		LayerMask: LayerEverything,
		supported: dev != nil && dev.SupportsRayTracing(),
		handles:   make(map[uint32]InstanceHandle),
	}
}

func (r *Registry) eligible(n *scene.Node) bool {
	return !n.Destroyed &&
		n.Visible &&
		n.Mesh != nil &&
		n.Mesh.TriangleCount() > 0 &&
		n.RayTracing != scene.RayTracingOff &&
		n.LayerBit()&r.LayerMask != 0
}

func handleFor(n *scene.Node) InstanceHandle {
	world := n.GetWorldMatrix()
	mat := n.Mesh.MaterialOrDefault()
	return InstanceHandle{
		Node:        n,
		Mesh:        n.Mesh,
		World:       world,
		Bounds:      scene.ComputeAABB(n.Mesh, world),
		Mask:        ClassifyShadowCasting(n.ShadowCasting),
		Transparent: mat.IsTransparent(),
		DoubleSided: mat.DoubleSided,
		Mode:        n.RayTracing,
		Shadows:     n.ShadowCasting,
	}
}

// Collect enumerates the eligible renderables under root, ordered by node
// id. It does not touch the registry's tracked set.
func (r *Registry) Collect(root *scene.Node) []InstanceHandle {
	if !r.supported || root == nil {
		return nil
	}
	var out []InstanceHandle
	root.Traverse(func(n *scene.Node) {
		if r.eligible(n) {
			out = append(out, handleFor(n))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Node.Id < out[j].Node.Id })
	return out
}

// Sync brings the tracked set in line with the scene. Handles for nodes
// that are still eligible get fresh transforms; nodes that were destroyed
// or changed layer or mode are dropped. It reports how many handles were
// added and removed.
func (r *Registry) Sync(root *scene.Node) (added, removed int) {
	current := r.Collect(root)
	seen := make(map[uint32]struct{}, len(current))
	for _, h := range current {
		id := h.ID()
		seen[id] = struct{}{}
		if _, ok := r.handles[id]; !ok {
			added++
		}
		r.handles[id] = h
	}
	for id := range r.handles {
		if _, ok := seen[id]; !ok {
			delete(r.handles, id)
			removed++
		}
	}

	r.order = r.order[:0]
	for _, h := range current {
		r.order = append(r.order, h.ID())
	}
	return added, removed
}

// Handles returns the tracked handles ordered by node id.
func (r *Registry) Handles() []InstanceHandle {
	out := make([]InstanceHandle, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.handles[id])
	}
	return out
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int {
	return len(r.handles)
}
