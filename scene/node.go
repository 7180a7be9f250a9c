package scene

import (
	"sync/atomic"

	"raytrace-engine/core"
	"raytrace-engine/math"
)

// RayTracingMode controls whether, and how often, a node's geometry takes part
// in the ray-tracing acceleration structure.
type RayTracingMode int

const (
	RayTracingOff RayTracingMode = iota
	RayTracingStatic
	RayTracingDynamicTransform
	RayTracingDynamicGeometry
)

func (m RayTracingMode) String() string {
	switch m {
	case RayTracingOff:
		return "off"
	case RayTracingStatic:
		return "static"
	case RayTracingDynamicTransform:
		return "dynamic-transform"
	case RayTracingDynamicGeometry:
		return "dynamic-geometry"
	}
	return "unknown"
}

// ShadowCastingMode mirrors the rasterizer's shadow settings. It decides which
// ray categories (primary, shadow) an instance is visible to.
type ShadowCastingMode int

const (
	ShadowsOff ShadowCastingMode = iota
	ShadowsOn
	ShadowsTwoSided
	ShadowsOnly
)

func (m ShadowCastingMode) String() string {
	switch m {
	case ShadowsOff:
		return "off"
	case ShadowsOn:
		return "on"
	case ShadowsTwoSided:
		return "two-sided"
	case ShadowsOnly:
		return "shadows-only"
	}
	return "unknown"
}

// DefaultLayer is the layer new nodes are placed on.
const DefaultLayer uint32 = 0

// Node represents an object in the scene graph
type Node struct {
	Name      string
	Transform core.Transform
	Parent    *Node
	Children  []*Node
	Mesh      *Mesh
	Visible   bool
	Id        uint32

	// Layer is an index in [0,32); acceleration structures select nodes with a layer mask.
	Layer         uint32
	RayTracing    RayTracingMode
	ShadowCasting ShadowCastingMode

	// Destroyed nodes are skipped by every traversal consumer and dropped
	// from the ray-tracing registry on its next sync.
	Destroyed bool

	// Cached world transform
	worldMatrixDirty bool
	worldMatrix      math.Mat4
}

var nodeIdCounter atomic.Uint32

func NewNode(name string) *Node {
	return &Node{
		Name:             name,
		Transform:        core.NewTransform(),
		Children:         make([]*Node, 0),
		Visible:          true,
		Id:               nodeIdCounter.Add(1),
		Layer:            DefaultLayer,
		RayTracing:       RayTracingDynamicTransform,
		ShadowCasting:    ShadowsOn,
		worldMatrixDirty: true,
	}
}

// LayerBit returns the node's layer as a single-bit mask.
func (n *Node) LayerBit() uint32 {
	return 1 << (n.Layer & 31)
}

func (n *Node) AddChild(child *Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	child.MarkWorldMatrixDirty()
}

func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			child.MarkWorldMatrixDirty()
			return
		}
	}
}

// Destroy detaches the node and flags it and its subtree as destroyed.
func (n *Node) Destroy() {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	n.Traverse(func(c *Node) { c.Destroyed = true })
}

// GetWorldMatrix returns local * parentWorld (row-vector convention).
func (n *Node) GetWorldMatrix() math.Mat4 {
	if n.worldMatrixDirty {
		localMatrix := n.Transform.GetMatrix()
		if n.Parent != nil {
			n.worldMatrix = localMatrix.Mul(n.Parent.GetWorldMatrix())
		} else {
			n.worldMatrix = localMatrix
		}
		n.worldMatrixDirty = false
	}
	return n.worldMatrix
}

func (n *Node) MarkWorldMatrixDirty() {
	n.worldMatrixDirty = true
	for _, child := range n.Children {
		child.MarkWorldMatrixDirty()
	}
}

func (n *Node) SetPosition(pos math.Vec3) {
	n.Transform.Position = pos
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetRotation(rot math.Quaternion) {
	n.Transform.Rotation = rot
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetScale(scale math.Vec3) {
	n.Transform.Scale = scale
	n.MarkWorldMatrixDirty()
}

func (n *Node) Translate(delta math.Vec3) {
	n.Transform.Position = n.Transform.Position.Add(delta)
	n.MarkWorldMatrixDirty()
}

func (n *Node) Rotate(axis math.Vec3, angle float32) {
	rotation := math.QuaternionFromAxisAngle(axis, angle)
	n.Transform.Rotation = n.Transform.Rotation.Mul(rotation).Normalize()
	n.MarkWorldMatrixDirty()
}

// Traverse visits n and all descendants depth-first, parents before children.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.Traverse(fn)
	}
}

// FindByName returns the first node in the subtree with the given name.
func (n *Node) FindByName(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.FindByName(name); found != nil {
			return found
		}
	}
	return nil
}
