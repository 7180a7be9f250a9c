package raytracing

import (
	stdmath "math"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// CullingFlags enable the optional culling stages.
type CullingFlags uint32

const (
	CullSphere CullingFlags = 1 << iota
	CullLOD
)

// SubMeshFlags describe how the tracer treats a committed instance.
type SubMeshFlags uint32

const (
	SubMeshEnabled SubMeshFlags = 1 << iota
	// SubMeshClosestHitOnly skips any-hit evaluation.
	SubMeshClosestHitOnly
)

// SubMeshFlagsConfig picks flags by material class.
type SubMeshFlagsConfig struct {
	Opaque      SubMeshFlags
	Transparent SubMeshFlags
}

// TriangleCulling configures front-face winding and double-sidedness.
type TriangleCulling struct {
	FrontCounterClockwise bool
	// DoubleSidedKeywords mark a material as double-sided when present.
	DoubleSidedKeywords []string
	ForceDoubleSided    bool
}

// LODParameters are recorded from the camera every frame.
type LODParameters struct {
	FieldOfView    float32 // vertical, radians
	CameraPosition math.Vec3
	PixelHeight    int
}

// InstanceTest is one instance category. An instance that passes the test
// gets InstanceMask OR-ed into its committed mask.
type InstanceTest struct {
	InstanceMask RayMask
	// ShadowModes is a bit set indexed by scene.ShadowCastingMode.
	ShadowModes      uint32
	AllowOpaque      bool
	AllowTransparent bool
	LayerMask        uint32
}

// ShadowModeBits builds an InstanceTest.ShadowModes set.
func ShadowModeBits(modes ...scene.ShadowCastingMode) uint32 {
	var bits uint32
	for _, m := range modes {
		bits |= 1 << uint32(m)
	}
	return bits
}

// DefaultInstanceTests returns the "default" and "shadow" categories.
func DefaultInstanceTests() []InstanceTest {
	return []InstanceTest{
		{
			InstanceMask:     MaskPrimary,
			ShadowModes:      ShadowModeBits(scene.ShadowsOff, scene.ShadowsOn, scene.ShadowsTwoSided),
			AllowOpaque:      true,
			AllowTransparent: true,
			LayerMask:        LayerEverything,
		},
		{
			InstanceMask:     MaskShadow,
			ShadowModes:      ShadowModeBits(scene.ShadowsOn, scene.ShadowsTwoSided, scene.ShadowsOnly),
			AllowOpaque:      true,
			AllowTransparent: true,
			LayerMask:        LayerEverything,
		},
	}
}

func (t InstanceTest) accepts(h InstanceHandle) bool {
	if t.ShadowModes&(1<<uint32(h.Shadows)) == 0 {
		return false
	}
	if h.Transparent && !t.AllowTransparent || !h.Transparent && !t.AllowOpaque {
		return false
	}
	return h.Node.LayerBit()&t.LayerMask != 0
}

// CullingConfig is derived from the camera every frame and never stored.
type CullingConfig struct {
	Flags        CullingFlags
	SphereCenter math.Vec3
	SphereRadius float32

	LOD LODParameters
	// MinScreenPixels drops instances whose projected bounding sphere is
	// smaller than this many pixels. Zero disables the check.
	MinScreenPixels float32

	SubMeshFlags SubMeshFlagsConfig
	Triangles    TriangleCulling
	// TransparentKeywords are attached to transparent instances so the
	// kernel compiles its any-hit path for them.
	TransparentKeywords []string

	Tests []InstanceTest
}

// NewCullingConfig derives the per-frame config. The culling sphere is
// centred on the camera with radius far*0.5.
func NewCullingConfig(cam *scene.Camera, s Settings) CullingConfig {
	return CullingConfig{
		Flags:        CullSphere | CullLOD,
		SphereCenter: cam.Position,
		SphereRadius: cam.FarPlane * 0.5,
		LOD: LODParameters{
			FieldOfView:    cam.FOV,
			CameraPosition: cam.Position,
			PixelHeight:    cam.PixelHeight,
		},
		SubMeshFlags: SubMeshFlagsConfig{
			Opaque:      SubMeshEnabled | SubMeshClosestHitOnly,
			Transparent: SubMeshEnabled,
		},
		Triangles: TriangleCulling{
			FrontCounterClockwise: true,
			DoubleSidedKeywords:   []string{DoubleSidedKeyword},
			ForceDoubleSided:      s.ForceDoubleSided,
		},
		TransparentKeywords: []string{TransparentKeyword},
		Tests:               DefaultInstanceTests(),
	}
}

// projectedPixels estimates the on-screen diameter of a bounding sphere.
func (c *CullingConfig) projectedPixels(s scene.Sphere) float32 {
	dist := s.Center.Distance(c.LOD.CameraPosition)
	if dist <= s.Radius {
		return float32(stdmath.Inf(1))
	}
	halfHeight := dist * float32(stdmath.Tan(float64(c.LOD.FieldOfView)/2))
	if halfHeight <= 0 {
		return float32(stdmath.Inf(1))
	}
	return s.Radius / halfHeight * float32(c.LOD.PixelHeight)
}

// Evaluate runs every enabled stage against h. It returns the instance to
// commit, or false when h is culled.
func (c *CullingConfig) Evaluate(h InstanceHandle) (Instance, bool) {
	if c.Flags&CullSphere != 0 && !(scene.Sphere{Center: c.SphereCenter, Radius: c.SphereRadius}).IntersectsAABB(h.Bounds) {
		return Instance{}, false
	}
	if c.Flags&CullLOD != 0 && c.MinScreenPixels > 0 && c.LOD.PixelHeight > 0 {
		if c.projectedPixels(h.Bounds.BoundingSphere()) < c.MinScreenPixels {
			return Instance{}, false
		}
	}

	var mask RayMask
	for _, t := range c.Tests {
		if t.accepts(h) {
			mask |= t.InstanceMask
		}
	}
	if mask == MaskNone {
		return Instance{}, false
	}

	inst := Instance{
		Handle:      h,
		Mask:        mask,
		Transparent: h.Transparent,
		DoubleSided: h.DoubleSided || c.Triangles.ForceDoubleSided,
		Material:    h.Mesh.MaterialOrDefault(),
	}
	if h.DoubleSided {
		inst.Keywords = append(inst.Keywords, c.Triangles.DoubleSidedKeywords...)
	}
	if h.Transparent {
		inst.Flags = c.SubMeshFlags.Transparent
		inst.Keywords = append(inst.Keywords, c.TransparentKeywords...)
	} else {
		inst.Flags = c.SubMeshFlags.Opaque
	}
	if inst.Flags&SubMeshEnabled == 0 {
		return Instance{}, false
	}
	return inst, true
}
