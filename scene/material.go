package scene

import "raytrace-engine/core"

// AlphaMode follows the glTF convention.
type AlphaMode int

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// Material describes surface appearance for both the raster base pass and
// the ray tracer. The tracer only consumes the flags and scalar factors.
type Material struct {
	Name          string
	Albedo        core.Color // base colour; Albedo.A is the coverage for alpha modes
	EmissiveColor core.Color
	Metallic      float32 // 0 = dielectric, 1 = metal
	Roughness     float32 // 0 = mirror, 1 = fully diffuse

	// Transmission in [0,1] makes the surface refractive with index IOR.
	Transmission float32
	IOR          float32

	AlphaMode   AlphaMode
	AlphaCutoff float32
	DoubleSided bool

	AlbedoTexture *Texture
}

// DefaultMaterial returns a plain white matte material.
func DefaultMaterial() *Material {
	return &Material{
		Name:        "Default",
		Albedo:      core.ColorWhite,
		Roughness:   0.5,
		IOR:         1.5,
		AlphaCutoff: 0.5,
	}
}

// NewMaterial creates an opaque material with the given albedo color.
func NewMaterial(name string, albedo core.Color) *Material {
	m := DefaultMaterial()
	m.Name = name
	m.Albedo = albedo
	return m
}

// IsTransparent reports whether the material needs any-hit alpha handling.
func (m *Material) IsTransparent() bool {
	return m.AlphaMode != AlphaOpaque || m.Transmission > 0
}
