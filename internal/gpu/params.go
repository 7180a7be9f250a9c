// Package gpu holds what the tracer backends share: the slot store the
// ray-tracing pass writes into, and the uniform block layout the kernels
// read.
package gpu

import (
	"bytes"
	"encoding/binary"
	stdmath "math"

	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// WorkgroupSize is the edge of the square compute workgroup every kernel
// declares.
const WorkgroupSize = 8

// BlockSize is the encoded size of Block in bytes.
const BlockSize = 272

var defaultSun = math.Vec3{X: -0.4, Y: -1, Z: -0.3}

// Groups returns how many workgroups of size cover n invocations.
func Groups(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Store keeps the latest value written to every named slot. It implements
// raytracing.UniformSink.
type Store struct {
	ints     map[string]int32
	floats   map[string]float32
	vectors  map[string]math.Vec4
	matrices map[string]math.Mat4
	textures map[string]*scene.Texture
	keywords map[string]bool
}

func NewStore() *Store {
	return &Store{
		ints:     make(map[string]int32),
		floats:   make(map[string]float32),
		vectors:  make(map[string]math.Vec4),
		matrices: make(map[string]math.Mat4),
		textures: make(map[string]*scene.Texture),
		keywords: make(map[string]bool),
	}
}

func (s *Store) SetInt(name string, v int32)              { s.ints[name] = v }
func (s *Store) SetFloat(name string, v float32)          { s.floats[name] = v }
func (s *Store) SetVector(name string, v math.Vec4)       { s.vectors[name] = v }
func (s *Store) SetMatrix(name string, m math.Mat4)       { s.matrices[name] = m }
func (s *Store) SetTexture(name string, t *scene.Texture) { s.textures[name] = t }

func (s *Store) SetKeyword(name string, enabled bool) { s.keywords[name] = enabled }
func (s *Store) Keyword(name string) bool             { return s.keywords[name] }

// Matrix returns a matrix slot, zero when unset.
func (s *Store) Matrix(name string) math.Mat4 { return s.matrices[name] }

// Environment returns the bound environment map, or nil when the skybox
// slot is off.
func (s *Store) Environment() *scene.Texture {
	if s.ints[raytracing.UniformUseSkyBox] == 0 {
		return nil
	}
	return s.textures[raytracing.UniformEnvTexture]
}

// Block is the tracer parameter block in std140 layout. Matrices are
// stored in row-major order, which a column-major shader matrix reads as
// the transpose, so M*v in the shader equals v*M here.
type Block struct {
	CameraToWorld     [16]float32
	InverseProjection [16]float32
	SunDirection      [4]float32 // towards the sun
	SunColor          [4]float32
	TopSky            [4]float32
	BottomSky         [4]float32

	NearClip         float32
	ClipDistance     float32
	PixelSpreadAngle float32
	IndirectSky      float32

	SunSpread   float32 // cone half-angle in radians
	FrameIndex  int32
	MaxReflect  int32
	MaxIndirect int32

	MaxRefract     int32
	ShadowSamples  int32
	ReflectionMode int32
	CullBackfaces  int32

	UseSkyBox int32
	FrontCCW  int32
	Width     int32
	Height    int32

	Nodes     int32
	Instances int32
	_         [2]int32
}

// Block resolves the stored slots into a parameter block for a
// width x height dispatch. Missing slots read as zero, as unset shader
// globals do; the sun falls back to a default key light.
func (s *Store) Block(width, height int) Block {
	b := Block{
		CameraToWorld:     s.matrices[raytracing.UniformCameraToWorld].Flatten(),
		InverseProjection: s.matrices[raytracing.UniformInverseProjection].Flatten(),
		TopSky:            vec4(s.vectors[raytracing.UniformTopSkyColor]),
		BottomSky:         vec4(s.vectors[raytracing.UniformBottomSkyColor]),

		NearClip:         s.floats[raytracing.UniformNearClip],
		ClipDistance:     float32(s.ints[raytracing.UniformClipDistance]),
		PixelSpreadAngle: s.floats[raytracing.UniformPixelSpreadAngle],
		IndirectSky:      s.floats[raytracing.UniformIndirectSkyStrength],

		FrameIndex:     s.ints[raytracing.UniformFrameIndex],
		MaxReflect:     s.ints[raytracing.UniformMaxReflectDepth],
		MaxIndirect:    s.ints[raytracing.UniformMaxIndirectDepth],
		MaxRefract:     s.ints[raytracing.UniformMaxRefractionDepth],
		ShadowSamples:  s.ints[raytracing.UniformRenderShadows],
		ReflectionMode: s.ints[raytracing.UniformReflectionMode],
		CullBackfaces:  s.ints[raytracing.UniformCullBackfaces],
		UseSkyBox:      s.ints[raytracing.UniformUseSkyBox],

		Width:  int32(width),
		Height: int32(height),
	}
	if b.ClipDistance <= 0 {
		b.ClipDistance = stdmath.MaxFloat32
	}
	if spread := s.floats[raytracing.UniformSunSpread] - 1; spread > 0 {
		b.SunSpread = spread * stdmath.Pi / 180
	}
	if s.Environment() == nil {
		b.UseSkyBox = 0
	}

	sun := s.vectors[raytracing.UniformSunDirection].ToVec3()
	if sun.LengthSqr() == 0 {
		sun = defaultSun
	}
	sun = sun.Normalize().Negate()
	b.SunDirection = [4]float32{sun.X, sun.Y, sun.Z, 0}
	if c, ok := s.vectors[raytracing.UniformSunColor]; ok {
		b.SunColor = vec4(c)
	} else {
		b.SunColor = [4]float32{1, 1, 1, 1}
	}
	return b
}

// WithScene stamps the packed scene header into the block.
func (b Block) WithScene(p *raytracing.Packed) Block {
	b.Nodes = int32(len(p.Nodes))
	b.Instances = int32(len(p.Instances))
	if p.FrontCounterClockwise {
		b.FrontCCW = 1
	}
	return b
}

// Bytes encodes the block little-endian.
func (b *Block) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(BlockSize)
	if err := binary.Write(&buf, binary.LittleEndian, b); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func vec4(v math.Vec4) [4]float32 {
	return [4]float32{v.X, v.Y, v.Z, v.W}
}
