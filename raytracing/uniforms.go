package raytracing

import (
	stdmath "math"
	"time"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// Uniform slot names read by the tracer kernels.
const (
	UniformFrameIndex          = "_FrameIndex"
	UniformNearClip            = "_NearClip"
	UniformCameraToWorld       = "_CameraToWorld"
	UniformInverseProjection   = "_CameraInverseProjection"
	UniformCullBackfaces       = "_CullBackfaces"
	UniformPixelSpreadAngle    = "_PixelSpreadAngle"
	UniformBottomSkyColor      = "_BottomSkyColor"
	UniformTopSkyColor         = "_TopSkyColor"
	UniformIndirectSkyStrength = "_IndirectSkyStrength"
	UniformEnvTexture          = "g_EnvTex"
	UniformUseSkyBox           = "_UseSkyBox"
	UniformClipDistance        = "gClipDistance"
	UniformMaxReflectDepth     = "gMaxReflectDepth"
	UniformMaxIndirectDepth    = "gMaxIndirectDepth"
	UniformMaxRefractionDepth  = "gMaxRefractionDepth"
	UniformRenderShadows       = "gRenderShadows"
	UniformReflectionMode      = "gReflectionMode"
	UniformSunSpread           = "gSunSpread"
	UniformRenderTarget        = "_RenderTarget"
)

// Light slots are global state the host binds before the pass executes,
// the way a pipeline publishes its main light.
const (
	UniformSunDirection = "_SunDirection"
	UniformSunColor     = "_SunColor"
)

// framesPerSecond converts elapsed time into frame-index units.
const framesPerSecond = 60

// PixelSpreadAngle is the angle one pixel subtends at the centre of the
// image, used by kernels for ray-cone texture filtering.
func PixelSpreadAngle(fovRadians float32, pixelHeight int) float32 {
	if pixelHeight <= 0 {
		return 0
	}
	return float32(stdmath.Atan(2 * stdmath.Tan(float64(fovRadians)/2) / float64(pixelHeight)))
}

// FrameUniforms is the per-frame parameter block. Every field is already
// clamped.
type FrameUniforms struct {
	CameraToWorld     math.Mat4
	InverseProjection math.Mat4
	NearClip          float32
	ClipDistance      int32

	FrameIndex       float64
	PixelSpreadAngle float32

	MaxReflectDepth    int32
	MaxIndirectDepth   int32
	MaxRefractionDepth int32
	ShadowSamples      int32
	ReflectionMode     int32
	SunSpread          float32

	TopSkyColor         math.Vec4
	BottomSkyColor      math.Vec4
	IndirectSkyStrength float32

	UseSkyBox     bool
	EnvTexture    *scene.Texture
	CullBackfaces bool
}

// FrameIndexInt is the frame index as kernels see it.
func (u *FrameUniforms) FrameIndexInt() int32 {
	return int32(stdmath.Floor(u.FrameIndex))
}

// Apply writes every slot to sink.
func (u *FrameUniforms) Apply(sink UniformSink) {
	sink.SetInt(UniformFrameIndex, u.FrameIndexInt())
	sink.SetFloat(UniformNearClip, u.NearClip)
	sink.SetMatrix(UniformCameraToWorld, u.CameraToWorld)
	sink.SetMatrix(UniformInverseProjection, u.InverseProjection)
	sink.SetInt(UniformCullBackfaces, boolToInt32(u.CullBackfaces))
	sink.SetFloat(UniformPixelSpreadAngle, u.PixelSpreadAngle)
	sink.SetVector(UniformBottomSkyColor, u.BottomSkyColor)
	sink.SetVector(UniformTopSkyColor, u.TopSkyColor)
	sink.SetFloat(UniformIndirectSkyStrength, u.IndirectSkyStrength)
	if u.UseSkyBox {
		sink.SetTexture(UniformEnvTexture, u.EnvTexture)
	}
	sink.SetInt(UniformUseSkyBox, boolToInt32(u.UseSkyBox))
	sink.SetInt(UniformClipDistance, u.ClipDistance)
	sink.SetInt(UniformMaxReflectDepth, u.MaxReflectDepth)
	sink.SetInt(UniformMaxIndirectDepth, u.MaxIndirectDepth)
	sink.SetInt(UniformMaxRefractionDepth, u.MaxRefractionDepth)
	sink.SetInt(UniformRenderShadows, u.ShadowSamples)
	sink.SetInt(UniformReflectionMode, u.ReflectionMode)
	sink.SetFloat(UniformSunSpread, u.SunSpread)
}

// FrameBinder turns camera and settings state into FrameUniforms. It owns
// the running frame index.
type FrameBinder struct {
	// Skybox is the scene's environment map, if any.
	Skybox *scene.Texture

	frameIndex float64
}

// FrameIndex returns the running sum of elapsed*60.
func (b *FrameBinder) FrameIndex() float64 {
	return b.frameIndex
}

// Bind advances the frame index by elapsed and computes the uniform block.
// It never blocks.
func (b *FrameBinder) Bind(cam *scene.Camera, s Settings, elapsed time.Duration) FrameUniforms {
	b.frameIndex += elapsed.Seconds() * framesPerSecond
	s = s.Clamp()

	u := FrameUniforms{
		CameraToWorld:     cam.CameraToWorld(),
		InverseProjection: cam.InverseProjection(),
		NearClip:          cam.NearPlane,
		ClipDistance:      int32(cam.FarPlane),
		FrameIndex:        b.frameIndex,
		PixelSpreadAngle:  PixelSpreadAngle(cam.FOV, cam.ScaledPixelHeight()),

		MaxReflectDepth:    int32(s.MaxReflections),
		MaxIndirectDepth:   int32(s.MaxIndirect),
		MaxRefractionDepth: int32(s.MaxRefractions),
		ShadowSamples:      int32(s.ShadowSamples),
		ReflectionMode:     int32(s.ReflectionMode),
		SunSpread:          s.SunSpread + 1,

		TopSkyColor:         s.SkyColor.Vec4(),
		BottomSkyColor:      s.FloorColor.Vec4(),
		IndirectSkyStrength: s.IndirectSkyStrength,

		CullBackfaces: !s.ForceDoubleSided,
	}
	if b.Skybox != nil && s.UseSkybox {
		u.UseSkyBox = true
		u.EnvTexture = b.Skybox
	}
	return u
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
