package raytracing

import (
	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// Names shared by the pass and every tracer kernel.
const (
	ShaderPassName     = "MyRaytracingPass"
	RayGenName         = "Raytracer"
	AccelerationSlot   = "_RaytracingAccelerationStructure"
	OutputTargetName   = "_RaytraceTexture"
	RayTracingKeyword  = "RAYTRACING_ON"
	DoubleSidedKeyword = "DOUBLESIDED"
	TransparentKeyword = "USE_ALPHA"
	dispatchDepth      = 1
)

// UniformSink receives named shader parameters.
type UniformSink interface {
	SetInt(name string, v int32)
	SetFloat(name string, v float32)
	SetVector(name string, v math.Vec4)
	SetMatrix(name string, m math.Mat4)
	SetTexture(name string, tex *scene.Texture)
}

// RenderTarget is a GPU-writable image owned by a device.
type RenderTarget interface {
	Name() string
	Size() (width, height int)
	Release()
}

// ColorTarget is the host's rasterized color buffer the ray result is
// blended onto.
type ColorTarget interface {
	Size() (width, height int)
}

// Device is the dispatch surface a backend provides. Calls arrive from one
// goroutine in frame order; implementations need not be safe for
// concurrent use.
type Device interface {
	UniformSink

	// Name identifies the backend in logs.
	Name() string
	SupportsRayTracing() bool

	// AllocateTarget creates a writable image of the given size.
	AllocateTarget(name string, width, height int) (RenderTarget, error)

	// UploadAccelerationStructure receives every committed build.
	UploadAccelerationStructure(build *Build) error
	ReleaseAccelerationStructure()

	SetShaderPass(name string)
	BindAccelerationStructure(slot string, build *Build)
	BindRenderTarget(slot string, target RenderTarget)
	SetGlobalKeyword(name string, enabled bool)

	// DispatchRays launches width*height*depth invocations of rayGen and
	// returns once the writes to target are visible.
	DispatchRays(rayGen string, target RenderTarget, width, height, depth int) error

	// Composite alpha-blends src over dst, resampling if sizes differ.
	Composite(src RenderTarget, dst ColorTarget) error
}
