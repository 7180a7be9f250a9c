// Package opengl is the OpenGL 4.3 backend: a raster base pass into an HDR
// framebuffer and a compute-shader ray tracer over the packed acceleration
// structure. Every call must come from the goroutine that owns the GL
// context.
package opengl

import (
	"errors"
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"

	"raytrace-engine/internal/gpu"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// ErrForeignTarget is returned for targets this device did not allocate.
var ErrForeignTarget = errors.New("opengl: target not allocated by this device")

// Target is an RGBA16F texture the tracer writes with imageStore.
type Target struct {
	name   string
	width  int
	height int
	tex    uint32
}

func (t *Target) Name() string     { return t.name }
func (t *Target) Size() (int, int) { return t.width, t.height }
func (t *Target) Texture() uint32  { return t.tex }
func (t *Target) released() bool   { return t.tex == 0 }

// Release deletes the texture. Calling it twice is a no-op.
func (t *Target) Release() {
	if t.tex != 0 {
		gl.DeleteTextures(1, &t.tex)
		t.tex = 0
	}
}

// Device implements raytracing.Device and renderer.Backend on OpenGL.
type Device struct {
	*gpu.Store

	version string
	compute bool // context is 4.3+

	tracer    uint32
	composite uint32
	rayTexLoc int32

	// Storage buffers for the packed build and the parameter block.
	nodes, triangles, instances, params uint32
	packed                              *raytracing.Packed

	pass   string
	bound  *raytracing.Build
	target *Target
	env    *scene.Texture

	raster
}

// NewDevice loads GL entry points and compiles every program. It must be
// called after the window's context is made current.
func NewDevice() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	d := &Device{
		Store:   gpu.NewStore(),
		version: gl.GoStr(gl.GetString(gl.VERSION)),
	}
	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	d.compute = major > 4 || (major == 4 && minor >= 3)
	raytracing.Logger().Info("opengl device", "version", d.version, "compute", d.compute)

	if err := d.raster.init(); err != nil {
		return nil, err
	}
	if !d.compute {
		return d, nil
	}

	prog, err := newComputeProgram(tracerSrc)
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("tracer shader: %w", err)
	}
	d.tracer = prog

	comp, err := newProgram(ppVertSrc, compositeFragSrc)
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("composite shader: %w", err)
	}
	d.composite = comp
	d.rayTexLoc = gl.GetUniformLocation(comp, gl.Str("rayTex\x00"))

	gl.GenBuffers(1, &d.nodes)
	gl.GenBuffers(1, &d.triangles)
	gl.GenBuffers(1, &d.instances)
	gl.GenBuffers(1, &d.params)
	d.packed = &raytracing.Packed{}
	d.writeStorage(d.packed)
	return d, nil
}

func (d *Device) Name() string { return "opengl " + d.version }

// SupportsRayTracing reports whether the context has compute shaders.
func (d *Device) SupportsRayTracing() bool { return d.compute }

func (d *Device) SetShaderPass(name string) { d.pass = name }

func (d *Device) SetGlobalKeyword(name string, enabled bool) {
	d.SetKeyword(name, enabled)
}

func (d *Device) AllocateTarget(name string, width, height int) (raytracing.RenderTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("opengl: invalid target size %dx%d", width, height)
	}
	t := &Target{name: name, width: width, height: height}
	gl.GenTextures(1, &t.tex)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.TexStorage2D(gl.TEXTURE_2D, 1, gl.RGBA16F, int32(width), int32(height))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, nil
}

// UploadAccelerationStructure packs b and replaces the storage buffers.
func (d *Device) UploadAccelerationStructure(b *raytracing.Build) error {
	if !d.compute {
		return raytracing.ErrRayTracingUnsupported
	}
	p := raytracing.Pack(b)
	d.writeStorage(p)
	d.packed = p
	raytracing.Logger().Debug("opengl acceleration structure uploaded",
		"version", p.Version, "nodes", len(p.Nodes), "triangles", len(p.Triangles), "instances", len(p.Instances))
	return nil
}

func (d *Device) writeStorage(p *raytracing.Packed) {
	nodes, tris, insts := gpu.Buffers(p)
	upload := func(buf uint32, data []byte) {
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(data), gl.Ptr(data), gl.STATIC_DRAW)
	}
	upload(d.nodes, nodes)
	upload(d.triangles, tris)
	upload(d.instances, insts)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
}

// ReleaseAccelerationStructure shrinks the storage buffers back to the
// empty scene.
func (d *Device) ReleaseAccelerationStructure() {
	if !d.compute {
		return
	}
	d.packed = &raytracing.Packed{}
	d.writeStorage(d.packed)
	d.bound = nil
}

func (d *Device) BindAccelerationStructure(slot string, b *raytracing.Build) {
	d.bound = b
}

func (d *Device) BindRenderTarget(slot string, t raytracing.RenderTarget) {
	d.target, _ = t.(*Target)
}

// DispatchRays runs the tracer over target and waits for the image writes
// to be visible to texture fetches.
func (d *Device) DispatchRays(rayGen string, t raytracing.RenderTarget, width, height, depth int) error {
	if !d.compute {
		return raytracing.ErrRayTracingUnsupported
	}
	if d.pass != raytracing.ShaderPassName {
		return fmt.Errorf("opengl: unknown shader pass %q", d.pass)
	}
	if rayGen != raytracing.RayGenName {
		return fmt.Errorf("opengl: unknown ray generation program %q", rayGen)
	}
	target, ok := t.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	if target.released() {
		return fmt.Errorf("opengl: dispatch into released target %q", target.name)
	}
	if target.width != width || target.height != height || depth != 1 {
		return fmt.Errorf("opengl: dispatch %dx%dx%d does not match target %dx%d", width, height, depth, target.width, target.height)
	}
	if d.bound != nil && d.bound.Version != d.packed.Version {
		return fmt.Errorf("opengl: bound build %d was never uploaded", d.bound.Version)
	}

	block := d.Block(width, height).WithScene(d.packed)
	data := block.Bytes()
	gl.BindBuffer(gl.UNIFORM_BUFFER, d.params)
	gl.BufferData(gl.UNIFORM_BUFFER, len(data), gl.Ptr(data), gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

	if env := d.Environment(); env != nil {
		if env.GLID == 0 {
			if err := UploadTexture(env); err != nil {
				return fmt.Errorf("opengl: environment: %w", err)
			}
		}
		d.env = env
		gl.ActiveTexture(gl.TEXTURE0 + unitEnv)
		gl.BindTexture(gl.TEXTURE_2D, env.GLID)
	}

	gl.UseProgram(d.tracer)
	gl.BindImageTexture(bindOutput, target.tex, 0, false, 0, gl.WRITE_ONLY, gl.RGBA16F)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindNodes, d.nodes)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindTriangles, d.triangles)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindInstances, d.instances)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, bindParams, d.params)

	gl.DispatchCompute(uint32(gpu.Groups(width, gpu.WorkgroupSize)), uint32(gpu.Groups(height, gpu.WorkgroupSize)), 1)
	gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT | gl.TEXTURE_FETCH_BARRIER_BIT)
	return nil
}

// Composite draws src over the HDR buffer with alpha blending. The
// linear filter resamples a target rendered at a different scale.
func (d *Device) Composite(src raytracing.RenderTarget, dst raytracing.ColorTarget) error {
	t, ok := src.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	hdr, ok := dst.(*HDRBuffer)
	if !ok {
		return fmt.Errorf("opengl: composite into %T", dst)
	}
	if t.released() {
		return fmt.Errorf("opengl: composite from released target %q", t.name)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, hdr.FBO)
	gl.Viewport(0, 0, hdr.Width, hdr.Height)
	gl.Disable(gl.DEPTH_TEST)
	gl.Enable(gl.BLEND)
	gl.BlendFuncSeparate(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA, gl.ZERO, gl.ONE)

	gl.UseProgram(d.composite)
	gl.Uniform1i(d.rayTexLoc, 0)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.BindVertexArray(hdr.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)

	gl.Disable(gl.BLEND)
	gl.Enable(gl.DEPTH_TEST)
	return nil
}

// Destroy releases every GL object the device owns.
func (d *Device) Destroy() {
	for _, buf := range []*uint32{&d.nodes, &d.triangles, &d.instances, &d.params} {
		if *buf != 0 {
			gl.DeleteBuffers(1, buf)
			*buf = 0
		}
	}
	if d.tracer != 0 {
		gl.DeleteProgram(d.tracer)
		d.tracer = 0
	}
	if d.composite != 0 {
		gl.DeleteProgram(d.composite)
		d.composite = 0
	}
	if d.target != nil {
		d.target.Release()
		d.target = nil
	}
	DeleteTexture(d.env)
	d.raster.destroy()
	raytracing.Logger().Info("opengl device destroyed")
}
