//go:build !nogpu

// Package webgpu runs the ray tracer as a WGSL compute kernel through the
// wgpu hardware abstraction layer. The base pass stays on the host: the
// traced image is read back after every dispatch and blended onto a
// software color buffer, so the backend renders headless.
package webgpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"raytrace-engine/internal/gpu"
	"raytrace-engine/internal/software"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

const fenceTimeout = 5 * time.Second

// ErrForeignTarget is returned for targets this device did not allocate.
var ErrForeignTarget = errors.New("webgpu: target not allocated by this device")

// Target is a host image paired with the storage buffer the kernel writes
// and the staging buffer it is copied through on readback.
type Target struct {
	*software.Target
	dev     *Device
	out     hal.Buffer
	staging hal.Buffer
}

// Release frees both GPU buffers and the host pixels. Calling it twice is
// a no-op.
func (t *Target) Release() {
	if t.Released() {
		return
	}
	t.dev.destroyBuffer(&t.out)
	t.dev.destroyBuffer(&t.staging)
	t.Target.Release()
}

// Device implements raytracing.Device and renderer.Backend over wgpu/hal.
type Device struct {
	*gpu.Store

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	nodes, triangles, instances, params, env hal.Buffer

	sizes     map[*hal.Buffer]uint64
	envSource *scene.Texture
	packed    *raytracing.Packed

	pass   string
	bound  *raytracing.Build
	target *Target
	color  *software.ColorBuffer
}

// NewDevice opens the first hardware adapter, preferring a discrete or
// integrated GPU, and builds the tracer pipeline.
func NewDevice() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("webgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create instance: %w", err)
	}
	d := &Device{Store: gpu.NewStore(), instance: instance, sizes: make(map[*hal.Buffer]uint64)}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		d.Destroy()
		return nil, fmt.Errorf("webgpu: no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("webgpu: open device: %w", err)
	}
	d.device = open.Device
	d.queue = open.Queue
	d.adapter = selected.Info.Name

	if err := d.createPipeline(); err != nil {
		d.Destroy()
		return nil, err
	}
	d.packed = &raytracing.Packed{}
	if err := d.writeStorage(d.packed); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.writeEnv(nil); err != nil {
		d.Destroy()
		return nil, err
	}
	d.params, err = d.createBuffer("rt_params", gpu.BlockSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	raytracing.Logger().Info("webgpu device", "adapter", d.adapter)
	return d, nil
}

func (d *Device) createPipeline() error {
	code, err := compileTracer()
	if err != nil {
		return err
	}
	d.shader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "rt_tracer",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create shader module: %w", err)
	}

	storage := func(binding uint32, kind gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: kind},
		}
	}
	d.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rt_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			storage(bindOutput, gputypes.BufferBindingTypeStorage),
			storage(bindNodes, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(bindTriangles, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(bindInstances, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(bindParams, gputypes.BufferBindingTypeUniform),
			storage(bindEnv, gputypes.BufferBindingTypeReadOnlyStorage),
		},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create bind group layout: %w", err)
	}

	d.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rt_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create pipeline layout: %w", err)
	}

	d.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "rt_tracer",
		Layout:  d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create compute pipeline: %w", err)
	}
	return nil
}

const minBufSize = 16

func (d *Device) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	size = max(size, minBufSize)
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create buffer %s: %w", label, err)
	}
	return buf, nil
}

func (d *Device) destroyBuffer(buf *hal.Buffer) {
	if *buf != nil && d.device != nil {
		d.device.DestroyBuffer(*buf)
	}
	*buf = nil
	delete(d.sizes, buf)
}

// upload replaces *dst with a storage buffer holding data. Buffer sizes
// are fixed at creation, so every upload allocates.
func (d *Device) upload(dst *hal.Buffer, label string, data []byte) error {
	buf, err := d.createBuffer(label, uint64(len(data)),
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.destroyBuffer(dst)
	*dst = buf
	d.sizes[dst] = max(uint64(len(data)), minBufSize)
	d.queue.WriteBuffer(buf, 0, data)
	return nil
}

func (d *Device) writeStorage(p *raytracing.Packed) error {
	nodes, tris, insts := gpu.Buffers(p)
	if err := d.upload(&d.nodes, "rt_nodes", nodes); err != nil {
		return err
	}
	if err := d.upload(&d.triangles, "rt_triangles", tris); err != nil {
		return err
	}
	return d.upload(&d.instances, "rt_instances", insts)
}

// writeEnv uploads tex as the environment buffer; nil uploads an empty
// header.
func (d *Device) writeEnv(tex *scene.Texture) error {
	if err := d.upload(&d.env, "rt_env", envBytes(tex)); err != nil {
		return err
	}
	d.envSource = tex
	return nil
}

func (d *Device) Name() string { return "webgpu " + d.adapter }

// SupportsRayTracing is true once the pipeline is built.
func (d *Device) SupportsRayTracing() bool { return d.pipeline != nil }

func (d *Device) SetShaderPass(name string) { d.pass = name }

func (d *Device) SetGlobalKeyword(name string, enabled bool) {
	d.SetKeyword(name, enabled)
}

// AllocateTarget creates the host image and its two GPU buffers.
func (d *Device) AllocateTarget(name string, width, height int) (raytracing.RenderTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("webgpu: invalid target size %dx%d", width, height)
	}
	size := pixelBytes(width, height)
	out, err := d.createBuffer(name, size,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	if err != nil {
		return nil, err
	}
	staging, err := d.createBuffer(name+"_staging", size,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		d.destroyBuffer(&out)
		return nil, err
	}
	return &Target{
		Target:  software.NewTarget(name, width, height),
		dev:     d,
		out:     out,
		staging: staging,
	}, nil
}

// UploadAccelerationStructure packs b and replaces the storage buffers.
func (d *Device) UploadAccelerationStructure(b *raytracing.Build) error {
	p := raytracing.Pack(b)
	if err := d.writeStorage(p); err != nil {
		return err
	}
	d.packed = p
	raytracing.Logger().Debug("webgpu acceleration structure uploaded",
		"version", p.Version, "nodes", len(p.Nodes), "triangles", len(p.Triangles), "instances", len(p.Instances))
	return nil
}

// ReleaseAccelerationStructure shrinks the storage buffers back to the
// empty scene.
func (d *Device) ReleaseAccelerationStructure() {
	d.packed = &raytracing.Packed{}
	if err := d.writeStorage(d.packed); err != nil {
		raytracing.Logger().Warn("webgpu release acceleration structure", "err", err)
	}
	d.bound = nil
}

func (d *Device) BindAccelerationStructure(slot string, b *raytracing.Build) {
	d.bound = b
}

func (d *Device) BindRenderTarget(slot string, t raytracing.RenderTarget) {
	d.target, _ = t.(*Target)
}

// DispatchRays runs the kernel over target, waits on a fence and reads the
// pixels back into the host image.
func (d *Device) DispatchRays(rayGen string, t raytracing.RenderTarget, width, height, depth int) error {
	if d.pipeline == nil {
		return raytracing.ErrRayTracingUnsupported
	}
	if d.pass != raytracing.ShaderPassName {
		return fmt.Errorf("webgpu: unknown shader pass %q", d.pass)
	}
	if rayGen != raytracing.RayGenName {
		return fmt.Errorf("webgpu: unknown ray generation program %q", rayGen)
	}
	target, ok := t.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	if target.Released() {
		return fmt.Errorf("webgpu: dispatch into released target %q", target.Name())
	}
	if w, h := target.Size(); w != width || h != height || depth != 1 {
		return fmt.Errorf("webgpu: dispatch %dx%dx%d does not match target %dx%d", width, height, depth, w, h)
	}
	if d.bound != nil && d.bound.Version != d.packed.Version {
		return fmt.Errorf("webgpu: bound build %d was never uploaded", d.bound.Version)
	}

	if env := d.Environment(); env != d.envSource {
		if err := d.writeEnv(env); err != nil {
			return err
		}
	}
	block := d.Block(width, height).WithScene(d.packed)
	d.queue.WriteBuffer(d.params, 0, block.Bytes())

	size := pixelBytes(width, height)
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "rt_bind",
		Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(bindOutput, target.out, size),
			bufferEntry(bindNodes, d.nodes, d.sizes[&d.nodes]),
			bufferEntry(bindTriangles, d.triangles, d.sizes[&d.triangles]),
			bufferEntry(bindInstances, d.instances, d.sizes[&d.instances]),
			bufferEntry(bindParams, d.params, gpu.BlockSize),
			bufferEntry(bindEnv, d.env, d.sizes[&d.env]),
		},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	if err := d.submit(bg, target, width, height, size); err != nil {
		return err
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(target.staging, 0, readback); err != nil {
		return fmt.Errorf("webgpu: readback: %w", err)
	}
	if !target.Load(decodePixels(readback)) {
		return fmt.Errorf("webgpu: readback size mismatch for %q", target.Name())
	}
	return nil
}

func bufferEntry(binding uint32, buf hal.Buffer, size uint64) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: size},
	}
}

// submit records the compute pass and the copy into staging, then blocks
// until the GPU signals the fence.
func (d *Device) submit(bg hal.BindGroup, target *Target, width, height int, size uint64) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rt_encoder"})
	if err != nil {
		return fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("rt_dispatch"); err != nil {
		return fmt.Errorf("webgpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "rt_trace"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32(gpu.Groups(width, gpu.WorkgroupSize)), uint32(gpu.Groups(height, gpu.WorkgroupSize)), 1)
	pass.End()

	encoder.CopyBufferToBuffer(target.out, target.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("webgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("webgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return fmt.Errorf("webgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("webgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("webgpu: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// Composite blends src over dst, which must be the backend's
// *software.ColorBuffer.
func (d *Device) Composite(src raytracing.RenderTarget, dst raytracing.ColorTarget) error {
	t, ok := src.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	c, ok := dst.(*software.ColorBuffer)
	if !ok {
		return fmt.Errorf("webgpu: unsupported color target %T", dst)
	}
	if t.Released() {
		return fmt.Errorf("webgpu: composite from released target %q", t.Name())
	}
	software.Blend(t.Target, c)
	return nil
}

// Destroy releases every GPU object, the device and the instance.
func (d *Device) Destroy() {
	if d.target != nil {
		d.target.Release()
		d.target = nil
	}
	for _, buf := range []*hal.Buffer{&d.nodes, &d.triangles, &d.instances, &d.params, &d.env} {
		d.destroyBuffer(buf)
	}
	if d.device != nil {
		if d.pipeline != nil {
			d.device.DestroyComputePipeline(d.pipeline)
			d.pipeline = nil
		}
		if d.pipeLayout != nil {
			d.device.DestroyPipelineLayout(d.pipeLayout)
			d.pipeLayout = nil
		}
		if d.bindLayout != nil {
			d.device.DestroyBindGroupLayout(d.bindLayout)
			d.bindLayout = nil
		}
		if d.shader != nil {
			d.device.DestroyShaderModule(d.shader)
			d.shader = nil
		}
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.color = nil
	raytracing.Logger().Info("webgpu device destroyed")
}
