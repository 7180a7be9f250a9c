package raytracing

import "fmt"

// DispatchStage renders one camera: it sizes the output target, binds the
// structure and uniforms, dispatches one invocation per pixel and blends
// the result over the color target.
type DispatchStage struct {
	dev    Device
	output *OutputTarget

	dispatches int
}

func NewDispatchStage(dev Device) *DispatchStage {
	return &DispatchStage{
		dev:    dev,
		output: NewOutputTarget(dev, OutputTargetName),
	}
}

// Render runs the stage for a width x height camera. A zero-area size is a
// no-op.
func (d *DispatchStage) Render(width, height int, build *Build, uniforms *FrameUniforms, color ColorTarget) error {
	if width <= 0 || height <= 0 {
		Logger().Debug("dispatch skipped: zero-area camera", "width", width, "height", height)
		return nil
	}
	target, err := d.output.Ensure(width, height)
	if err != nil {
		return err
	}

	d.dev.SetShaderPass(ShaderPassName)
	d.dev.BindAccelerationStructure(AccelerationSlot, build)
	uniforms.Apply(d.dev)
	d.dev.BindRenderTarget(UniformRenderTarget, target)

	if err := d.dev.DispatchRays(RayGenName, target, width, height, dispatchDepth); err != nil {
		return fmt.Errorf("dispatch %dx%d: %w", width, height, err)
	}
	d.dispatches++

	if err := d.dev.Composite(target, color); err != nil {
		return fmt.Errorf("composite: %w", err)
	}
	return nil
}

// Dispatches counts successful dispatches.
func (d *DispatchStage) Dispatches() int {
	return d.dispatches
}

// Output exposes the owned target.
func (d *DispatchStage) Output() *OutputTarget {
	return d.output
}

// Release frees the output target.
func (d *DispatchStage) Release() {
	d.output.Release()
}
