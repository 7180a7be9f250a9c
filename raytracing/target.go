package raytracing

import "fmt"

// OutputTarget lazily owns the ray output image. It reallocates only when
// the requested size changes.
type OutputTarget struct {
	Name string

	dev         Device
	target      RenderTarget
	allocations int
}

func NewOutputTarget(dev Device, name string) *OutputTarget {
	return &OutputTarget{Name: name, dev: dev}
}

// Ensure returns a target of exactly width x height, allocating on first
// use or after a resize.
func (o *OutputTarget) Ensure(width, height int) (RenderTarget, error) {
	if o.target != nil {
		w, h := o.target.Size()
		if w == width && h == height {
			return o.target, nil
		}
		o.target.Release()
		o.target = nil
		Logger().Debug("output target resized", "name", o.Name, "from", fmt.Sprintf("%dx%d", w, h),
			"to", fmt.Sprintf("%dx%d", width, height))
	}
	t, err := o.dev.AllocateTarget(o.Name, width, height)
	if err != nil {
		return nil, fmt.Errorf("allocate %s %dx%d: %w", o.Name, width, height, err)
	}
	o.target = t
	o.allocations++
	return t, nil
}

// Target returns the current image, or nil.
func (o *OutputTarget) Target() RenderTarget {
	return o.target
}

// Allocations counts device allocations made so far.
func (o *OutputTarget) Allocations() int {
	return o.allocations
}

// Release frees the image. Safe to call repeatedly.
func (o *OutputTarget) Release() {
	if o.target == nil {
		return
	}
	o.target.Release()
	o.target = nil
}
