package raytracing

import (
	"errors"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// fakeTarget is a RenderTarget that only records its size.
type fakeTarget struct {
	name     string
	w, h     int
	released bool
}

func (t *fakeTarget) Name() string     { return t.name }
func (t *fakeTarget) Size() (int, int) { return t.w, t.h }
func (t *fakeTarget) Release()         { t.released = true }

type fakeColor struct{ w, h int }

func (c fakeColor) Size() (int, int) { return c.w, c.h }

type dispatchCall struct {
	rayGen  string
	w, h, d int
}

// fakeDevice records every call the pass makes.
type fakeDevice struct {
	unsupported bool
	allocErr    error

	ints     map[string]int32
	floats   map[string]float32
	vectors  map[string]math.Vec4
	matrices map[string]math.Mat4
	textures map[string]*scene.Texture
	keywords map[string]bool

	shaderPass  string
	boundSlot   string
	boundBuild  *Build
	boundTarget RenderTarget

	uploads     []*Build
	releases    int
	allocations []*fakeTarget
	dispatches  []dispatchCall
	composites  int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		ints:     map[string]int32{},
		floats:   map[string]float32{},
		vectors:  map[string]math.Vec4{},
		matrices: map[string]math.Mat4{},
		textures: map[string]*scene.Texture{},
		keywords: map[string]bool{},
	}
}

func (d *fakeDevice) Name() string                          { return "fake" }
func (d *fakeDevice) SetShaderPass(n string)                { d.shaderPass = n }
func (d *fakeDevice) SetInt(n string, v int32)              { d.ints[n] = v }
func (d *fakeDevice) SetFloat(n string, v float32)          { d.floats[n] = v }
func (d *fakeDevice) SetVector(n string, v math.Vec4)       { d.vectors[n] = v }
func (d *fakeDevice) SetMatrix(n string, m math.Mat4)       { d.matrices[n] = m }
func (d *fakeDevice) SetTexture(n string, t *scene.Texture) { d.textures[n] = t }
func (d *fakeDevice) SupportsRayTracing() bool              { return !d.unsupported }
func (d *fakeDevice) SetGlobalKeyword(n string, on bool)    { d.keywords[n] = on }

func (d *fakeDevice) AllocateTarget(name string, w, h int) (RenderTarget, error) {
	if d.allocErr != nil {
		return nil, d.allocErr
	}
	t := &fakeTarget{name: name, w: w, h: h}
	d.allocations = append(d.allocations, t)
	return t, nil
}

func (d *fakeDevice) UploadAccelerationStructure(b *Build) error {
	d.uploads = append(d.uploads, b)
	return nil
}

func (d *fakeDevice) ReleaseAccelerationStructure() { d.releases++ }

func (d *fakeDevice) BindAccelerationStructure(slot string, b *Build) {
	d.boundSlot = slot
	d.boundBuild = b
}

func (d *fakeDevice) BindRenderTarget(slot string, t RenderTarget) { d.boundTarget = t }

func (d *fakeDevice) DispatchRays(rayGen string, t RenderTarget, w, h, depth int) error {
	if t == nil {
		return errors.New("nil target")
	}
	d.dispatches = append(d.dispatches, dispatchCall{rayGen, w, h, depth})
	return nil
}

func (d *fakeDevice) Composite(src RenderTarget, dst ColorTarget) error {
	d.composites++
	return nil
}
