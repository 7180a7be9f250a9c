package software

import (
	"image"
	"image/color"
	stdmath "math"

	"golang.org/x/image/draw"

	"raytrace-engine/math"
)

// Target is a float RGBA image, the CPU stand-in for an RGBA16F storage
// texture. Alpha is ray coverage: 0 where primary rays missed.
type Target struct {
	name     string
	width    int
	height   int
	pix      []float32
	released bool
}

// NewTarget allocates a zeroed width x height target.
func NewTarget(name string, width, height int) *Target {
	return &Target{
		name:   name,
		width:  width,
		height: height,
		pix:    make([]float32, width*height*4),
	}
}

func (t *Target) Name() string { return t.name }

func (t *Target) Size() (int, int) { return t.width, t.height }

// Release drops the pixel storage.
func (t *Target) Release() {
	t.released = true
	t.pix = nil
}

// Released reports whether Release was called.
func (t *Target) Released() bool { return t.released }

// At returns the stored linear color at (x, y).
func (t *Target) At(x, y int) math.Vec4 {
	i := (y*t.width + x) * 4
	return math.Vec4{X: t.pix[i], Y: t.pix[i+1], Z: t.pix[i+2], W: t.pix[i+3]}
}

// Load replaces the pixels with pix, four floats per pixel in row order.
// It reports false when pix has the wrong length.
func (t *Target) Load(pix []float32) bool {
	if len(pix) != len(t.pix) {
		return false
	}
	copy(t.pix, pix)
	return true
}

func (t *Target) set(x, y int, c math.Vec4) {
	i := (y*t.width + x) * 4
	t.pix[i] = c.X
	t.pix[i+1] = c.Y
	t.pix[i+2] = c.Z
	t.pix[i+3] = c.W
}

// Image tone-maps the target into a non-premultiplied 16-bit image.
func (t *Target) Image() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, t.width, t.height))
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			c := t.At(x, y)
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: encode(c.X),
				G: encode(c.Y),
				B: encode(c.Z),
				A: quantize(c.W),
			})
		}
	}
	return img
}

// encode applies Reinhard and a 2.2 gamma.
func encode(v float32) uint16 {
	if v <= 0 || v != v {
		return 0
	}
	v = v / (1 + v)
	return quantize(float32(stdmath.Pow(float64(v), 1/2.2)))
}

func quantize(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v*0xffff + 0.5)
}

// ColorBuffer is the host's 8-bit color target.
type ColorBuffer struct {
	Image *image.RGBA
}

func NewColorBuffer(width, height int) *ColorBuffer {
	return &ColorBuffer{Image: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *ColorBuffer) Size() (int, int) {
	b := c.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Fill paints a vertical gradient from top to bottom, the software
// stand-in for the raster base pass.
func (c *ColorBuffer) Fill(top, bottom math.Vec4) {
	b := c.Image.Bounds()
	h := b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		f := float32(0)
		if h > 1 {
			f = float32(y-b.Min.Y) / float32(h-1)
		}
		col := color.RGBA{
			R: byteOf(top.X + (bottom.X-top.X)*f),
			G: byteOf(top.Y + (bottom.Y-top.Y)*f),
			B: byteOf(top.Z + (bottom.Z-top.Z)*f),
			A: 255,
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			c.Image.SetRGBA(x, y, col)
		}
	}
}

func byteOf(v float32) uint8 {
	return uint8(quantize(v) >> 8)
}

// Blend composites src over dst, scaling bilinearly when the ray target
// was rendered at a different resolution.
func Blend(src *Target, dst *ColorBuffer) {
	img := src.Image()
	if img.Bounds().Size() == dst.Image.Bounds().Size() {
		draw.Draw(dst.Image, dst.Image.Bounds(), img, image.Point{}, draw.Over)
		return
	}
	draw.BiLinear.Scale(dst.Image, dst.Image.Bounds(), img, img.Bounds(), draw.Over, nil)
}
