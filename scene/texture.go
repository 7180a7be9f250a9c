package scene

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Texture holds CPU-side pixel data for a 2D texture.
// GLID is set by the OpenGL backend after upload; do not access directly.
type Texture struct {
	Name   string
	Width  int
	Height int
	// Pixels in RGBA8 format (4 bytes per pixel, row-major, top-to-bottom).
	Pixels []byte
	// GLID is the OpenGL texture object ID, set by opengl.UploadTexture.
	GLID uint32
}

// LoadTexture reads a PNG, JPEG, BMP or TIFF file and converts it to RGBA8.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode texture %q: %w", path, err)
	}
	return NewTextureFromImage(path, img), nil
}

// NewTextureFromImage copies any image into an RGBA8 texture.
func NewTextureFromImage(name string, img image.Image) *Texture {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &Texture{
		Name:   name,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: rgba.Pix,
	}
}

// NewSolidTexture creates a 1x1 texture with the given RGBA color values (0–255).
func NewSolidTexture(name string, r, g, b, a uint8) *Texture {
	return &Texture{
		Name:   name,
		Width:  1,
		Height: 1,
		Pixels: []byte{r, g, b, a},
	}
}

// SampleEquirect returns the linear [0,1] colour of an equirectangular
// environment map in direction (u, v), both in [0,1).
func (t *Texture) SampleEquirect(u, v float32) (r, g, b float32) {
	if t == nil || t.Width == 0 || t.Height == 0 {
		return 0, 0, 0
	}
	x := int(u*float32(t.Width)) % t.Width
	y := int(v*float32(t.Height)) % t.Height
	if x < 0 {
		x += t.Width
	}
	if y < 0 {
		y += t.Height
	}
	i := (y*t.Width + x) * 4
	return float32(t.Pixels[i]) / 255, float32(t.Pixels[i+1]) / 255, float32(t.Pixels[i+2]) / 255
}

// SampleAlpha returns the [0,1] alpha at wrapped UV coordinates.
func (t *Texture) SampleAlpha(u, v float32) float32 {
	if t == nil || t.Width == 0 || t.Height == 0 {
		return 1
	}
	x := int(u*float32(t.Width)) % t.Width
	y := int(v*float32(t.Height)) % t.Height
	if x < 0 {
		x += t.Width
	}
	if y < 0 {
		y += t.Height
	}
	return float32(t.Pixels[(y*t.Width+x)*4+3]) / 255
}
