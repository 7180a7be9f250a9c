package webgpu

import (
	"encoding/binary"
	"math"

	"raytrace-engine/scene"
)

// pixelBytes is the size of a width x height vec4<f32> buffer.
func pixelBytes(width, height int) uint64 {
	return uint64(width) * uint64(height) * 16
}

// decodePixels turns little-endian float32 readback into RGBA floats.
func decodePixels(b []byte) []float32 {
	pix := make([]float32, len(b)/4)
	for i := range pix {
		pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return pix
}

// envBytes lays tex out for the kernel's env buffer: width and height as
// u32, then the RGBA8 pixels, each read back as one packed word. A nil or
// empty texture yields a zero header, which the kernel treats as no map.
func envBytes(tex *scene.Texture) []byte {
	header := make([]byte, envHeaderWords*4)
	if tex == nil || tex.Width <= 0 || tex.Height <= 0 || len(tex.Pixels) < tex.Width*tex.Height*4 {
		return header
	}
	binary.LittleEndian.PutUint32(header[0:], uint32(tex.Width))
	binary.LittleEndian.PutUint32(header[4:], uint32(tex.Height))
	return append(header, tex.Pixels[:tex.Width*tex.Height*4]...)
}
