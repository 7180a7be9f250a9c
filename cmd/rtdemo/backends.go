package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"raytrace-engine/internal/software"
	"raytrace-engine/renderer"
)

const (
	backendSoftware = "software"
	backendOpenGL   = "opengl"
	backendWebGPU   = "webgpu"
)

// parseBackend normalizes a -backend value. "wgpu" is accepted for
// webgpu.
func parseBackend(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case backendSoftware, "cpu":
		return backendSoftware, nil
	case backendOpenGL, "gl":
		return backendOpenGL, nil
	case backendWebGPU, "wgpu":
		return backendWebGPU, nil
	}
	return "", fmt.Errorf("unknown backend %q", name)
}

// colorSource is implemented by backends whose color target lives in host
// memory.
type colorSource interface {
	Color() *software.ColorBuffer
}

func newHeadlessBackend(kind string) (renderer.Backend, error) {
	switch kind {
	case backendSoftware:
		return software.NewDevice(), nil
	case backendWebGPU:
		return newWebGPUBackend()
	}
	return nil, fmt.Errorf("backend %q needs a window", kind)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// flipRows turns bottom-up RGBA8 rows, as glReadPixels returns them, into
// a top-down image.
func flipRows(pix []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := width * 4
	for y := 0; y < height; y++ {
		src := pix[(height-1-y)*stride : (height-y)*stride]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}
