// Package software is a CPU reference implementation of raytracing.Device.
// It runs the tracer kernel on a pool of goroutines over screen tiles and
// is used for headless renders and end-to-end tests.
package software

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"raytrace-engine/internal/gpu"
	"raytrace-engine/raytracing"
)

// ErrForeignTarget is returned when a target allocated by another device is
// dispatched or composited.
var ErrForeignTarget = errors.New("software: target not allocated by this device")

// Stats counts device calls.
type Stats struct {
	Uploads     int
	Releases    int
	Allocations int
	Dispatches  int
	Composites  int
	Rays        int64
}

// Device is a CPU raytracing.Device. Parameter calls arrive on the render
// goroutine; DispatchRays fans out internally and returns when every tile
// is written.
type Device struct {
	// Workers bounds the goroutines used per dispatch. Zero uses NumCPU.
	Workers int
	// TileSize is the square tile edge in pixels. Zero uses 32.
	TileSize int

	*gpu.Store

	pass     string
	uploaded *raytracing.Build
	bound    *raytracing.Build
	target   *Target
	color    *ColorBuffer

	stats Stats
}

func NewDevice() *Device {
	return &Device{Store: gpu.NewStore()}
}

func (d *Device) Name() string { return "software" }

// SupportsRayTracing is always true on the CPU.
func (d *Device) SupportsRayTracing() bool { return true }

func (d *Device) SetShaderPass(name string) { d.pass = name }

func (d *Device) SetGlobalKeyword(name string, enabled bool) {
	d.SetKeyword(name, enabled)
}

func (d *Device) AllocateTarget(name string, width, height int) (raytracing.RenderTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("software: invalid target size %dx%d", width, height)
	}
	d.stats.Allocations++
	return NewTarget(name, width, height), nil
}

// UploadAccelerationStructure keeps a reference; builds are immutable once
// committed.
func (d *Device) UploadAccelerationStructure(b *raytracing.Build) error {
	d.uploaded = b
	d.stats.Uploads++
	return nil
}

func (d *Device) ReleaseAccelerationStructure() {
	d.uploaded = nil
	d.bound = nil
	d.stats.Releases++
	raytracing.Logger().Debug("software acceleration structure released")
}

func (d *Device) BindAccelerationStructure(slot string, b *raytracing.Build) {
	d.bound = b
}

func (d *Device) BindRenderTarget(slot string, t raytracing.RenderTarget) {
	d.target, _ = t.(*Target)
}

// DispatchRays runs the ray-generation kernel once per pixel of target.
func (d *Device) DispatchRays(rayGen string, t raytracing.RenderTarget, width, height, depth int) error {
	if d.pass != raytracing.ShaderPassName {
		return fmt.Errorf("software: unknown shader pass %q", d.pass)
	}
	if rayGen != raytracing.RayGenName {
		return fmt.Errorf("software: unknown ray generation program %q", rayGen)
	}
	target, ok := t.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	if target.released {
		return fmt.Errorf("software: dispatch into released target %q", target.name)
	}
	if w, h := target.Size(); w != width || h != height || depth != 1 {
		return fmt.Errorf("software: dispatch %dx%dx%d does not match target %dx%d", width, height, depth, w, h)
	}

	k := d.kernel()
	rays := d.run(target, k)
	d.stats.Dispatches++
	d.stats.Rays += rays
	return nil
}

// Composite blends src over dst. dst must be a *ColorBuffer.
func (d *Device) Composite(src raytracing.RenderTarget, dst raytracing.ColorTarget) error {
	s, ok := src.(*Target)
	if !ok {
		return ErrForeignTarget
	}
	c, ok := dst.(*ColorBuffer)
	if !ok {
		return fmt.Errorf("software: unsupported color target %T", dst)
	}
	Blend(s, c)
	d.stats.Composites++
	return nil
}

// Stats returns the call counters.
func (d *Device) Stats() Stats { return d.stats }

// Uploaded returns the last committed build.
func (d *Device) Uploaded() *raytracing.Build { return d.uploaded }

type tile struct {
	x0, y0, x1, y1 int
}

// run splits the target into tiles and shades them on a worker pool.
func (d *Device) run(target *Target, k *kernel) int64 {
	size := d.TileSize
	if size <= 0 {
		size = 32
	}
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	nx := (target.width + size - 1) / size
	ny := (target.height + size - 1) / size
	tiles := make(chan tile, nx*ny)
	for y := 0; y < target.height; y += size {
		for x := 0; x < target.width; x += size {
			tiles <- tile{x0: x, y0: y, x1: min(x+size, target.width), y1: min(y+size, target.height)}
		}
	}
	close(tiles)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var rays int64
			for t := range tiles {
				for y := t.y0; y < t.y1; y++ {
					for x := t.x0; x < t.x1; x++ {
						c, n := k.pixel(x, y, target.width, target.height)
						target.set(x, y, c)
						rays += n
					}
				}
			}
			mu.Lock()
			total += rays
			mu.Unlock()
		}()
	}
	wg.Wait()
	return total
}
