//go:build !nogpu

package main

import (
	"raytrace-engine/internal/webgpu"
	"raytrace-engine/renderer"
)

func newWebGPUBackend() (renderer.Backend, error) {
	dev, err := webgpu.NewDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
