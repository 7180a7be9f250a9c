//go:build nogpu

package main

import (
	"errors"

	"raytrace-engine/renderer"
)

func newWebGPUBackend() (renderer.Backend, error) {
	return nil, errors.New("webgpu backend excluded by the nogpu build tag")
}
