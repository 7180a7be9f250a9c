//go:build !nogpu

package webgpu

import (
	"raytrace-engine/internal/software"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// The base pass runs on the host like the software backend's: a gradient
// background, with geometry left to the kernel.

func (d *Device) BeginCamera(s *scene.Scene, cam *scene.Camera) (raytracing.ColorTarget, error) {
	w, h := cam.PixelWidth, cam.PixelHeight
	if d.color == nil {
		d.color = software.NewColorBuffer(w, h)
	} else if cw, ch := d.color.Size(); cw != w || ch != h {
		d.color = software.NewColorBuffer(w, h)
	}
	return d.color, nil
}

func (d *Device) DrawOpaques(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	return nil
}

func (d *Device) DrawSkybox(s *scene.Scene, cam *scene.Camera) error {
	if d.color != nil {
		d.color.Fill(s.SkyColor.Vec4(), s.GroundColor.Vec4())
	}
	return nil
}

func (d *Device) DrawTransparents(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	return nil
}

func (d *Device) EndCamera(cam *scene.Camera) error {
	return nil
}

// Color returns the last camera's color buffer.
func (d *Device) Color() *software.ColorBuffer {
	return d.color
}
