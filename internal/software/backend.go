package software

import (
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// The methods below make Device a complete renderer backend. The CPU has
// no rasterizer: the base pass paints the background gradient and leaves
// geometry to the tracer.

// BeginCamera returns the color buffer for cam, reallocating it when the
// camera's pixel size changes.
func (d *Device) BeginCamera(s *scene.Scene, cam *scene.Camera) (raytracing.ColorTarget, error) {
	w, h := cam.PixelWidth, cam.PixelHeight
	if d.color == nil {
		d.color = NewColorBuffer(w, h)
	} else if cw, ch := d.color.Size(); cw != w || ch != h {
		d.color = NewColorBuffer(w, h)
	}
	return d.color, nil
}

func (d *Device) DrawOpaques(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	return nil
}

func (d *Device) DrawSkybox(s *scene.Scene, cam *scene.Camera) error {
	if d.color == nil {
		return nil
	}
	d.color.Fill(s.SkyColor.Vec4(), s.GroundColor.Vec4())
	return nil
}

func (d *Device) DrawTransparents(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	return nil
}

func (d *Device) EndCamera(cam *scene.Camera) error {
	return nil
}

// Color returns the last camera's color buffer.
func (d *Device) Color() *ColorBuffer {
	return d.color
}

// Destroy drops the color buffer and any retained build.
func (d *Device) Destroy() {
	d.color = nil
	d.uploaded = nil
	d.bound = nil
	raytracing.Logger().Info("software device destroyed", "dispatches", d.stats.Dispatches, "rays", d.stats.Rays)
}
