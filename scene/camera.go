package scene

import (
	"math"

	reMath "raytrace-engine/math"
)

// Camera represents a view camera. FOV is the vertical field of view in radians.
type Camera struct {
	Name        string
	Position    reMath.Vec3
	Rotation    reMath.Quaternion
	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	// PixelWidth and PixelHeight are the logical target size in pixels.
	PixelWidth  int
	PixelHeight int
	// RenderScale scales the logical size into the size actually rendered.
	RenderScale float32
	// PostProcessing gates every post-opaque effect, the ray-tracing pass included.
	PostProcessing bool

	// Cached matrices
	viewMatrix       reMath.Mat4
	projectionMatrix reMath.Mat4
	dirty            bool
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Name:           "Main Camera",
		Position:       reMath.Vec3Zero,
		Rotation:       reMath.QuaternionIdentity(),
		FOV:            fov,
		AspectRatio:    aspectRatio,
		NearPlane:      nearPlane,
		FarPlane:       farPlane,
		RenderScale:    1,
		PostProcessing: true,
		dirty:          true,
	}
}

// SetPixelSize records the logical target size and updates the aspect ratio.
func (c *Camera) SetPixelSize(width, height int) {
	c.PixelWidth = width
	c.PixelHeight = height
	if height > 0 {
		c.AspectRatio = float32(width) / float32(height)
	}
	c.dirty = true
}

// ScaledPixelWidth is the render width after RenderScale is applied.
func (c *Camera) ScaledPixelWidth() int {
	return scalePixels(c.PixelWidth, c.RenderScale)
}

// ScaledPixelHeight is the render height after RenderScale is applied.
func (c *Camera) ScaledPixelHeight() int {
	return scalePixels(c.PixelHeight, c.RenderScale)
}

func scalePixels(n int, scale float32) int {
	if n <= 0 {
		return 0
	}
	if scale <= 0 {
		scale = 1
	}
	s := int(math.Round(float64(n) * float64(scale)))
	if s < 1 {
		s = 1
	}
	return s
}

// FOVDegrees returns the vertical field of view in degrees.
func (c *Camera) FOVDegrees() float32 {
	return c.FOV * 180 / math.Pi
}

func (c *Camera) SetPosition(pos reMath.Vec3) {
	c.Position = pos
	c.dirty = true
}

func (c *Camera) SetRotation(rot reMath.Quaternion) {
	c.Rotation = rot
	c.dirty = true
}

func (c *Camera) LookAt(target, up reMath.Vec3) {
	c.Rotation = reMath.QuaternionLookRotation(target.Sub(c.Position), up)
	c.dirty = true
}

func (c *Camera) GetForward() reMath.Vec3 {
	return c.Rotation.RotateVector(reMath.Vec3Back)
}

func (c *Camera) GetRight() reMath.Vec3 {
	return c.Rotation.RotateVector(reMath.Vec3Right)
}

func (c *Camera) GetUp() reMath.Vec3 {
	return c.Rotation.RotateVector(reMath.Vec3Up)
}

// CameraToWorld maps camera space (looking down -Z) into world space.
func (c *Camera) CameraToWorld() reMath.Mat4 {
	return c.Rotation.ToMat4().Mul(reMath.Mat4Translation(c.Position))
}

func (c *Camera) GetViewMatrix() reMath.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

func (c *Camera) GetProjectionMatrix() reMath.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

// InverseProjection maps clip space back into camera space.
func (c *Camera) InverseProjection() reMath.Mat4 {
	return c.GetProjectionMatrix().Inverse()
}

func (c *Camera) updateMatrices() {
	translation := reMath.Mat4Translation(c.Position.Negate())
	c.viewMatrix = translation.Mul(c.Rotation.Conjugate().ToMat4())
	c.projectionMatrix = reMath.Mat4Perspective(c.FOV, c.AspectRatio, c.NearPlane, c.FarPlane)
	c.dirty = false
}

// OrbitCamera is a specialized camera for orbiting around a target
type OrbitCamera struct {
	Camera
	Target   reMath.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
}

func NewOrbitCamera(target reMath.Vec3, distance, fov, aspectRatio float32) *OrbitCamera {
	c := &OrbitCamera{
		Target:   target,
		Distance: distance,
		Pitch:    0.3,
	}
	c.Camera = *NewCamera(fov, aspectRatio, 0.1, 1000.0)
	c.UpdatePosition()
	return c
}

func (c *OrbitCamera) UpdatePosition() {
	if c.Pitch > 1.5 {
		c.Pitch = 1.5
	}
	if c.Pitch < -1.5 {
		c.Pitch = -1.5
	}

	cosPitch := float32(math.Cos(float64(c.Pitch)))
	sinPitch := float32(math.Sin(float64(c.Pitch)))
	cosYaw := float32(math.Cos(float64(c.Yaw)))
	sinYaw := float32(math.Sin(float64(c.Yaw)))

	offset := reMath.Vec3{
		X: c.Distance * cosPitch * sinYaw,
		Y: c.Distance * sinPitch,
		Z: c.Distance * cosPitch * cosYaw,
	}

	c.SetPosition(c.Target.Add(offset))
	c.LookAt(c.Target, reMath.Vec3Up)
}

func (c *OrbitCamera) Orbit(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	c.UpdatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance += delta
	if c.Distance < 0.1 {
		c.Distance = 0.1
	}
	c.UpdatePosition()
}
