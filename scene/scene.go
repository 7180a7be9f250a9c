package scene

import (
	"raytrace-engine/core"
	"raytrace-engine/math"
)

// Scene manages a collection of nodes, the cameras that render it and the
// environment the ray tracer falls back to.
type Scene struct {
	Root    *Node
	Camera  *Camera
	Cameras []*Camera

	// SunDirection points from the sun towards the scene.
	SunDirection math.Vec3
	SunColor     core.Color
	Ambient      core.Color

	// SkyColor and GroundColor are the background gradient drawn by the
	// raster base pass when no Skybox is set.
	SkyColor    core.Color
	GroundColor core.Color

	// Skybox is an optional equirectangular environment map.
	Skybox *Texture
}

func NewScene() *Scene {
	return &Scene{
		Root:         NewNode("Root"),
		SunDirection: math.Vec3{X: -0.4, Y: -1, Z: -0.3}.Normalize(),
		SunColor:     core.ColorWhite,
		Ambient:      core.Color{R: 0.2, G: 0.2, B: 0.2, A: 1.0},
		SkyColor:     core.Color{R: 0.45, G: 0.65, B: 0.95, A: 1.0},
		GroundColor:  core.Color{R: 0.35, G: 0.33, B: 0.3, A: 1.0},
	}
}

// SetCamera makes camera the main camera, adding it to Cameras if needed.
func (s *Scene) SetCamera(camera *Camera) {
	s.Camera = camera
	for _, c := range s.Cameras {
		if c == camera {
			return
		}
	}
	s.Cameras = append([]*Camera{camera}, s.Cameras...)
}

// AddCamera appends an extra camera to the render list.
func (s *Scene) AddCamera(camera *Camera) {
	if s.Camera == nil {
		s.Camera = camera
	}
	s.Cameras = append(s.Cameras, camera)
}

func (s *Scene) AddNode(node *Node) {
	s.Root.AddChild(node)
}

func (s *Scene) RemoveNode(node *Node) {
	s.Root.RemoveChild(node)
}

// GetVisibleNodes returns all live, visible nodes that carry a mesh.
func (s *Scene) GetVisibleNodes() []*Node {
	var visible []*Node
	s.Root.Traverse(func(node *Node) {
		if node.Visible && !node.Destroyed && node.Mesh != nil {
			visible = append(visible, node)
		}
	})
	return visible
}

// CreateDemoScene builds a small scene that exercises every ray category:
// a ground plane, a mirror sphere, a glass sphere, a shadow-only caster and
// a cube that is hidden from rays.
func CreateDemoScene() *Scene {
	s := NewScene()

	camera := NewCamera(1.0472, 16.0/9.0, 0.1, 200.0)
	camera.SetPosition(math.Vec3{X: 0, Y: 2.5, Z: 7})
	camera.LookAt(math.Vec3{X: 0, Y: 0.8, Z: 0}, math.Vec3Up)
	s.SetCamera(camera)

	ground := NewNode("Ground")
	ground.Mesh = CreatePlane(20, 20, 1)
	ground.Mesh.Material = NewMaterial("Ground", core.Color{R: 0.7, G: 0.7, B: 0.7, A: 1})
	ground.RayTracing = RayTracingStatic
	s.AddNode(ground)

	mirror := NewNode("Mirror")
	mirror.Mesh = CreateSphere(1, 32, 16)
	mirror.Mesh.Material = &Material{Name: "Mirror", Albedo: core.Color{R: 0.95, G: 0.95, B: 0.95, A: 1}, Metallic: 1, Roughness: 0.05, IOR: 1.5}
	mirror.SetPosition(math.Vec3{X: -1.5, Y: 1, Z: 0})
	s.AddNode(mirror)

	glass := NewNode("Glass")
	glass.Mesh = CreateSphere(0.8, 32, 16)
	glass.Mesh.Material = &Material{Name: "Glass", Albedo: core.Color{R: 0.9, G: 1, B: 0.95, A: 0.3}, Transmission: 1, IOR: 1.5, AlphaMode: AlphaBlend}
	glass.SetPosition(math.Vec3{X: 1.4, Y: 0.8, Z: 0.5})
	s.AddNode(glass)

	caster := NewNode("ShadowCaster")
	caster.Mesh = CreateCube(0.6)
	caster.ShadowCasting = ShadowsOnly
	caster.SetPosition(math.Vec3{X: 0, Y: 2.2, Z: 1.5})
	s.AddNode(caster)

	hidden := NewNode("RasterOnly")
	hidden.Mesh = CreateCube(0.5)
	hidden.Mesh.Material = NewMaterial("Red", core.Color{R: 0.8, G: 0.1, B: 0.1, A: 1})
	hidden.RayTracing = RayTracingOff
	hidden.SetPosition(math.Vec3{X: 0, Y: 0.25, Z: -2})
	s.AddNode(hidden)

	return s
}
