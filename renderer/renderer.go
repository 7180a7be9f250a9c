package renderer

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// Backend is a raytracing.Device that can also rasterize the base pass of
// a camera. Calls arrive from the render goroutine only.
type Backend interface {
	raytracing.Device

	// BeginCamera prepares the color target for cam, resizing it if the
	// camera's pixel size changed.
	BeginCamera(s *scene.Scene, cam *scene.Camera) (raytracing.ColorTarget, error)
	DrawOpaques(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error
	DrawSkybox(s *scene.Scene, cam *scene.Camera) error
	DrawTransparents(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error
	// EndCamera resolves the color target (tone map, present).
	EndCamera(cam *scene.Camera) error
	Destroy()
}

// CameraContext is what a Stage sees while one camera renders.
type CameraContext struct {
	Scene   *scene.Scene
	Camera  *scene.Camera
	Color   raytracing.ColorTarget
	Elapsed time.Duration

	Opaque      []*scene.Node
	Transparent []*scene.Node
}

// Stage is one step of a camera render. Stages run in Event order; stages
// sharing an event run in the order they were added.
type Stage interface {
	Name() string
	Event() raytracing.RenderPassEvent
	Run(ctx *CameraContext) error
}

// Built-in raster work runs between events, so a stage injected at an
// event runs after everything the event name says is done.
const builtinOffset = 50

type funcStage struct {
	name  string
	event raytracing.RenderPassEvent
	fn    func(ctx *CameraContext) error
}

func (s *funcStage) Name() string                      { return s.name }
func (s *funcStage) Event() raytracing.RenderPassEvent { return s.event }
func (s *funcStage) Run(ctx *CameraContext) error      { return s.fn(ctx) }

// NewStage wraps fn as a Stage at event.
func NewStage(name string, event raytracing.RenderPassEvent, fn func(ctx *CameraContext) error) Stage {
	return &funcStage{name: name, event: event, fn: fn}
}

// FrameStats describes the most recent Render call.
type FrameStats struct {
	Cameras     int
	Stages      int
	Opaque      int
	Transparent int
	Instances   int
}

// RenderEngine is the host pipeline: it renders every camera of a scene
// through an event-ordered stage list with the ray-tracing pass inserted at
// its configured event.
type RenderEngine struct {
	Scene    *scene.Scene
	Settings *raytracing.Settings

	backend Backend
	pass    *raytracing.Pass
	stages  []Stage
	sorted  bool

	stats     FrameStats
	destroyed bool

	// pending is the frame time not yet handed to the pass. The pass
	// receives it once per Render, however many cameras there are.
	pending time.Duration
}

// NewRenderEngine creates the ray-tracing pass on backend. A backend that
// cannot trace rays fails with raytracing.ErrRayTracingUnsupported.
func NewRenderEngine(backend Backend, cfg raytracing.PassConfig) (*RenderEngine, error) {
	pass, err := raytracing.NewPass(backend, cfg)
	if err != nil {
		return nil, fmt.Errorf("create render engine: %w", err)
	}
	re := &RenderEngine{backend: backend, pass: pass}

	re.AddStage(NewStage("DrawOpaques", raytracing.BeforeRenderingOpaques+builtinOffset, func(ctx *CameraContext) error {
		return backend.DrawOpaques(ctx.Scene, ctx.Camera, ctx.Opaque)
	}))
	re.AddStage(NewStage("DrawSkybox", raytracing.AfterRenderingOpaques+builtinOffset, func(ctx *CameraContext) error {
		return backend.DrawSkybox(ctx.Scene, ctx.Camera)
	}))
	re.AddStage(NewStage("DrawTransparents", raytracing.AfterRenderingSkybox+builtinOffset, func(ctx *CameraContext) error {
		return backend.DrawTransparents(ctx.Scene, ctx.Camera, ctx.Transparent)
	}))
	re.AddStage(NewStage(raytracing.ShaderPassName, cfg.Event, re.executePass))

	raytracing.Logger().Info("render engine initialized", "backend", backend.Name(), "rayTracingEvent", cfg.Event)
	return re, nil
}

// AddStage inserts s into the stage list.
func (re *RenderEngine) AddStage(s Stage) {
	re.stages = append(re.stages, s)
	re.sorted = false
}

// Stages returns the stage list in execution order.
func (re *RenderEngine) Stages() []Stage {
	re.sortStages()
	return re.stages
}

func (re *RenderEngine) sortStages() {
	if re.sorted {
		return
	}
	sort.SliceStable(re.stages, func(i, j int) bool {
		return re.stages[i].Event() < re.stages[j].Event()
	})
	re.sorted = true
}

func (re *RenderEngine) SetScene(s *scene.Scene) {
	re.Scene = s
}

// Render draws every camera of the scene, then ends the camera stack.
func (re *RenderEngine) Render(elapsed time.Duration) error {
	if re.destroyed {
		return raytracing.ErrReleased
	}
	if re.Scene == nil {
		return errors.New("render: no scene")
	}
	cameras := re.Scene.Cameras
	if len(cameras) == 0 && re.Scene.Camera != nil {
		cameras = []*scene.Camera{re.Scene.Camera}
	}
	if len(cameras) == 0 {
		return errors.New("render: no camera")
	}
	re.sortStages()

	// Main light is global state for every camera of the frame.
	re.backend.SetVector(raytracing.UniformSunDirection, re.Scene.SunDirection.ToVec4(0))
	re.backend.SetVector(raytracing.UniformSunColor, re.Scene.SunColor.Vec4())

	re.pending = elapsed
	stats := FrameStats{}
	defer func() { re.stats = stats }()
	defer re.pass.EndCameraStack()

	opaque, transparent := splitByMaterial(re.Scene.GetVisibleNodes())
	stats.Opaque, stats.Transparent = len(opaque), len(transparent)

	for _, cam := range cameras {
		color, err := re.backend.BeginCamera(re.Scene, cam)
		if err != nil {
			return fmt.Errorf("begin camera %q: %w", cam.Name, err)
		}
		ctx := &CameraContext{
			Scene:       re.Scene,
			Camera:      cam,
			Color:       color,
			Elapsed:     elapsed,
			Opaque:      opaque,
			Transparent: transparent,
		}
		for _, s := range re.stages {
			if err := s.Run(ctx); err != nil {
				return fmt.Errorf("camera %q stage %s: %w", cam.Name, s.Name(), err)
			}
			stats.Stages++
		}
		if err := re.backend.EndCamera(cam); err != nil {
			return fmt.Errorf("end camera %q: %w", cam.Name, err)
		}
		stats.Cameras++
	}
	stats.Instances = re.pass.Accel().InstanceCount()
	return nil
}

// executePass runs the pass for one camera. Only the first camera of a
// frame advances the rebuild throttle and the frame index.
func (re *RenderEngine) executePass(ctx *CameraContext) error {
	elapsed := re.pending
	re.pending = 0
	return re.pass.Execute(raytracing.Frame{
		Camera:   ctx.Camera,
		Root:     ctx.Scene.Root,
		Skybox:   ctx.Scene.Skybox,
		Settings: re.Settings,
		Elapsed:  elapsed,
		Color:    ctx.Color,
	})
}

func splitByMaterial(nodes []*scene.Node) (opaque, transparent []*scene.Node) {
	for _, n := range nodes {
		if n.Mesh.MaterialOrDefault().IsTransparent() {
			transparent = append(transparent, n)
		} else {
			opaque = append(opaque, n)
		}
	}
	return opaque, transparent
}

// Resize updates the pixel size of every scene camera.
func (re *RenderEngine) Resize(width, height int) {
	if re.Scene == nil {
		return
	}
	for _, cam := range re.Scene.Cameras {
		cam.SetPixelSize(width, height)
	}
	if re.Scene.Camera != nil {
		re.Scene.Camera.SetPixelSize(width, height)
	}
}

// Pass exposes the ray-tracing pass.
func (re *RenderEngine) Pass() *raytracing.Pass {
	return re.pass
}

// Backend returns the backend the engine renders with.
func (re *RenderEngine) Backend() Backend {
	return re.backend
}

// Stats returns counters from the most recent Render call.
func (re *RenderEngine) Stats() FrameStats {
	return re.stats
}

// Destroy disposes the pass and then the backend. It is safe to call
// more than once.
func (re *RenderEngine) Destroy() {
	if re.destroyed {
		return
	}
	re.destroyed = true
	re.pass.Dispose()
	re.backend.Destroy()
}
