package raytracing

import (
	"fmt"
	"time"

	"raytrace-engine/scene"
)

// RenderPassEvent orders the stages of a camera render. The ray-tracing
// pass runs at the event it is configured for.
type RenderPassEvent int

const (
	BeforeRenderingOpaques RenderPassEvent = iota * 100
	AfterRenderingOpaques
	AfterRenderingSkybox
	AfterRenderingTransparents
	BeforeRenderingPostProcessing
	AfterRendering
)

func (e RenderPassEvent) String() string {
	switch e {
	case BeforeRenderingOpaques:
		return "BeforeRenderingOpaques"
	case AfterRenderingOpaques:
		return "AfterRenderingOpaques"
	case AfterRenderingSkybox:
		return "AfterRenderingSkybox"
	case AfterRenderingTransparents:
		return "AfterRenderingTransparents"
	case BeforeRenderingPostProcessing:
		return "BeforeRenderingPostProcessing"
	case AfterRendering:
		return "AfterRendering"
	}
	return fmt.Sprintf("RenderPassEvent(%d)", int(e))
}

// PassConfig configures a Pass at construction.
type PassConfig struct {
	Event      RenderPassEvent
	LayerMask  uint32
	Management ManagementMode
	ModeMask   ModeMask
	// RebuildInterval throttles manual rebuilds. Zero rebuilds every frame.
	RebuildInterval time.Duration
	// MinScreenPixels enables the screen-size cull when positive.
	MinScreenPixels float32
}

// DefaultPassConfig tracks every layer and rebuilds at most every 33 ms.
func DefaultPassConfig() PassConfig {
	return PassConfig{
		Event:           AfterRenderingSkybox,
		LayerMask:       LayerEverything,
		Management:      ManagementManual,
		ModeMask:        ModeMaskEverything,
		RebuildInterval: DefaultRebuildInterval,
	}
}

// Frame is everything the host passes to Execute for one camera.
type Frame struct {
	Camera *scene.Camera
	Root   *scene.Node
	Skybox *scene.Texture
	// Settings may be nil when no settings component exists.
	Settings *Settings
	Elapsed  time.Duration
	Color    ColorTarget
}

// Pass is the per-camera ray-tracing render pass. It owns the registry,
// the acceleration structure, the frame binder and the output target.
type Pass struct {
	Config PassConfig

	dev      Device
	registry *Registry
	accel    *AccelerationStructure
	binder   *FrameBinder
	stage    *DispatchStage

	keywordOn bool
	disposed  bool
}

// NewPass initializes the acceleration structure on dev. It fails with
// ErrRayTracingUnsupported when dev cannot trace rays.
func NewPass(dev Device, cfg PassConfig) (*Pass, error) {
	if cfg.ModeMask == 0 {
		cfg.ModeMask = ModeMaskEverything
	}
	accel := NewAccelerationStructure(dev)
	accel.ModeMask = cfg.ModeMask
	accel.SetRebuildInterval(cfg.RebuildInterval)
	if err := accel.Initialize(cfg.LayerMask, cfg.Management); err != nil {
		return nil, fmt.Errorf("init ray tracing pass: %w", err)
	}

	registry := NewRegistry(dev)
	registry.LayerMask = cfg.LayerMask

	Logger().Info("ray tracing pass ready", "device", dev.Name(), "event", cfg.Event,
		"management", cfg.Management, "rebuildInterval", cfg.RebuildInterval)
	return &Pass{
		Config:   cfg,
		dev:      dev,
		registry: registry,
		accel:    accel,
		binder:   &FrameBinder{},
		stage:    NewDispatchStage(dev),
	}, nil
}

// Execute renders one frame for one camera. The frame is skipped without
// any device work when post-processing is off, settings are absent or
// ray tracing is disabled.
func (p *Pass) Execute(f Frame) error {
	if p.disposed {
		return ErrReleased
	}
	if f.Camera == nil || !f.Camera.PostProcessing {
		return nil
	}
	if !f.Settings.IsActive() {
		return nil
	}
	settings := f.Settings.Clamp()

	// setup
	width, height := f.Camera.ScaledPixelWidth(), f.Camera.ScaledPixelHeight()
	if !p.keywordOn {
		p.dev.SetGlobalKeyword(RayTracingKeyword, true)
		p.keywordOn = true
	}

	// culling and structure update
	p.registry.Sync(f.Root)
	p.accel.SetCandidates(p.registry.Handles())
	cfg := NewCullingConfig(f.Camera, settings)
	cfg.MinScreenPixels = p.Config.MinScreenPixels
	if _, err := p.accel.Update(cfg, f.Elapsed); err != nil {
		return fmt.Errorf("update acceleration structure: %w", err)
	}

	// uniform bind
	p.binder.Skybox = f.Skybox
	uniforms := p.binder.Bind(f.Camera, settings, f.Elapsed)

	// dispatch and composite
	return p.stage.Render(width, height, p.accel.Current(), &uniforms, f.Color)
}

// EndCameraStack is called by the host after the last camera of a frame.
func (p *Pass) EndCameraStack() {
	if p.keywordOn {
		p.dev.SetGlobalKeyword(RayTracingKeyword, false)
		p.keywordOn = false
	}
}

// Dispose releases the structure and output target exactly once.
func (p *Pass) Dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	p.EndCameraStack()
	p.stage.Release()
	p.accel.Release()
}

// Accel exposes the owned structure for inspection.
func (p *Pass) Accel() *AccelerationStructure { return p.accel }

// Registry exposes the owned registry.
func (p *Pass) Registry() *Registry { return p.registry }

// Stage exposes the dispatch stage.
func (p *Pass) Stage() *DispatchStage { return p.stage }

// FrameIndex returns the binder's running frame index.
func (p *Pass) FrameIndex() float64 { return p.binder.FrameIndex() }
