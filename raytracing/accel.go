package raytracing

import (
	"fmt"
	"sync"
	"time"

	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// State is the lifecycle of an AccelerationStructure.
type State int

const (
	StateUninitialized State = iota
	StateBuilt
	StateStale
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// ManagementMode decides who drives rebuilds.
type ManagementMode int

const (
	// ManagementManual rebuilds through the throttle.
	ManagementManual ManagementMode = iota
	// ManagementAutomatic rebuilds on every request.
	ManagementAutomatic
)

func (m ManagementMode) String() string {
	if m == ManagementAutomatic {
		return "automatic"
	}
	return "manual"
}

// ModeMask is a bit set over scene.RayTracingMode.
type ModeMask uint32

// ModeBit returns the mask bit for m.
func ModeBit(m scene.RayTracingMode) ModeMask {
	return 1 << uint32(m)
}

// ModeMaskEverything selects every mode that can take part in tracing.
var ModeMaskEverything = ModeBit(scene.RayTracingStatic) |
	ModeBit(scene.RayTracingDynamicTransform) |
	ModeBit(scene.RayTracingDynamicGeometry)

// Instance is one committed entry of a build.
type Instance struct {
	Handle      InstanceHandle
	Mask        RayMask
	Flags       SubMeshFlags
	Keywords    []string
	Transparent bool
	DoubleSided bool
	Material    *scene.Material

	// Geometry indexes Build.Geometries.
	Geometry      int
	WorldToObject math.Mat4
}

// Build is an immutable committed acceleration structure. Dispatch reads a
// Build while the manager is free to assemble the next one.
type Build struct {
	Version    uint64
	Instances  []Instance
	Geometries []*MeshBLAS
	// TopLevel is built over instance world bounds.
	TopLevel              *BVH
	FrontCounterClockwise bool
}

// InstanceCount returns the number of committed instances.
func (b *Build) InstanceCount() int {
	if b == nil {
		return 0
	}
	return len(b.Instances)
}

// AccelerationStructure owns the candidate instances and the committed
// build. State moves Uninitialized → Stale → Built → Stale → … → Released.
type AccelerationStructure struct {
	mu  sync.RWMutex
	dev Device

	state     State
	layerMask uint32
	mode      ManagementMode
	// ModeMask limits which ray-tracing modes are considered.
	ModeMask ModeMask

	throttle   *Throttle
	candidates []InstanceHandle
	geometry   map[*scene.Mesh]*MeshBLAS
	current    *Build
	version    uint64
	rebuilds   int
}

// NewAccelerationStructure returns an uninitialized structure on dev.
func NewAccelerationStructure(dev Device) *AccelerationStructure {
	return &AccelerationStructure{
		dev:      dev,
		ModeMask: ModeMaskEverything,
		throttle: NewThrottle(DefaultRebuildInterval),
		geometry: make(map[*scene.Mesh]*MeshBLAS),
	}
}

// Initialize checks the device capability and readies the structure for
// its first build. A device without ray tracing fails with
// ErrRayTracingUnsupported.
func (a *AccelerationStructure) Initialize(layerMask uint32, mode ManagementMode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateReleased:
		return ErrReleased
	case StateUninitialized:
	default:
		return nil
	}
	if a.dev == nil || !a.dev.SupportsRayTracing() {
		return ErrRayTracingUnsupported
	}
	a.layerMask = layerMask
	a.mode = mode
	a.state = StateStale
	Logger().Debug("acceleration structure initialized",
		"device", a.dev.Name(), "layers", fmt.Sprintf("%#x", layerMask), "mode", mode)
	return nil
}

// SetRebuildInterval tunes the manual-mode throttle. A changed interval
// restarts the throttle, so the next Update rebuilds.
func (a *AccelerationStructure) SetRebuildInterval(d time.Duration) {
	a.mu.Lock()
	if a.throttle.Interval != d {
		a.throttle.Interval = d
		a.throttle.Reset()
	}
	a.mu.Unlock()
}

// SetCandidates replaces the instance list the next rebuild culls from.
// The committed build is untouched until then.
func (a *AccelerationStructure) SetCandidates(handles []InstanceHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateReleased || a.state == StateUninitialized {
		return
	}
	a.candidates = append(a.candidates[:0], handles...)
	if a.state == StateBuilt {
		a.state = StateStale
	}
}

// MarkStale flags the committed build as out of date without rebuilding.
func (a *AccelerationStructure) MarkStale() {
	a.mu.Lock()
	if a.state == StateBuilt {
		a.state = StateStale
	}
	a.mu.Unlock()
}

// Update is the per-frame entry point. In manual mode it rebuilds when the
// throttle allows; in automatic mode it always rebuilds. It reports
// whether a rebuild ran.
func (a *AccelerationStructure) Update(cfg CullingConfig, elapsed time.Duration) (bool, error) {
	a.mu.Lock()
	due := a.mode == ManagementAutomatic || a.throttle.Tick(elapsed)
	a.mu.Unlock()
	if !due {
		return false, nil
	}
	if err := a.Rebuild(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild clears the committed instances, culls the candidates with cfg
// and commits a new build to the device.
func (a *AccelerationStructure) Rebuild(cfg CullingConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateReleased:
		return ErrReleased
	}

	build := &Build{FrontCounterClockwise: cfg.Triangles.FrontCounterClockwise}
	used := make(map[*scene.Mesh]int)
	var bounds []scene.AABB
	for _, h := range a.candidates {
		if ModeBit(h.Mode)&a.ModeMask == 0 || h.Node.LayerBit()&a.layerMask == 0 {
			continue
		}
		inst, ok := cfg.Evaluate(h)
		if !ok {
			continue
		}
		gi, seen := used[h.Mesh]
		if !seen {
			gi = len(build.Geometries)
			used[h.Mesh] = gi
			build.Geometries = append(build.Geometries, a.geometryFor(h))
		}
		inst.Geometry = gi
		inst.WorldToObject = h.World.Inverse()
		build.Instances = append(build.Instances, inst)
		bounds = append(bounds, h.Bounds)
	}
	build.TopLevel = BuildBVH(bounds)

	// drop cached geometry no instance references any more
	for m := range a.geometry {
		if _, ok := used[m]; !ok {
			delete(a.geometry, m)
		}
	}

	a.version++
	build.Version = a.version
	if err := a.dev.UploadAccelerationStructure(build); err != nil {
		return fmt.Errorf("upload acceleration structure: %w", err)
	}
	a.current = build
	a.state = StateBuilt
	a.rebuilds++

	if len(build.Instances) == 0 {
		Logger().Debug("acceleration structure empty", "candidates", len(a.candidates))
	} else {
		Logger().Debug("acceleration structure rebuilt",
			"version", build.Version, "instances", len(build.Instances), "geometries", len(build.Geometries))
	}
	return nil
}

func (a *AccelerationStructure) geometryFor(h InstanceHandle) *MeshBLAS {
	g, ok := a.geometry[h.Mesh]
	if ok && g.matches(h.Mesh) && h.Mode != scene.RayTracingDynamicGeometry {
		return g
	}
	g = BuildMeshBLAS(h.Mesh)
	a.geometry[h.Mesh] = g
	return g
}

// Current returns the committed build, or nil before the first rebuild.
func (a *AccelerationStructure) Current() *Build {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// InstanceCount returns the number of committed instances.
func (a *AccelerationStructure) InstanceCount() int {
	return a.Current().InstanceCount()
}

func (a *AccelerationStructure) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Rebuilds returns how many builds have been committed.
func (a *AccelerationStructure) Rebuilds() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rebuilds
}

// Release frees device resources. Calling it again is a no-op.
func (a *AccelerationStructure) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateReleased {
		return
	}
	wasLive := a.state != StateUninitialized
	a.state = StateReleased
	a.current = nil
	a.candidates = nil
	a.geometry = nil
	if wasLive && a.dev != nil {
		a.dev.ReleaseAccelerationStructure()
	}
	Logger().Debug("acceleration structure released")
}
