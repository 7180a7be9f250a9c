package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	stdmath "math"
	"os"
	"path/filepath"
	"strings"

	"raytrace-engine/core"
	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// SceneFile is the top-level structure of the .rtscene format.
type SceneFile struct {
	Version string       `json:"version"`
	Name    string       `json:"name"`
	Camera  CameraData   `json:"camera"`
	Sun     SunData      `json:"sun"`
	Sky     SkyData      `json:"sky"`
	Objects []ObjectData `json:"objects"`
	// Settings is decoded over raytracing.DefaultSettings, so omitted
	// fields keep their defaults.
	Settings json.RawMessage `json:"settings,omitempty"`
}

// CameraData stores camera state. FOV is vertical, in degrees.
type CameraData struct {
	Position       [3]float32 `json:"position"`
	Target         [3]float32 `json:"target"`
	FOV            float32    `json:"fov"`
	Near           float32    `json:"near"`
	Far            float32    `json:"far"`
	RenderScale    float32    `json:"render_scale,omitempty"`
	PostProcessing *bool      `json:"post_processing,omitempty"`
}

// SunData is the main directional light. Direction points from the sun
// into the scene.
type SunData struct {
	Direction [3]float32 `json:"direction"`
	Color     [4]float32 `json:"color"`
}

// SkyData is the background: a gradient, or an equirectangular texture.
type SkyData struct {
	Color   [4]float32 `json:"color"`
	Ground  [4]float32 `json:"ground"`
	Texture string     `json:"texture,omitempty"`
}

// ObjectData stores one node. Mesh is "cube", "sphere", "plane", "quad",
// "obj", "gltf" or empty for a pure transform node.
type ObjectData struct {
	Name          string        `json:"name"`
	Position      [3]float32    `json:"position"`
	Rotation      [4]float32    `json:"rotation"` // quaternion (x,y,z,w); zero means identity
	Scale         [3]float32    `json:"scale"`    // zero means one
	Hidden        bool          `json:"hidden,omitempty"`
	Mesh          string        `json:"mesh"`
	File          string        `json:"file,omitempty"` // obj/gltf path, relative to the scene file
	Size          float32       `json:"size,omitempty"`
	Layer         uint32        `json:"layer,omitempty"`
	RayTracing    string        `json:"ray_tracing,omitempty"`
	ShadowCasting string        `json:"shadow_casting,omitempty"`
	Material      *MaterialData `json:"material,omitempty"`
	Children      []ObjectData  `json:"children,omitempty"`
}

// MaterialData stores material properties.
type MaterialData struct {
	Name         string     `json:"name"`
	Albedo       [4]float32 `json:"albedo"`
	Emissive     [4]float32 `json:"emissive,omitempty"`
	Metallic     float32    `json:"metallic"`
	Roughness    float32    `json:"roughness"`
	Transmission float32    `json:"transmission,omitempty"`
	IOR          float32    `json:"ior,omitempty"`
	AlphaMode    string     `json:"alpha_mode,omitempty"` // "opaque", "mask", "blend"
	AlphaCutoff  float32    `json:"alpha_cutoff,omitempty"`
	DoubleSided  bool       `json:"double_sided,omitempty"`
	Texture      string     `json:"texture,omitempty"`
}

// SaveScene serializes scene data to a .rtscene JSON file.
func SaveScene(path string, f *SceneFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scene: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSceneFile decodes a .rtscene file without building it.
func ReadSceneFile(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene file: %w", err)
	}
	f := &SceneFile{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse scene file %q: %w", path, err)
	}
	return f, nil
}

// LoadScene reads a .rtscene file and builds the scene graph and the
// ray-tracing settings it carries.
func LoadScene(path string) (*scene.Scene, raytracing.Settings, error) {
	f, err := ReadSceneFile(path)
	if err != nil {
		return nil, raytracing.Settings{}, err
	}
	return f.Build(filepath.Dir(path))
}

// Build turns the file into a live scene. Relative asset paths resolve
// against baseDir.
func (f *SceneFile) Build(baseDir string) (*scene.Scene, raytracing.Settings, error) {
	settings := raytracing.DefaultSettings()
	if len(f.Settings) > 0 {
		s, err := raytracing.DecodeSettings(bytes.NewReader(f.Settings))
		if err != nil {
			return nil, settings, err
		}
		settings = s
	}

	s := scene.NewScene()
	s.SetCamera(f.Camera.build())

	if f.Sun.Direction != [3]float32{} {
		s.SunDirection = ArrayToVec3(f.Sun.Direction).Normalize()
	}
	if f.Sun.Color != [4]float32{} {
		s.SunColor = ArrayToColor(f.Sun.Color)
	}
	if f.Sky.Color != [4]float32{} {
		s.SkyColor = ArrayToColor(f.Sky.Color)
	}
	if f.Sky.Ground != [4]float32{} {
		s.GroundColor = ArrayToColor(f.Sky.Ground)
	}
	if f.Sky.Texture != "" {
		tex, err := scene.LoadTexture(resolve(baseDir, f.Sky.Texture))
		if err != nil {
			return nil, settings, fmt.Errorf("sky: %w", err)
		}
		s.Skybox = tex
	}

	for i := range f.Objects {
		n, err := f.Objects[i].build(baseDir)
		if err != nil {
			return nil, settings, err
		}
		s.AddNode(n)
	}
	return s, settings, nil
}

func (c CameraData) build() *scene.Camera {
	fov := c.FOV
	if fov <= 0 {
		fov = 60
	}
	near, far := c.Near, c.Far
	if near <= 0 {
		near = 0.1
	}
	if far <= near {
		far = 1000
	}
	cam := scene.NewCamera(fov*stdmath.Pi/180, 16.0/9.0, near, far)
	cam.SetPosition(ArrayToVec3(c.Position))
	if c.Target != c.Position {
		cam.LookAt(ArrayToVec3(c.Target), math.Vec3Up)
	}
	if c.RenderScale > 0 {
		cam.RenderScale = c.RenderScale
	}
	if c.PostProcessing != nil {
		cam.PostProcessing = *c.PostProcessing
	}
	return cam
}

func (o *ObjectData) build(baseDir string) (*scene.Node, error) {
	n := scene.NewNode(o.Name)
	n.Visible = !o.Hidden
	n.Layer = o.Layer
	n.SetPosition(ArrayToVec3(o.Position))
	if o.Rotation != [4]float32{} {
		n.SetRotation(ArrayToQuat(o.Rotation).Normalize())
	}
	if o.Scale != [3]float32{} {
		n.SetScale(ArrayToVec3(o.Scale))
	}

	var err error
	if n.RayTracing, err = parseRayTracingMode(o.RayTracing); err != nil {
		return nil, fmt.Errorf("object %q: %w", o.Name, err)
	}
	if n.ShadowCasting, err = parseShadowCasting(o.ShadowCasting); err != nil {
		return nil, fmt.Errorf("object %q: %w", o.Name, err)
	}

	var mat *scene.Material
	if o.Material != nil {
		if mat, err = o.Material.build(baseDir); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
	}

	size := o.Size
	if size <= 0 {
		size = 1
	}
	switch strings.ToLower(o.Mesh) {
	case "":
	case "cube":
		n.Mesh = scene.CreateCube(size)
	case "sphere":
		n.Mesh = scene.CreateSphere(size, 32, 16)
	case "plane":
		n.Mesh = scene.CreatePlane(size, size, 1)
	case "quad":
		n.Mesh = scene.CreateQuad()
	case "obj":
		meshes, err := scene.LoadOBJ(resolve(baseDir, o.File))
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		n.Mesh = meshes[0]
		for _, m := range meshes[1:] {
			child := scene.NewNode(m.Name)
			child.Mesh = m
			child.RayTracing, child.ShadowCasting, child.Layer = n.RayTracing, n.ShadowCasting, n.Layer
			n.AddChild(child)
		}
	case "gltf":
		res, err := scene.LoadGLTF(resolve(baseDir, o.File))
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		for _, root := range res.Roots {
			root.Traverse(func(c *scene.Node) {
				c.RayTracing, c.ShadowCasting, c.Layer = n.RayTracing, n.ShadowCasting, n.Layer
			})
			n.AddChild(root)
		}
	default:
		return nil, fmt.Errorf("object %q: unknown mesh type %q", o.Name, o.Mesh)
	}
	if mat != nil && n.Mesh != nil {
		n.Mesh.Material = mat
	}

	for i := range o.Children {
		child, err := o.Children[i].build(baseDir)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

func (m *MaterialData) build(baseDir string) (*scene.Material, error) {
	mat := scene.DefaultMaterial()
	mat.Name = m.Name
	if m.Albedo != [4]float32{} {
		mat.Albedo = ArrayToColor(m.Albedo)
	}
	mat.EmissiveColor = ArrayToColor(m.Emissive)
	mat.Metallic = m.Metallic
	mat.Roughness = m.Roughness
	mat.Transmission = m.Transmission
	if m.IOR > 0 {
		mat.IOR = m.IOR
	}
	if m.AlphaCutoff > 0 {
		mat.AlphaCutoff = m.AlphaCutoff
	}
	mat.DoubleSided = m.DoubleSided

	switch strings.ToLower(m.AlphaMode) {
	case "", "opaque":
		mat.AlphaMode = scene.AlphaOpaque
	case "mask":
		mat.AlphaMode = scene.AlphaMask
	case "blend":
		mat.AlphaMode = scene.AlphaBlend
	default:
		return nil, fmt.Errorf("material %q: unknown alpha mode %q", m.Name, m.AlphaMode)
	}

	if m.Texture != "" {
		tex, err := scene.LoadTexture(resolve(baseDir, m.Texture))
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", m.Name, err)
		}
		mat.AlbedoTexture = tex
	}
	return mat, nil
}

// parseRayTracingMode accepts the names printed by RayTracingMode.String.
// Empty means dynamic-transform, the node default.
func parseRayTracingMode(s string) (scene.RayTracingMode, error) {
	if s == "" {
		return scene.RayTracingDynamicTransform, nil
	}
	for m := scene.RayTracingOff; m <= scene.RayTracingDynamicGeometry; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown ray tracing mode %q", s)
}

func parseShadowCasting(s string) (scene.ShadowCastingMode, error) {
	if s == "" {
		return scene.ShadowsOn, nil
	}
	for m := scene.ShadowsOff; m <= scene.ShadowsOnly; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown shadow casting mode %q", s)
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// --- Helper conversions ---

func ArrayToVec3(a [3]float32) math.Vec3 {
	return math.Vec3{X: a[0], Y: a[1], Z: a[2]}
}

func ArrayToColor(a [4]float32) core.Color {
	return core.Color{R: a[0], G: a[1], B: a[2], A: a[3]}
}

func ArrayToQuat(a [4]float32) math.Quaternion {
	return math.Quaternion{X: a[0], Y: a[1], Z: a[2], W: a[3]}
}
