package opengl

import (
	"fmt"
	"sort"
	"strings"
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"

	"raytrace-engine/core"
	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

// GPUMesh holds the OpenGL buffer objects for an uploaded mesh.
type GPUMesh struct {
	VAO        uint32
	VBO        uint32
	EBO        uint32
	IndexCount int32
}

// raster is the base pass: lit meshes and the sky into the HDR buffer.
type raster struct {
	program uint32

	mvpLoc   int32
	modelLoc int32

	sunDirLoc   int32
	sunColorLoc int32
	skyLoc      int32
	groundLoc   int32
	cameraLoc   int32

	albedoLoc    int32
	emissiveLoc  int32
	metallicLoc  int32
	roughnessLoc int32
	cutoffLoc    int32

	albedoTexLoc  int32
	hasTextureLoc int32

	hdr *HDRBuffer
	sky *Skybox

	// Per-camera state set by BeginCamera.
	scene     *scene.Scene
	camera    *scene.Camera
	view      math.Mat4
	proj      math.Mat4
	viewportW int32
	viewportH int32

	gpuMeshes map[*scene.Mesh]*GPUMesh
	textures  map[*scene.Texture]struct{}
}

// ── Shaders ───────────────────────────────────────────────────────────────────

const vertSrc = `
#version 430 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in vec4 inColor;

uniform mat4 mvp;
uniform mat4 model;

out vec3 fragPos;
out vec3 fragNormal;
out vec2 fragUV;
out vec4 fragColor;

void main() {
    fragPos     = (model * vec4(inPosition, 1.0)).xyz;
    fragNormal  = mat3(transpose(inverse(model))) * inNormal;
    fragUV      = inUV;
    fragColor   = inColor;
    gl_Position = mvp * vec4(inPosition, 1.0);
}
` + "\x00"

// fragSrc is Blinn-Phong with a metallic/roughness parameterisation and a
// hemisphere ambient matching the tracer's sky.
const fragSrc = `
#version 430 core
in vec3 fragPos;
in vec3 fragNormal;
in vec2 fragUV;
in vec4 fragColor;
out vec4 outColor;

uniform vec3  sunDir;        // towards the sun
uniform vec3  sunColor;
uniform vec3  skyColor;
uniform vec3  groundColor;
uniform vec3  cameraPos;

uniform vec4  matAlbedo;
uniform vec3  matEmissive;
uniform float matMetallic;
uniform float matRoughness;
uniform float alphaCutoff;   // 0 disables the alpha test

uniform sampler2D albedoTex;
uniform bool      hasTexture;

void main() {
    vec4 base = matAlbedo * fragColor;
    if (hasTexture) {
        base *= texture(albedoTex, fragUV);
    }
    if (base.a < alphaCutoff) {
        discard;
    }

    vec3 n = normalize(fragNormal);
    if (!gl_FrontFacing) {
        n = -n;
    }
    vec3 v = normalize(cameraPos - fragPos);
    vec3 h = normalize(v + sunDir);

    float ndotl     = max(dot(n, sunDir), 0.0);
    float shininess = mix(256.0, 4.0, matRoughness);
    float spec      = pow(max(dot(n, h), 0.0), shininess) * (1.0 - matRoughness);
    vec3  f0        = mix(vec3(0.04), base.rgb, matMetallic);
    vec3  ambient   = mix(groundColor, skyColor, n.y * 0.5 + 0.5) * 0.3;

    vec3 color = base.rgb * (1.0 - matMetallic) * (sunColor * ndotl + ambient)
               + f0 * sunColor * spec * ndotl
               + matEmissive;
    outColor = vec4(color, base.a);
}
` + "\x00"

// ── Init ──────────────────────────────────────────────────────────────────────

func (r *raster) init() error {
	prog, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return fmt.Errorf("main shader compile: %w", err)
	}
	sky, err := NewSkybox()
	if err != nil {
		gl.DeleteProgram(prog)
		return err
	}

	r.program = prog
	r.sky = sky
	r.mvpLoc = gl.GetUniformLocation(prog, gl.Str("mvp\x00"))
	r.modelLoc = gl.GetUniformLocation(prog, gl.Str("model\x00"))
	r.sunDirLoc = gl.GetUniformLocation(prog, gl.Str("sunDir\x00"))
	r.sunColorLoc = gl.GetUniformLocation(prog, gl.Str("sunColor\x00"))
	r.skyLoc = gl.GetUniformLocation(prog, gl.Str("skyColor\x00"))
	r.groundLoc = gl.GetUniformLocation(prog, gl.Str("groundColor\x00"))
	r.cameraLoc = gl.GetUniformLocation(prog, gl.Str("cameraPos\x00"))
	r.albedoLoc = gl.GetUniformLocation(prog, gl.Str("matAlbedo\x00"))
	r.emissiveLoc = gl.GetUniformLocation(prog, gl.Str("matEmissive\x00"))
	r.metallicLoc = gl.GetUniformLocation(prog, gl.Str("matMetallic\x00"))
	r.roughnessLoc = gl.GetUniformLocation(prog, gl.Str("matRoughness\x00"))
	r.cutoffLoc = gl.GetUniformLocation(prog, gl.Str("alphaCutoff\x00"))
	r.albedoTexLoc = gl.GetUniformLocation(prog, gl.Str("albedoTex\x00"))
	r.hasTextureLoc = gl.GetUniformLocation(prog, gl.Str("hasTexture\x00"))
	r.gpuMeshes = make(map[*scene.Mesh]*GPUMesh)
	r.textures = make(map[*scene.Texture]struct{})

	gl.UseProgram(prog)
	gl.Uniform1i(r.albedoTexLoc, 0)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.FrontFace(gl.CCW)
	gl.CullFace(gl.BACK)
	return nil
}

// ── Viewport ──────────────────────────────────────────────────────────────────

// SetViewport records the default framebuffer size EndCamera presents to.
func (d *Device) SetViewport(width, height int) {
	d.viewportW = int32(width)
	d.viewportH = int32(height)
}

// HDR returns the color target of the last camera.
func (d *Device) HDR() *HDRBuffer { return d.hdr }

// ── Camera ────────────────────────────────────────────────────────────────────

// BeginCamera binds the HDR buffer, resized to the camera's pixel size,
// and loads the per-camera uniforms.
func (d *Device) BeginCamera(s *scene.Scene, cam *scene.Camera) (raytracing.ColorTarget, error) {
	w, h := cam.PixelWidth, cam.PixelHeight
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("opengl: camera %q has no pixel size", cam.Name)
	}
	if d.hdr == nil {
		hdr, err := NewHDRBuffer(w, h)
		if err != nil {
			return nil, err
		}
		d.hdr = hdr
	} else if err := d.hdr.Resize(w, h); err != nil {
		return nil, err
	}

	d.scene, d.camera = s, cam
	d.view = cam.GetViewMatrix()
	d.proj = cam.GetProjectionMatrix()

	gl.BindFramebuffer(gl.FRAMEBUFFER, d.hdr.FBO)
	gl.Viewport(0, 0, int32(w), int32(h))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	sun := s.SunDirection.Negate().Normalize()
	gl.UseProgram(d.program)
	gl.Uniform3f(d.sunDirLoc, sun.X, sun.Y, sun.Z)
	gl.Uniform3f(d.sunColorLoc, s.SunColor.R, s.SunColor.G, s.SunColor.B)
	gl.Uniform3f(d.skyLoc, s.SkyColor.R, s.SkyColor.G, s.SkyColor.B)
	gl.Uniform3f(d.groundLoc, s.GroundColor.R, s.GroundColor.G, s.GroundColor.B)
	gl.Uniform3f(d.cameraLoc, cam.Position.X, cam.Position.Y, cam.Position.Z)
	return d.hdr, nil
}

func (d *Device) DrawOpaques(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.hdr.FBO)
	gl.Disable(gl.BLEND)
	for _, n := range nodes {
		if err := d.drawNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) DrawSkybox(s *scene.Scene, cam *scene.Camera) error {
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.hdr.FBO)
	return d.sky.Draw(SkyViewProjection(d.view, d.proj), s.SkyColor, s.GroundColor, s.Skybox)
}

// DrawTransparents draws back to front with alpha blending and no depth
// writes.
func (d *Device) DrawTransparents(s *scene.Scene, cam *scene.Camera, nodes []*scene.Node) error {
	sorted := append([]*scene.Node(nil), nodes...)
	sortBackToFront(sorted, cam.Position)

	gl.BindFramebuffer(gl.FRAMEBUFFER, d.hdr.FBO)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.DepthMask(false)
	defer func() {
		gl.DepthMask(true)
		gl.Disable(gl.BLEND)
	}()
	for _, n := range sorted {
		if err := d.drawNode(n); err != nil {
			return err
		}
	}
	return nil
}

// EndCamera tone-maps the HDR buffer to the default framebuffer.
func (d *Device) EndCamera(cam *scene.Camera) error {
	w, h := d.viewportW, d.viewportH
	if w == 0 || h == 0 {
		w, h = d.hdr.Width, d.hdr.Height
	}
	d.hdr.Blit(w, h)
	return nil
}

// sortBackToFront orders nodes by decreasing distance from eye.
func sortBackToFront(nodes []*scene.Node, eye math.Vec3) {
	dist := func(n *scene.Node) float32 {
		return n.GetWorldMatrix().Translation().Sub(eye).LengthSqr()
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return dist(nodes[i]) > dist(nodes[j])
	})
}

// ── DrawMesh ──────────────────────────────────────────────────────────────────

func (r *raster) drawNode(n *scene.Node) error {
	gpu := r.ensureUploaded(n.Mesh)
	if gpu == nil {
		return nil
	}
	model := n.GetWorldMatrix()
	mvp := model.Mul(r.view).Mul(r.proj)

	gl.UseProgram(r.program)
	gl.UniformMatrix4fv(r.mvpLoc, 1, false, (*float32)(unsafe.Pointer(&mvp[0][0])))
	gl.UniformMatrix4fv(r.modelLoc, 1, false, (*float32)(unsafe.Pointer(&model[0][0])))

	mat := n.Mesh.Material
	if mat == nil {
		mat = scene.DefaultMaterial()
	}
	if err := r.applyMaterial(mat); err != nil {
		return err
	}
	if mat.DoubleSided {
		gl.Disable(gl.CULL_FACE)
		defer gl.Enable(gl.CULL_FACE)
	}

	gl.BindVertexArray(gpu.VAO)
	gl.DrawElements(gl.TRIANGLES, gpu.IndexCount, gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)
	return nil
}

func (r *raster) applyMaterial(mat *scene.Material) error {
	gl.Uniform4f(r.albedoLoc, mat.Albedo.R, mat.Albedo.G, mat.Albedo.B, mat.Albedo.A)
	gl.Uniform3f(r.emissiveLoc, mat.EmissiveColor.R, mat.EmissiveColor.G, mat.EmissiveColor.B)
	gl.Uniform1f(r.metallicLoc, mat.Metallic)
	gl.Uniform1f(r.roughnessLoc, mat.Roughness)
	if mat.AlphaMode == scene.AlphaMask {
		gl.Uniform1f(r.cutoffLoc, mat.AlphaCutoff)
	} else {
		gl.Uniform1f(r.cutoffLoc, 0)
	}

	// Albedo texture (unit 0)
	tex := mat.AlbedoTexture
	if tex == nil {
		gl.Uniform1i(r.hasTextureLoc, 0)
		return nil
	}
	if tex.GLID == 0 {
		if err := UploadTexture(tex); err != nil {
			return err
		}
		r.textures[tex] = struct{}{}
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, tex.GLID)
	gl.Uniform1i(r.hasTextureLoc, 1)
	return nil
}

// ── Resource management ───────────────────────────────────────────────────────

// ReleaseMesh frees GPU buffers for the given mesh.
func (r *raster) ReleaseMesh(mesh *scene.Mesh) {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		gl.DeleteVertexArrays(1, &gpu.VAO)
		gl.DeleteBuffers(1, &gpu.VBO)
		gl.DeleteBuffers(1, &gpu.EBO)
		delete(r.gpuMeshes, mesh)
		mesh.GPUData = nil
	}
}

func (r *raster) destroy() {
	for mesh := range r.gpuMeshes {
		r.ReleaseMesh(mesh)
	}
	for tex := range r.textures {
		DeleteTexture(tex)
	}
	r.textures = nil
	if r.hdr != nil {
		r.hdr.Destroy()
		r.hdr = nil
	}
	if r.sky != nil {
		r.sky.Destroy()
		r.sky = nil
	}
	if r.program != 0 {
		gl.DeleteProgram(r.program)
		r.program = 0
	}
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// ensureUploaded uploads vertex/index data if not already done.
func (r *raster) ensureUploaded(mesh *scene.Mesh) *GPUMesh {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		return gpu
	}
	if mesh == nil || len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil
	}

	stride := int32(unsafe.Sizeof(core.Vertex{}))
	gpu := &GPUMesh{IndexCount: int32(len(mesh.Indices))}

	gl.GenVertexArrays(1, &gpu.VAO)
	gl.GenBuffers(1, &gpu.VBO)
	gl.BindVertexArray(gpu.VAO)

	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.VBO)
	gl.BufferData(gl.ARRAY_BUFFER,
		len(mesh.Vertices)*int(stride),
		gl.Ptr(mesh.Vertices),
		gl.STATIC_DRAW)

	var v core.Vertex
	posOff := int(unsafe.Offsetof(v.Position))
	normOff := int(unsafe.Offsetof(v.Normal))
	uvOff := int(unsafe.Offsetof(v.UV))
	colorOff := int(unsafe.Offsetof(v.Color))

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(posOff))

	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(normOff))

	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 2, gl.FLOAT, false, stride, gl.PtrOffset(uvOff))

	gl.EnableVertexAttribArray(3)
	gl.VertexAttribPointer(3, 4, gl.FLOAT, false, stride, gl.PtrOffset(colorOff))

	gl.GenBuffers(1, &gpu.EBO)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.EBO)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER,
		len(mesh.Indices)*4,
		gl.Ptr(mesh.Indices),
		gl.STATIC_DRAW)

	gl.BindVertexArray(0)

	r.gpuMeshes[mesh] = gpu
	mesh.GPUData = gpu
	return gpu
}

// ── Shader helpers ────────────────────────────────────────────────────────────

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("link failed: %v", log)
	}

	gl.DeleteShader(vert)
	gl.DeleteShader(frag)
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("compile failed: %v", log)
	}
	return shader, nil
}
