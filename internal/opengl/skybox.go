package opengl

import (
	"fmt"
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"

	"raytrace-engine/core"
	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// Skybox draws the scene background on an inverted unit cube: the
// equirectangular environment map when the scene has one, else the
// ground-to-sky gradient the tracer also uses on a miss.
// The vertex shader uses the xyww trick (gl_Position.z = gl_Position.w)
// so every fragment lands at NDC depth 1.0, behind scene geometry.
type Skybox struct {
	vao  uint32
	vbo  uint32
	prog uint32

	vpLoc     int32
	topLoc    int32
	bottomLoc int32
	envLoc    int32
	useEnvLoc int32
}

// ── Shaders ───────────────────────────────────────────────────────────────────

// skyVertSrc transforms cube vertices with a view matrix that has its
// translation stripped.
const skyVertSrc = `
#version 430 core
layout(location = 0) in vec3 inPosition;

uniform mat4 skyVP;

out vec3 fragDir;

void main() {
    fragDir = inPosition;
    vec4 pos = skyVP * vec4(inPosition, 1.0);
    gl_Position = pos.xyww;
}
` + "\x00"

const skyFragSrc = `
#version 430 core
in vec3 fragDir;
out vec4 outColor;

uniform vec3      top;
uniform vec3      bottom;
uniform sampler2D envTex;
uniform bool      useEnv;

const float PI = 3.14159265;

void main() {
    vec3 d = normalize(fragDir);
    vec3 color;
    if (useEnv) {
        float u = 0.5 + atan(d.x, -d.z) / (2.0 * PI);
        float v = acos(clamp(d.y, -1.0, 1.0)) / PI;
        color = texture(envTex, vec2(u, v)).rgb;
    } else {
        color = mix(bottom, top, clamp(d.y * 0.5 + 0.5, 0.0, 1.0));
    }
    outColor = vec4(color, 1.0);
}
` + "\x00"

// ── Cube geometry ─────────────────────────────────────────────────────────────

// 36 positions (xyz) for a unit cube. Face culling is disabled during
// draw so the inside faces show.
var skyboxVerts = []float32{
	// -Z face
	-1, -1, -1, 1, 1, -1, 1, -1, -1,
	1, 1, -1, -1, -1, -1, -1, 1, -1,
	// +Z face
	-1, -1, 1, 1, -1, 1, 1, 1, 1,
	1, 1, 1, -1, 1, 1, -1, -1, 1,
	// -X face
	-1, 1, 1, -1, 1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, 1, -1, 1, 1,
	// +X face
	1, 1, 1, 1, -1, -1, 1, 1, -1,
	1, -1, -1, 1, 1, 1, 1, -1, 1,
	// -Y face
	-1, -1, -1, 1, -1, -1, 1, -1, 1,
	1, -1, 1, -1, -1, 1, -1, -1, -1,
	// +Y face
	-1, 1, -1, 1, 1, 1, 1, 1, -1,
	1, 1, 1, -1, 1, -1, -1, 1, 1,
}

// ── Constructor ───────────────────────────────────────────────────────────────

func NewSkybox() (*Skybox, error) {
	prog, err := newProgram(skyVertSrc, skyFragSrc)
	if err != nil {
		return nil, fmt.Errorf("skybox shader: %w", err)
	}

	sb := &Skybox{
		prog:      prog,
		vpLoc:     gl.GetUniformLocation(prog, gl.Str("skyVP\x00")),
		topLoc:    gl.GetUniformLocation(prog, gl.Str("top\x00")),
		bottomLoc: gl.GetUniformLocation(prog, gl.Str("bottom\x00")),
		envLoc:    gl.GetUniformLocation(prog, gl.Str("envTex\x00")),
		useEnvLoc: gl.GetUniformLocation(prog, gl.Str("useEnv\x00")),
	}

	gl.GenVertexArrays(1, &sb.vao)
	gl.GenBuffers(1, &sb.vbo)
	gl.BindVertexArray(sb.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, sb.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(skyboxVerts)*4, gl.Ptr(skyboxVerts), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 12, gl.PtrOffset(0))
	gl.BindVertexArray(0)

	return sb, nil
}

// ── Draw ──────────────────────────────────────────────────────────────────────

// SkyViewProjection strips the translation from view before combining it
// with proj, so the cube stays centred on the eye.
func SkyViewProjection(view, proj math.Mat4) math.Mat4 {
	view[3][0], view[3][1], view[3][2] = 0, 0, 0
	return view.Mul(proj)
}

// Draw renders the sky. env may be nil; an env without a GL object is
// uploaded first.
func (sb *Skybox) Draw(skyVP math.Mat4, top, bottom core.Color, env *scene.Texture) error {
	if env != nil && env.GLID == 0 {
		if err := UploadTexture(env); err != nil {
			return fmt.Errorf("skybox: %w", err)
		}
	}

	// LEQUAL so depth=1.0 fragments pass against the cleared depth value;
	// no depth writes.
	gl.DepthFunc(gl.LEQUAL)
	gl.DepthMask(false)
	gl.Disable(gl.CULL_FACE)

	gl.UseProgram(sb.prog)
	gl.UniformMatrix4fv(sb.vpLoc, 1, false, (*float32)(unsafe.Pointer(&skyVP[0][0])))
	gl.Uniform3f(sb.topLoc, top.R, top.G, top.B)
	gl.Uniform3f(sb.bottomLoc, bottom.R, bottom.G, bottom.B)
	gl.Uniform1i(sb.envLoc, 0)
	if env != nil {
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, env.GLID)
		gl.Uniform1i(sb.useEnvLoc, 1)
	} else {
		gl.Uniform1i(sb.useEnvLoc, 0)
	}

	gl.BindVertexArray(sb.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 36)
	gl.BindVertexArray(0)

	gl.Enable(gl.CULL_FACE)
	gl.DepthMask(true)
	gl.DepthFunc(gl.LESS)
	return nil
}

// Destroy frees all GPU resources owned by this skybox.
func (sb *Skybox) Destroy() {
	gl.DeleteVertexArrays(1, &sb.vao)
	gl.DeleteBuffers(1, &sb.vbo)
	gl.DeleteProgram(sb.prog)
}
