package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// HDRBuffer is the off-screen target every camera renders into. The ray
// tracer composites over its color attachment before Blit tone-maps it to
// the default framebuffer. It implements raytracing.ColorTarget.
type HDRBuffer struct {
	FBO      uint32 // framebuffer object
	ColorTex uint32 // RGBA16F colour attachment
	DepthRBO uint32 // depth renderbuffer
	Width    int32
	Height   int32

	prog   uint32
	hdrLoc int32
	expLoc int32

	quadVAO uint32 // empty VAO for the fullscreen triangle

	// Exposure scales linear color before tone mapping.
	Exposure float32
}

// ── Shaders ───────────────────────────────────────────────────────────────────

// ppVertSrc draws a fullscreen triangle from gl_VertexID (no VBO needed).
const ppVertSrc = `
#version 430 core
out vec2 fragUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    fragUV      = pos[gl_VertexID] * 0.5 + 0.5;
}
` + "\x00"

// ppFragSrc: exposure, then Reinhard, then gamma 2.2.
const ppFragSrc = `
#version 430 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D hdrBuffer;
uniform float     exposure;

void main() {
    vec3 hdr = texture(hdrBuffer, fragUV).rgb * exposure;
    vec3 mapped = hdr / (vec3(1.0) + hdr);
    outColor = vec4(pow(mapped, vec3(1.0 / 2.2)), 1.0);
}
` + "\x00"

// ── Constructor ───────────────────────────────────────────────────────────────

func NewHDRBuffer(width, height int) (*HDRBuffer, error) {
	hb := &HDRBuffer{Exposure: 1.0}

	prog, err := newProgram(ppVertSrc, ppFragSrc)
	if err != nil {
		return nil, fmt.Errorf("tone-map shader: %w", err)
	}
	hb.prog = prog
	hb.hdrLoc = gl.GetUniformLocation(prog, gl.Str("hdrBuffer\x00"))
	hb.expLoc = gl.GetUniformLocation(prog, gl.Str("exposure\x00"))

	gl.UseProgram(prog)
	gl.Uniform1i(hb.hdrLoc, 0)

	gl.GenVertexArrays(1, &hb.quadVAO)

	if err := hb.allocFBO(width, height); err != nil {
		hb.Destroy()
		return nil, err
	}
	return hb, nil
}

// Size reports the attachment size in pixels.
func (hb *HDRBuffer) Size() (int, int) {
	return int(hb.Width), int(hb.Height)
}

// ── FBO lifecycle ─────────────────────────────────────────────────────────────

func (hb *HDRBuffer) allocFBO(width, height int) error {
	hb.Width = int32(width)
	hb.Height = int32(height)

	gl.GenTextures(1, &hb.ColorTex)
	gl.BindTexture(gl.TEXTURE_2D, hb.ColorTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F,
		int32(width), int32(height), 0, gl.RGBA, gl.HALF_FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenRenderbuffers(1, &hb.DepthRBO)
	gl.BindRenderbuffer(gl.RENDERBUFFER, hb.DepthRBO)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT32F, int32(width), int32(height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.GenFramebuffers(1, &hb.FBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, hb.FBO)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0,
		gl.TEXTURE_2D, hb.ColorTex, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT,
		gl.RENDERBUFFER, hb.DepthRBO)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("HDR framebuffer incomplete (0x%X)", status)
	}
	return nil
}

func (hb *HDRBuffer) freeFBO() {
	if hb.FBO != 0 {
		gl.DeleteFramebuffers(1, &hb.FBO)
		hb.FBO = 0
	}
	if hb.ColorTex != 0 {
		gl.DeleteTextures(1, &hb.ColorTex)
		hb.ColorTex = 0
	}
	if hb.DepthRBO != 0 {
		gl.DeleteRenderbuffers(1, &hb.DepthRBO)
		hb.DepthRBO = 0
	}
}

// Resize recreates the attachments at the new pixel dimensions.
func (hb *HDRBuffer) Resize(width, height int) error {
	if int32(width) == hb.Width && int32(height) == hb.Height {
		return nil
	}
	hb.freeFBO()
	return hb.allocFBO(width, height)
}

// Destroy frees all GPU resources owned by this object.
func (hb *HDRBuffer) Destroy() {
	hb.freeFBO()
	if hb.prog != 0 {
		gl.DeleteProgram(hb.prog)
		hb.prog = 0
	}
	if hb.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &hb.quadVAO)
		hb.quadVAO = 0
	}
}

// ── Blit ──────────────────────────────────────────────────────────────────────

// Blit tone-maps the HDR color into the default framebuffer, sized
// viewW x viewH.
func (hb *HDRBuffer) Blit(viewW, viewH int32) {
	gl.Disable(gl.DEPTH_TEST)
	gl.BindVertexArray(hb.quadVAO)

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, viewW, viewH)
	gl.UseProgram(hb.prog)
	gl.Uniform1f(hb.expLoc, hb.Exposure)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, hb.ColorTex)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	gl.BindVertexArray(0)
	gl.Enable(gl.DEPTH_TEST)
}

// ReadPixels returns the tone-mapped default framebuffer as RGBA8, rows
// bottom to top as GL stores them.
func ReadPixels(width, height int) []byte {
	pix := make([]byte, width*height*4)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	return pix
}
