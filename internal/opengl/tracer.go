package opengl

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// Binding points shared by the tracer program and Device.
const (
	bindOutput    = 0
	bindNodes     = 1
	bindTriangles = 2
	bindInstances = 3
	bindParams    = 4
	unitEnv       = 5
)

// ── Shaders ───────────────────────────────────────────────────────────────────

// tracerSrc is the ray-generation kernel. It walks the packed two-level
// BVH with explicit stacks, shades with the sun, the sky and a bounded
// chain of mirror or refraction bounces, and writes linear color with
// coverage alpha.
const tracerSrc = `
#version 430 core
layout(local_size_x = 8, local_size_y = 8) in;

layout(rgba16f, binding = 0) uniform writeonly image2D outImage;

struct Node     { vec3 bmin; int first; vec3 bmax; int count; };
struct Tri      { vec4 v0; vec4 v1; vec4 v2; };
struct Instance {
    mat4 worldToObject;
    int  root;
    uint mask;
    uint flags;
    uint pad;
    vec4 albedo;
    vec4 emissive;
    vec4 surface;   // metallic, roughness, transmission, ior
    vec4 alpha;     // x = cutoff
};

layout(std430, binding = 1) readonly buffer Nodes     { Node     nodes[]; };
layout(std430, binding = 2) readonly buffer Tris      { Tri      tris[]; };
layout(std430, binding = 3) readonly buffer Instances { Instance instances[]; };

layout(std140, binding = 4) uniform Params {
    mat4  cameraToWorld;
    mat4  inverseProjection;
    vec4  sunDirection;
    vec4  sunColor;
    vec4  topSky;
    vec4  bottomSky;
    float nearClip;
    float clipDistance;
    float pixelSpreadAngle;
    float indirectSky;
    float sunSpread;
    int   frameIndex;
    int   maxReflect;
    int   maxIndirect;
    int   maxRefract;
    int   shadowSamples;
    int   reflectionMode;
    int   cullBackfaces;
    int   useSkyBox;
    int   frontCCW;
    int   width;
    int   height;
    int   nodeCount;
    int   instanceCount;
};

layout(binding = 5) uniform sampler2D envTex;

const uint MASK_PRIMARY     = 1u;
const uint MASK_SHADOW      = 2u;
const uint FLAG_DOUBLESIDED = 1u;
const uint FLAG_TRANSPARENT = 2u;
const uint FLAG_ALPHAMASK   = 4u;
const float EPS   = 1e-3;
const float PI    = 3.14159265;
const int   STACK = 64;
const float AMBIENT_SCALE = 0.3;

struct Hit {
    float t;
    int   inst;
    bool  front;
    vec3  normal;   // object space, unnormalized
};

// ── Random ────────────────────────────────────────────────────────────────────

uint rngState;

uint pcg(uint v) {
    uint state = v * 747796405u + 2891336453u;
    uint word = ((state >> ((state >> 28u) + 4u)) ^ state) * 277803737u;
    return (word >> 22u) ^ word;
}

float rand01() {
    rngState = pcg(rngState);
    return float(rngState) / 4294967296.0;
}

// ── Intersection ──────────────────────────────────────────────────────────────

bool hitBox(vec3 o, vec3 invD, vec3 bmin, vec3 bmax, float tMin, float tMax) {
    vec3 t0 = (bmin - o) * invD;
    vec3 t1 = (bmax - o) * invD;
    vec3 lo = min(t0, t1);
    vec3 hi = max(t0, t1);
    float enter = max(max(lo.x, lo.y), max(lo.z, tMin));
    float exit  = min(min(hi.x, hi.y), min(hi.z, tMax));
    return enter <= exit;
}

// hitTri is Moller-Trumbore; r = (t, u, v, det).
bool hitTri(vec3 o, vec3 d, Tri tri, float tMin, float tMax, out vec4 r) {
    vec3 e1 = tri.v1.xyz - tri.v0.xyz;
    vec3 e2 = tri.v2.xyz - tri.v0.xyz;
    vec3 p = cross(d, e2);
    float det = dot(e1, p);
    if (abs(det) < 1e-9) return false;
    float inv = 1.0 / det;
    vec3 s = o - tri.v0.xyz;
    float u = dot(s, p) * inv;
    if (u < 0.0 || u > 1.0) return false;
    vec3 q = cross(s, e1);
    float v = dot(d, q) * inv;
    if (v < 0.0 || u + v > 1.0) return false;
    float t = dot(e2, q) * inv;
    if (t < tMin || t >= tMax) return false;
    r = vec4(t, u, v, det);
    return true;
}

bool traceInstance(int idx, vec3 o, vec3 d, float tMin, inout float best, bool anyHit, bool cullBack, inout Hit hit) {
    Instance inst = instances[idx];
    vec3 lo = (inst.worldToObject * vec4(o, 1.0)).xyz;
    vec3 ld = (inst.worldToObject * vec4(d, 0.0)).xyz;
    vec3 invD = 1.0 / ld;
    bool cull = cullBack && (inst.flags & FLAG_DOUBLESIDED) == 0u;
    bool masked = (inst.flags & (FLAG_TRANSPARENT | FLAG_ALPHAMASK)) == (FLAG_TRANSPARENT | FLAG_ALPHAMASK);
    if (masked && inst.albedo.a < inst.alpha.x) return false;

    bool found = false;
    int stack[STACK];
    int sp = 0;
    stack[sp++] = inst.root;
    while (sp > 0) {
        int ni = stack[--sp];
        Node n = nodes[ni];
        if (!hitBox(lo, invD, n.bmin, n.bmax, tMin, best)) continue;
        if (n.count == 0) {
            if (sp + 2 > STACK) continue;
            stack[sp++] = n.first;
            stack[sp++] = ni + 1;
            continue;
        }
        for (int i = n.first; i < n.first + n.count; i++) {
            vec4 r;
            if (!hitTri(lo, ld, tris[i], tMin, best, r)) continue;
            bool front = (r.w > 0.0) == (frontCCW != 0);
            if (cull && !front) continue;
            Tri tri = tris[i];
            vec3 nrm = cross(tri.v1.xyz - tri.v0.xyz, tri.v2.xyz - tri.v0.xyz);
            if (frontCCW == 0) nrm = -nrm;
            best = r.x;
            hit.t = r.x;
            hit.inst = idx;
            hit.front = front;
            hit.normal = nrm;
            found = true;
            if (anyHit) return true;
        }
    }
    return found;
}

// traceRay returns the closest hit among instances overlapping mask, or
// any hit when anyHit is set.
bool traceRay(vec3 o, vec3 d, float tMin, float tMax, uint mask, bool anyHit, bool cullBack, out Hit hit) {
    hit.t = tMax;
    hit.inst = -1;
    hit.front = true;
    hit.normal = vec3(0.0, 1.0, 0.0);
    if (instanceCount == 0) return false;

    vec3 invD = 1.0 / d;
    float best = tMax;
    bool found = false;
    int stack[STACK];
    int sp = 0;
    stack[sp++] = 0;
    while (sp > 0) {
        int ni = stack[--sp];
        Node n = nodes[ni];
        if (!hitBox(o, invD, n.bmin, n.bmax, tMin, best)) continue;
        if (n.count == 0) {
            if (sp + 2 > STACK) continue;
            stack[sp++] = n.first;
            stack[sp++] = ni + 1;
            continue;
        }
        for (int i = n.first; i < n.first + n.count; i++) {
            if ((instances[i].mask & mask) == 0u) continue;
            if (traceInstance(i, o, d, tMin, best, anyHit, cullBack, hit)) {
                found = true;
                if (anyHit) return true;
            }
        }
    }
    return found;
}

// ── Shading ───────────────────────────────────────────────────────────────────

vec3 sky(vec3 d) {
    if (useSkyBox != 0) {
        float u = 0.5 + atan(d.x, -d.z) / (2.0 * PI);
        float v = acos(clamp(d.y, -1.0, 1.0)) / PI;
        return texture(envTex, vec2(u, v)).rgb;
    }
    return mix(bottomSky.rgb, topSky.rgb, clamp(d.y * 0.5 + 0.5, 0.0, 1.0));
}

void basis(vec3 n, out vec3 t, out vec3 b) {
    vec3 up = abs(n.y) > 0.99 ? vec3(1.0, 0.0, 0.0) : vec3(0.0, 1.0, 0.0);
    t = normalize(cross(up, n));
    b = cross(n, t);
}

vec3 coneSample(vec3 axis, float halfAngle) {
    float z = 1.0 - rand01() * (1.0 - cos(halfAngle));
    float s = sqrt(max(0.0, 1.0 - z * z));
    float phi = 2.0 * PI * rand01();
    vec3 t, b;
    basis(axis, t, b);
    return normalize(t * s * cos(phi) + b * s * sin(phi) + axis * z);
}

vec3 cosineSample(vec3 n) {
    float phi = 2.0 * PI * rand01();
    float r2 = rand01();
    float r = sqrt(r2);
    vec3 t, b;
    basis(n, t, b);
    return normalize(t * r * cos(phi) + b * r * sin(phi) + n * sqrt(1.0 - r2));
}

float shadow(vec3 p) {
    if (shadowSamples <= 0) return 1.0;
    int lit = 0;
    for (int i = 0; i < shadowSamples; i++) {
        vec3 dir = sunDirection.xyz;
        if (sunSpread > 0.0) dir = coneSample(dir, sunSpread);
        Hit h;
        if (!traceRay(p, dir, EPS, clipDistance, MASK_SHADOW, true, false, h)) lit++;
    }
    return float(lit) / float(shadowSamples);
}

float schlick(float f0, float cosi) {
    float c = 1.0 - clamp(cosi, 0.0, 1.0);
    return f0 + (1.0 - f0) * c * c * c * c * c;
}

float reflectance(Instance inst, vec3 base, float cosi) {
    float metallic = inst.surface.x;
    float gloss = 1.0 - inst.surface.y;
    float metal = metallic * gloss;
    vec3 f0 = mix(vec3(0.04), base, metallic);
    float f = schlick((f0.x + f0.y + f0.z) / 3.0, cosi) * gloss;
    if (reflectionMode == 1) return metal;
    if (reflectionMode == 2) return f;
    if (reflectionMode == 3) return max(metal, f);
    return 0.0;
}

// shadeLocal is the surface color without the mirror and refraction terms.
vec3 shadeLocal(Instance inst, vec3 p, vec3 n, bool bounce) {
    vec3 base = inst.albedo.rgb;
    vec3 above = p + n * EPS;
    vec3 direct = vec3(0.0);
    float ndotl = dot(n, sunDirection.xyz);
    if (ndotl > 0.0) direct = sunColor.rgb * ndotl * shadow(above);

    vec3 ambient = sky(n) * indirectSky * AMBIENT_SCALE;
    if (bounce) {
        Hit h;
        vec3 dir = cosineSample(n);
        if (traceRay(above, dir, EPS, clipDistance, MASK_PRIMARY, false, cullBackfaces != 0, h)) {
            Instance hi = instances[h.inst];
            ambient = hi.albedo.rgb * sky(vec3(0.0, 1.0, 0.0)) * indirectSky * AMBIENT_SCALE + hi.emissive.rgb;
        } else {
            ambient = sky(dir);
        }
        ambient *= indirectSky;
    }
    return base * (direct + ambient) * (1.0 - inst.surface.x) + inst.emissive.rgb;
}

vec3 worldNormal(Hit h) {
    mat4 m = instances[h.inst].worldToObject;
    vec3 n = normalize((vec4(h.normal, 0.0) * m).xyz);
    return h.front ? n : -n;
}

// ── Main ──────────────────────────────────────────────────────────────────────

void main() {
    ivec2 px = ivec2(gl_GlobalInvocationID.xy);
    if (px.x >= width || px.y >= height) return;
    rngState = pcg(uint(px.y * width + px.x) ^ pcg(uint(frameIndex)));

    vec2 ndc = vec2((float(px.x) + 0.5) / float(width) * 2.0 - 1.0,
                    1.0 - (float(px.y) + 0.5) / float(height) * 2.0);
    vec4 view = inverseProjection * vec4(ndc, 1.0, 1.0);
    vec3 origin = (cameraToWorld * vec4(0.0, 0.0, 0.0, 1.0)).xyz;
    vec3 dir = normalize((cameraToWorld * vec4(view.xyz / view.w, 0.0)).xyz);

    Hit hit;
    if (!traceRay(origin, dir, nearClip, clipDistance, MASK_PRIMARY, false, cullBackfaces != 0, hit)) {
        imageStore(outImage, px, vec4(0.0));
        return;
    }

    // Secondary bounces are iterative: each step adds its local term
    // scaled by the throughput carried from the previous surface.
    vec3 color = vec3(0.0);
    vec3 throughput = vec3(1.0);
    int reflects = 0;
    int refracts = 0;
    int indirect = 0;
    for (int bounceIdx = 0; bounceIdx < 16; bounceIdx++) {
        Instance inst = instances[hit.inst];
        vec3 p = origin + dir * hit.t;
        vec3 n = worldNormal(hit);
        vec3 base = inst.albedo.rgb;
        bool bounce = indirect < maxIndirect;
        if (bounce) indirect++;
        vec3 surface = shadeLocal(inst, p, n, bounce);

        float kt = (inst.surface.z > 0.0 && refracts < maxRefract) ? inst.surface.z : 0.0;
        float kr = reflects < maxReflect ? reflectance(inst, base, -dot(dir, n)) : 0.0;
        color += throughput * surface * (1.0 - kt);

        vec3 next;
        vec3 start;
        if (kt > 0.0) {
            float ior = inst.surface.w <= 0.0 ? 1.0 : inst.surface.w;
            float eta = hit.front ? 1.0 / ior : ior;
            vec3 t = refract(dir, n, eta);
            refracts++;
            if (dot(t, t) == 0.0) {
                next = reflect(dir, n);
                start = p + n * EPS;
            } else {
                next = normalize(t);
                start = p - n * EPS;
            }
            throughput *= base * kt;
        } else if (kr > 0.0) {
            reflects++;
            next = normalize(reflect(dir, n));
            start = p + n * EPS;
            throughput *= mix(vec3(1.0), base, inst.surface.x) * kr;
        } else {
            break;
        }

        origin = start;
        dir = next;
        if (!traceRay(origin, dir, EPS, clipDistance, MASK_PRIMARY, false, cullBackfaces != 0, hit)) {
            color += throughput * sky(dir);
            break;
        }
    }
    imageStore(outImage, px, vec4(color, 1.0));
}
` + "\x00"

// compositeFragSrc blends the ray target over the HDR buffer by coverage.
const compositeFragSrc = `
#version 430 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D rayTex;

void main() {
    outColor = texture(rayTex, fragUV);
}
` + "\x00"

// ── Program helpers ───────────────────────────────────────────────────────────

func newComputeProgram(src string) (uint32, error) {
	shader, err := compileShader(src, gl.COMPUTE_SHADER)
	if err != nil {
		return 0, fmt.Errorf("compute: %w", err)
	}
	prog := gl.CreateProgram()
	gl.AttachShader(prog, shader)
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
	gl.DeleteShader(shader)
	return prog, nil
}
