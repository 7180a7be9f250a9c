package webgpu

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Bindings of the tracer's single bind group.
const (
	bindOutput    = 0
	bindNodes     = 1
	bindTriangles = 2
	bindInstances = 3
	bindParams    = 4
	bindEnv       = 5
)

// envHeaderWords precede the environment pixels: width, height.
const envHeaderWords = 2

// tracerWGSL walks the packed two-level BVH with explicit stacks and
// writes linear color with coverage alpha into out_pixels, one vec4 per
// pixel in row order. It follows the OpenGL compute kernel step for step;
// the environment map arrives as packed RGBA8 words and is sampled
// nearest.
const tracerWGSL = `
struct Node {
    bmin: vec3<f32>,
    first: i32,
    bmax: vec3<f32>,
    count: i32,
}

struct Tri {
    v0: vec4<f32>,
    v1: vec4<f32>,
    v2: vec4<f32>,
}

struct Instance {
    world_to_object: mat4x4<f32>,
    root: i32,
    mask: u32,
    flags: u32,
    pad: u32,
    albedo: vec4<f32>,
    emissive: vec4<f32>,
    surface: vec4<f32>,
    alpha: vec4<f32>,
}

struct Params {
    camera_to_world: mat4x4<f32>,
    inverse_projection: mat4x4<f32>,
    sun_direction: vec4<f32>,
    sun_color: vec4<f32>,
    top_sky: vec4<f32>,
    bottom_sky: vec4<f32>,
    near_clip: f32,
    clip_distance: f32,
    pixel_spread_angle: f32,
    indirect_sky: f32,
    sun_spread: f32,
    frame_index: i32,
    max_reflect: i32,
    max_indirect: i32,
    max_refract: i32,
    shadow_samples: i32,
    reflection_mode: i32,
    cull_backfaces: i32,
    use_sky_box: i32,
    front_ccw: i32,
    width: i32,
    height: i32,
    node_count: i32,
    instance_count: i32,
    pad0: i32,
    pad1: i32,
}

struct Hit {
    t: f32,
    inst: i32,
    front: bool,
    normal: vec3<f32>,
}

@group(0) @binding(0) var<storage, read_write> out_pixels: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> nodes: array<Node>;
@group(0) @binding(2) var<storage, read> tris: array<Tri>;
@group(0) @binding(3) var<storage, read> instances: array<Instance>;
@group(0) @binding(4) var<uniform> params: Params;
@group(0) @binding(5) var<storage, read> env: array<u32>;

const MASK_PRIMARY: u32 = 1u;
const MASK_SHADOW: u32 = 2u;
const FLAG_DOUBLESIDED: u32 = 1u;
const FLAG_TRANSPARENT: u32 = 2u;
const FLAG_ALPHAMASK: u32 = 4u;
const EPS: f32 = 1e-3;
const PI: f32 = 3.14159265;
const STACK: i32 = 64;
const AMBIENT_SCALE: f32 = 0.3;
const MAX_BOUNCES: i32 = 16;

var<private> rng_state: u32;

fn pcg(v: u32) -> u32 {
    let state = v * 747796405u + 2891336453u;
    let word = ((state >> ((state >> 28u) + 4u)) ^ state) * 277803737u;
    return (word >> 22u) ^ word;
}

fn rand01() -> f32 {
    rng_state = pcg(rng_state);
    return f32(rng_state) / 4294967296.0;
}

fn hit_box(o: vec3<f32>, inv_d: vec3<f32>, bmin: vec3<f32>, bmax: vec3<f32>, t_min: f32, t_max: f32) -> bool {
    let t0 = (bmin - o) * inv_d;
    let t1 = (bmax - o) * inv_d;
    let lo = min(t0, t1);
    let hi = max(t0, t1);
    let t_enter = max(max(lo.x, lo.y), max(lo.z, t_min));
    let t_exit = min(min(hi.x, hi.y), min(hi.z, t_max));
    return t_enter <= t_exit;
}

// Moller-Trumbore. Returns (t, u, v, det); t is negative on a miss.
fn hit_tri(o: vec3<f32>, d: vec3<f32>, tri: Tri, t_min: f32, t_max: f32) -> vec4<f32> {
    let miss = vec4<f32>(-1.0, 0.0, 0.0, 0.0);
    let e1 = tri.v1.xyz - tri.v0.xyz;
    let e2 = tri.v2.xyz - tri.v0.xyz;
    let p = cross(d, e2);
    let det = dot(e1, p);
    if (abs(det) < 1e-9) {
        return miss;
    }
    let inv = 1.0 / det;
    let s = o - tri.v0.xyz;
    let u = dot(s, p) * inv;
    if (u < 0.0 || u > 1.0) {
        return miss;
    }
    let q = cross(s, e1);
    let v = dot(d, q) * inv;
    if (v < 0.0 || u + v > 1.0) {
        return miss;
    }
    let t = dot(e2, q) * inv;
    if (t < t_min || t >= t_max) {
        return miss;
    }
    return vec4<f32>(t, u, v, det);
}

fn trace_instance(idx: i32, o: vec3<f32>, d: vec3<f32>, t_min: f32, best: ptr<function, f32>, any_hit: bool, cull_back: bool, hit: ptr<function, Hit>) -> bool {
    let inst = instances[idx];
    let lo = (inst.world_to_object * vec4<f32>(o, 1.0)).xyz;
    let ld = (inst.world_to_object * vec4<f32>(d, 0.0)).xyz;
    let inv_d = vec3<f32>(1.0) / ld;
    let cull = cull_back && (inst.flags & FLAG_DOUBLESIDED) == 0u;
    let cutout = FLAG_TRANSPARENT | FLAG_ALPHAMASK;
    if ((inst.flags & cutout) == cutout && inst.albedo.a < inst.alpha.x) {
        return false;
    }

    var found = false;
    var stack: array<i32, 64>;
    var sp: i32 = 0;
    stack[0] = inst.root;
    sp = 1;
    while (sp > 0) {
        sp = sp - 1;
        let ni = stack[sp];
        let n = nodes[ni];
        if (!hit_box(lo, inv_d, n.bmin, n.bmax, t_min, *best)) {
            continue;
        }
        if (n.count == 0) {
            if (sp + 2 > STACK) {
                continue;
            }
            stack[sp] = n.first;
            stack[sp + 1] = ni + 1;
            sp = sp + 2;
            continue;
        }
        for (var i = n.first; i < n.first + n.count; i = i + 1) {
            let tri = tris[i];
            let r = hit_tri(lo, ld, tri, t_min, *best);
            if (r.x < 0.0) {
                continue;
            }
            let front = (r.w > 0.0) == (params.front_ccw != 0);
            if (cull && !front) {
                continue;
            }
            var nrm = cross(tri.v1.xyz - tri.v0.xyz, tri.v2.xyz - tri.v0.xyz);
            if (params.front_ccw == 0) {
                nrm = -nrm;
            }
            *best = r.x;
            (*hit).t = r.x;
            (*hit).inst = idx;
            (*hit).front = front;
            (*hit).normal = nrm;
            found = true;
            if (any_hit) {
                return true;
            }
        }
    }
    return found;
}

fn trace_ray(o: vec3<f32>, d: vec3<f32>, t_min: f32, t_max: f32, mask: u32, any_hit: bool, cull_back: bool, hit: ptr<function, Hit>) -> bool {
    (*hit).t = t_max;
    (*hit).inst = -1;
    (*hit).front = true;
    (*hit).normal = vec3<f32>(0.0, 1.0, 0.0);
    if (params.instance_count == 0) {
        return false;
    }

    let inv_d = vec3<f32>(1.0) / d;
    var best = t_max;
    var found = false;
    var stack: array<i32, 64>;
    var sp: i32 = 1;
    stack[0] = 0;
    while (sp > 0) {
        sp = sp - 1;
        let ni = stack[sp];
        let n = nodes[ni];
        if (!hit_box(o, inv_d, n.bmin, n.bmax, t_min, best)) {
            continue;
        }
        if (n.count == 0) {
            if (sp + 2 > STACK) {
                continue;
            }
            stack[sp] = n.first;
            stack[sp + 1] = ni + 1;
            sp = sp + 2;
            continue;
        }
        for (var i = n.first; i < n.first + n.count; i = i + 1) {
            if ((instances[i].mask & mask) == 0u) {
                continue;
            }
            if (trace_instance(i, o, d, t_min, &best, any_hit, cull_back, hit)) {
                found = true;
                if (any_hit) {
                    return true;
                }
            }
        }
    }
    return found;
}

fn sky(d: vec3<f32>) -> vec3<f32> {
    if (params.use_sky_box != 0) {
        let w = env[0];
        let h = env[1];
        if (w > 0u && h > 0u) {
            let u = 0.5 + atan2(d.x, -d.z) / (2.0 * PI);
            let v = acos(clamp(d.y, -1.0, 1.0)) / PI;
            let x = min(u32(fract(u) * f32(w)), w - 1u);
            let y = min(u32(v * f32(h)), h - 1u);
            return unpack4x8unorm(env[2u + y * w + x]).rgb;
        }
    }
    return mix(params.bottom_sky.rgb, params.top_sky.rgb, clamp(d.y * 0.5 + 0.5, 0.0, 1.0));
}

fn tangent(n: vec3<f32>) -> vec3<f32> {
    var up = vec3<f32>(0.0, 1.0, 0.0);
    if (abs(n.y) > 0.99) {
        up = vec3<f32>(1.0, 0.0, 0.0);
    }
    return normalize(cross(up, n));
}

fn cone_sample(axis: vec3<f32>, half_angle: f32) -> vec3<f32> {
    let z = 1.0 - rand01() * (1.0 - cos(half_angle));
    let s = sqrt(max(0.0, 1.0 - z * z));
    let phi = 2.0 * PI * rand01();
    let t = tangent(axis);
    let b = cross(axis, t);
    return normalize(t * s * cos(phi) + b * s * sin(phi) + axis * z);
}

fn cosine_sample(n: vec3<f32>) -> vec3<f32> {
    let phi = 2.0 * PI * rand01();
    let r2 = rand01();
    let r = sqrt(r2);
    let t = tangent(n);
    let b = cross(n, t);
    return normalize(t * r * cos(phi) + b * r * sin(phi) + n * sqrt(1.0 - r2));
}

fn shadow(p: vec3<f32>) -> f32 {
    if (params.shadow_samples <= 0) {
        return 1.0;
    }
    var lit = 0;
    for (var i = 0; i < params.shadow_samples; i = i + 1) {
        var dir = params.sun_direction.xyz;
        if (params.sun_spread > 0.0) {
            dir = cone_sample(dir, params.sun_spread);
        }
        var h: Hit;
        if (!trace_ray(p, dir, EPS, params.clip_distance, MASK_SHADOW, true, false, &h)) {
            lit = lit + 1;
        }
    }
    return f32(lit) / f32(params.shadow_samples);
}

fn schlick(f0: f32, cosi: f32) -> f32 {
    let c = 1.0 - clamp(cosi, 0.0, 1.0);
    return f0 + (1.0 - f0) * c * c * c * c * c;
}

fn reflectance(inst: Instance, base: vec3<f32>, cosi: f32) -> f32 {
    let metallic = inst.surface.x;
    let gloss = 1.0 - inst.surface.y;
    let metal = metallic * gloss;
    let f0 = mix(vec3<f32>(0.04), base, metallic);
    let f = schlick((f0.x + f0.y + f0.z) / 3.0, cosi) * gloss;
    if (params.reflection_mode == 1) {
        return metal;
    }
    if (params.reflection_mode == 2) {
        return f;
    }
    if (params.reflection_mode == 3) {
        return max(metal, f);
    }
    return 0.0;
}

fn shade_local(inst: Instance, p: vec3<f32>, n: vec3<f32>, bounce: bool) -> vec3<f32> {
    let base = inst.albedo.rgb;
    let above = p + n * EPS;
    var direct = vec3<f32>(0.0);
    let ndotl = dot(n, params.sun_direction.xyz);
    if (ndotl > 0.0) {
        direct = params.sun_color.rgb * ndotl * shadow(above);
    }

    var ambient = sky(n) * params.indirect_sky * AMBIENT_SCALE;
    if (bounce) {
        var h: Hit;
        let dir = cosine_sample(n);
        if (trace_ray(above, dir, EPS, params.clip_distance, MASK_PRIMARY, false, params.cull_backfaces != 0, &h)) {
            let other = instances[h.inst];
            ambient = other.albedo.rgb * sky(vec3<f32>(0.0, 1.0, 0.0)) * params.indirect_sky * AMBIENT_SCALE + other.emissive.rgb;
        } else {
            ambient = sky(dir);
        }
        ambient = ambient * params.indirect_sky;
    }
    return base * (direct + ambient) * (1.0 - inst.surface.x) + inst.emissive.rgb;
}

fn world_normal(h: Hit) -> vec3<f32> {
    let m = instances[h.inst].world_to_object;
    let n = normalize((vec4<f32>(h.normal, 0.0) * m).xyz);
    if (h.front) {
        return n;
    }
    return -n;
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let px = vec2<i32>(gid.xy);
    if (px.x >= params.width || px.y >= params.height) {
        return;
    }
    let idx = px.y * params.width + px.x;
    rng_state = pcg(u32(idx) ^ pcg(u32(params.frame_index)));

    let ndc = vec2<f32>((f32(px.x) + 0.5) / f32(params.width) * 2.0 - 1.0,
                        1.0 - (f32(px.y) + 0.5) / f32(params.height) * 2.0);
    let view = params.inverse_projection * vec4<f32>(ndc, 1.0, 1.0);
    var origin = (params.camera_to_world * vec4<f32>(0.0, 0.0, 0.0, 1.0)).xyz;
    var dir = normalize((params.camera_to_world * vec4<f32>(view.xyz / view.w, 0.0)).xyz);
    let cull = params.cull_backfaces != 0;

    var hit: Hit;
    if (!trace_ray(origin, dir, params.near_clip, params.clip_distance, MASK_PRIMARY, false, cull, &hit)) {
        out_pixels[idx] = vec4<f32>(0.0);
        return;
    }

    var color = vec3<f32>(0.0);
    var throughput = vec3<f32>(1.0);
    var reflects = 0;
    var refracts = 0;
    var indirect = 0;
    for (var bounce_idx = 0; bounce_idx < MAX_BOUNCES; bounce_idx = bounce_idx + 1) {
        let inst = instances[hit.inst];
        let p = origin + dir * hit.t;
        let n = world_normal(hit);
        let base = inst.albedo.rgb;
        let bounce = indirect < params.max_indirect;
        if (bounce) {
            indirect = indirect + 1;
        }
        let surface = shade_local(inst, p, n, bounce);

        var kt = 0.0;
        if (inst.surface.z > 0.0 && refracts < params.max_refract) {
            kt = inst.surface.z;
        }
        var kr = 0.0;
        if (reflects < params.max_reflect) {
            kr = reflectance(inst, base, -dot(dir, n));
        }
        color = color + throughput * surface * (1.0 - kt);

        var next: vec3<f32>;
        var start: vec3<f32>;
        if (kt > 0.0) {
            var ior = inst.surface.w;
            if (ior <= 0.0) {
                ior = 1.0;
            }
            var eta = ior;
            if (hit.front) {
                eta = 1.0 / ior;
            }
            let t = refract(dir, n, eta);
            refracts = refracts + 1;
            if (dot(t, t) == 0.0) {
                next = reflect(dir, n);
                start = p + n * EPS;
            } else {
                next = normalize(t);
                start = p - n * EPS;
            }
            throughput = throughput * base * kt;
        } else if (kr > 0.0) {
            reflects = reflects + 1;
            next = normalize(reflect(dir, n));
            start = p + n * EPS;
            throughput = throughput * mix(vec3<f32>(1.0), base, inst.surface.x) * kr;
        } else {
            break;
        }

        origin = start;
        dir = next;
        if (!trace_ray(origin, dir, EPS, params.clip_distance, MASK_PRIMARY, false, cull, &hit)) {
            color = color + throughput * sky(dir);
            break;
        }
    }
    out_pixels[idx] = vec4<f32>(color, 1.0);
}
`

// compileTracer translates tracerWGSL to SPIR-V words.
func compileTracer() ([]uint32, error) {
	spirv, err := naga.Compile(tracerWGSL)
	if err != nil {
		return nil, fmt.Errorf("webgpu: compile tracer: %w", err)
	}
	return spirvWords(spirv), nil
}

// spirvWords reassembles little-endian SPIR-V bytes into words. A trailing
// partial word is dropped.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
