package software

import (
	stdmath "math"
	"math/rand/v2"

	"raytrace-engine/math"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

const (
	rayEpsilon   = 1e-3
	ambientScale = 0.3
)

// kernel is the resolved parameter block of one dispatch. It is read-only
// while tiles are shaded.
type kernel struct {
	build *raytracing.Build

	cameraToWorld     math.Mat4
	inverseProjection math.Mat4
	near              float32
	clip              float32
	frame             int32
	cullBackfaces     bool

	maxReflect     int
	maxIndirect    int
	maxRefract     int
	shadowSamples  int
	reflectionMode int
	sunSpread      float32 // cone half-angle in radians

	top, bottom math.Vec3
	indirectSky float32
	env         *scene.Texture

	sunDir   math.Vec3 // towards the sun
	sunColor math.Vec3
}

// kernel snapshots the bound slots through the same parameter block the
// GPU kernels receive.
func (d *Device) kernel() *kernel {
	b := d.Block(0, 0)
	return &kernel{
		build:             d.bound,
		cameraToWorld:     d.Matrix(raytracing.UniformCameraToWorld),
		inverseProjection: d.Matrix(raytracing.UniformInverseProjection),
		near:              b.NearClip,
		clip:              b.ClipDistance,
		frame:             b.FrameIndex,
		cullBackfaces:     b.CullBackfaces != 0,
		maxReflect:        int(b.MaxReflect),
		maxIndirect:       int(b.MaxIndirect),
		maxRefract:        int(b.MaxRefract),
		shadowSamples:     int(b.ShadowSamples),
		reflectionMode:    int(b.ReflectionMode),
		sunSpread:         b.SunSpread,
		top:               vec3(b.TopSky),
		bottom:            vec3(b.BottomSky),
		indirectSky:       b.IndirectSky,
		env:               d.Environment(),
		sunDir:            vec3(b.SunDirection),
		sunColor:          vec3(b.SunColor),
	}
}

func vec3(v [4]float32) math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// pixelState is per-invocation scratch: the random stream and ray count.
type pixelState struct {
	rng  *rand.Rand
	rays int64
}

type depths struct {
	reflect, refract, indirect int
}

// pixel is the ray-generation program. It returns the linear color with
// alpha 1 on a primary hit and 0 on a miss.
func (k *kernel) pixel(x, y, width, height int) (math.Vec4, int64) {
	ps := &pixelState{rng: rand.New(rand.NewPCG(uint64(y*width+x), uint64(k.frame)))}

	ndcX := (float32(x)+0.5)/float32(width)*2 - 1
	ndcY := 1 - (float32(y)+0.5)/float32(height)*2
	view := math.Vec4{X: ndcX, Y: ndcY, Z: 1, W: 1}.MulMat(k.inverseProjection).ToVec3DivW()
	origin := k.cameraToWorld.Translation()
	dir := k.cameraToWorld.MulDir(view).Normalize()

	ps.rays++
	hit, ok := k.build.Trace(raytracing.NewRay(origin, dir), raytracing.TraceOptions{
		Mask:          raytracing.MaskPrimary,
		CullBackfaces: k.cullBackfaces,
		TMin:          k.near,
		TMax:          k.clip,
	})
	if !ok {
		return math.Vec4{}, ps.rays
	}
	c := k.shade(ps, dir, hit, depths{})
	return c.ToVec4(1), ps.rays
}

// radiance follows a secondary ray, returning the sky on a miss.
func (k *kernel) radiance(ps *pixelState, origin, dir math.Vec3, d depths) math.Vec3 {
	ps.rays++
	hit, ok := k.build.Trace(raytracing.NewRay(origin, dir), raytracing.TraceOptions{
		Mask:          raytracing.MaskPrimary,
		CullBackfaces: k.cullBackfaces,
		TMin:          rayEpsilon,
		TMax:          k.clip,
	})
	if !ok {
		return k.sky(dir)
	}
	return k.shade(ps, dir, hit, d)
}

func (k *kernel) shade(ps *pixelState, dir math.Vec3, hit raytracing.Hit, d depths) math.Vec3 {
	inst := &k.build.Instances[hit.Instance]
	mesh := k.build.Geometries[inst.Geometry].Mesh
	m := inst.Material
	base := albedo(m, mesh, hit)
	n := hit.Normal.Normalize()
	above := hit.Position.Add(n.Mul(rayEpsilon))

	var direct math.Vec3
	if ndotl := n.Dot(k.sunDir); ndotl > 0 {
		direct = k.sunColor.Mul(ndotl * k.shadow(ps, above))
	}

	ambient := k.sky(n).Mul(k.indirectSky * ambientScale)
	if d.indirect < k.maxIndirect {
		next := d
		next.indirect++
		bounce := cosineSample(n, ps.rng)
		ambient = k.radiance(ps, above, bounce, next).Mul(k.indirectSky)
	}

	c := base.MulVec(direct.Add(ambient)).Mul(1 - m.Metallic)
	c = c.Add(math.Vec3{X: m.EmissiveColor.R, Y: m.EmissiveColor.G, Z: m.EmissiveColor.B})

	cosi := -dir.Dot(n)
	if d.reflect < k.maxReflect {
		if kr := reflectance(k.reflectionMode, m, base, cosi); kr > 0 {
			next := d
			next.reflect++
			tint := math.Vec3One.Lerp(base, m.Metallic)
			r := k.radiance(ps, above, dir.Reflect(n).Normalize(), next)
			c = c.Add(r.MulVec(tint).Mul(kr))
		}
	}

	if m.Transmission > 0 && d.refract < k.maxRefract {
		next := d
		next.refract++
		eta := 1 / ior(m)
		if !hit.FrontFacing {
			eta = ior(m)
		}
		var through math.Vec3
		if t, ok := refract(dir, n, eta); ok {
			below := hit.Position.Sub(n.Mul(rayEpsilon))
			through = k.radiance(ps, below, t, next)
		} else {
			through = k.radiance(ps, above, dir.Reflect(n).Normalize(), next)
		}
		c = c.Lerp(through.MulVec(base), m.Transmission)
	}
	return c
}

// shadow returns the unoccluded fraction of the sun cone seen from p.
func (k *kernel) shadow(ps *pixelState, p math.Vec3) float32 {
	if k.shadowSamples <= 0 {
		return 1
	}
	lit := 0
	for i := 0; i < k.shadowSamples; i++ {
		dir := k.sunDir
		if k.sunSpread > 0 {
			dir = coneSample(dir, k.sunSpread, ps.rng)
		}
		ps.rays++
		if !k.build.Occluded(raytracing.NewRay(p, dir), raytracing.TraceOptions{
			Mask: raytracing.MaskShadow,
			TMin: rayEpsilon,
			TMax: k.clip,
		}) {
			lit++
		}
	}
	return float32(lit) / float32(k.shadowSamples)
}

// sky samples the environment map when bound, else the floor-to-sky
// gradient.
func (k *kernel) sky(dir math.Vec3) math.Vec3 {
	if k.env != nil {
		u := 0.5 + float32(stdmath.Atan2(float64(dir.X), float64(-dir.Z)))/(2*stdmath.Pi)
		v := float32(stdmath.Acos(float64(clamp(dir.Y, -1, 1)))) / stdmath.Pi
		r, g, b := k.env.SampleEquirect(u, v)
		return math.Vec3{X: r, Y: g, Z: b}
	}
	return k.bottom.Lerp(k.top, clamp(dir.Y*0.5+0.5, 0, 1))
}

// reflectance weighs the mirror term by reflection mode: 1 is metals
// only, 2 is Schlick Fresnel on every surface, 3 takes the larger of both.
func reflectance(mode int, m *scene.Material, base math.Vec3, cosi float32) float32 {
	gloss := 1 - m.Roughness
	metal := m.Metallic * gloss
	f0 := math.Vec3{X: 0.04, Y: 0.04, Z: 0.04}.Lerp(base, m.Metallic)
	f := schlick((f0.X+f0.Y+f0.Z)/3, cosi) * gloss
	switch mode {
	case 1:
		return metal
	case 2:
		return f
	case 3:
		return max(metal, f)
	}
	return 0
}

func schlick(f0, cosi float32) float32 {
	c := 1 - clamp(cosi, 0, 1)
	return f0 + (1-f0)*c*c*c*c*c
}

func ior(m *scene.Material) float32 {
	if m.IOR <= 0 {
		return 1
	}
	return m.IOR
}

// refract bends dir through a surface with normal n facing the ray.
func refract(dir, n math.Vec3, eta float32) (math.Vec3, bool) {
	cosi := -dir.Dot(n)
	k := 1 - eta*eta*(1-cosi*cosi)
	if k < 0 {
		return math.Vec3{}, false
	}
	return dir.Mul(eta).Add(n.Mul(eta*cosi - float32(stdmath.Sqrt(float64(k))))).Normalize(), true
}

func albedo(m *scene.Material, mesh *scene.Mesh, hit raytracing.Hit) math.Vec3 {
	c := math.Vec3{X: m.Albedo.R, Y: m.Albedo.G, Z: m.Albedo.B}
	if m.AlbedoTexture == nil {
		return c
	}
	i := hit.Triangle * 3
	uv := math.Vec2Barycentric(
		mesh.Vertices[mesh.Indices[i]].UV,
		mesh.Vertices[mesh.Indices[i+1]].UV,
		mesh.Vertices[mesh.Indices[i+2]].UV,
		hit.U, hit.V)
	r, g, b := m.AlbedoTexture.SampleEquirect(uv.X, uv.Y)
	return c.MulVec(math.Vec3{X: r, Y: g, Z: b})
}

// basis returns two unit vectors orthogonal to n.
func basis(n math.Vec3) (math.Vec3, math.Vec3) {
	up := math.Vec3Up
	if n.Y > 0.99 || n.Y < -0.99 {
		up = math.Vec3Right
	}
	t := up.Cross(n).Normalize()
	return t, n.Cross(t)
}

func cosineSample(n math.Vec3, rng *rand.Rand) math.Vec3 {
	r1, r2 := rng.Float64(), rng.Float64()
	phi := 2 * stdmath.Pi * r1
	r := stdmath.Sqrt(r2)
	t, b := basis(n)
	x := float32(r * stdmath.Cos(phi))
	y := float32(r * stdmath.Sin(phi))
	z := float32(stdmath.Sqrt(1 - r2))
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()
}

// coneSample picks a direction uniformly within halfAngle of axis.
func coneSample(axis math.Vec3, halfAngle float32, rng *rand.Rand) math.Vec3 {
	cosMax := stdmath.Cos(float64(halfAngle))
	z := 1 - rng.Float64()*(1-cosMax)
	sin := stdmath.Sqrt(1 - z*z)
	phi := 2 * stdmath.Pi * rng.Float64()
	t, b := basis(axis)
	return t.Mul(float32(sin * stdmath.Cos(phi))).
		Add(b.Mul(float32(sin * stdmath.Sin(phi)))).
		Add(axis.Mul(float32(z))).Normalize()
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
