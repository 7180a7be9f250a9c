package scene

import (
	"bufio"
	"fmt"
	"io"
	stdmath "math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"raytrace-engine/core"
	"raytrace-engine/internal/logging"
	"raytrace-engine/math"
)

// objCorner references one corner of a face; -1 marks an absent index.
type objCorner struct{ v, vt, vn int }

type objGroup struct {
	name     string
	material string
	tris     [][3]objCorner
}

// LoadOBJ reads a Wavefront .obj file into one Mesh per object or group.
// Polygons are fan-triangulated. Materials from "mtllib" files are mapped
// onto the tracer's material model: dissolve below 1 becomes alpha blend,
// illum 4, 6, 7 and 9 become transmissive.
func LoadOBJ(path string) ([]*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj %q: %w", path, err)
	}
	defer f.Close()
	return parseOBJ(f, filepath.Dir(path), path)
}

func parseOBJ(r io.Reader, dir, name string) ([]*Mesh, error) {
	log := logging.Logger().With("file", name)

	var (
		positions []math.Vec3
		normals   []math.Vec3
		uvs       []math.Vec2
		groups    []*objGroup
	)
	materials := map[string]*Material{}
	cur := &objGroup{name: "default"}

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		args := fields[1:]

		switch fields[0] {
		case "v":
			v, err := parseFloats(args, 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, line, err)
			}
			positions = append(positions, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
		case "vn":
			v, err := parseFloats(args, 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, line, err)
			}
			normals = append(normals, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
		case "vt":
			v, err := parseFloats(args, 2)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, line, err)
			}
			uvs = append(uvs, math.Vec2{X: v[0], Y: v[1]})
		case "o", "g":
			if len(cur.tris) > 0 {
				groups = append(groups, cur)
			}
			cur = &objGroup{name: strings.Join(args, " "), material: cur.material}
			if cur.name == "" {
				cur.name = "default"
			}
		case "usemtl":
			if len(args) > 0 {
				cur.material = args[0]
			}
		case "mtllib":
			for _, lib := range args {
				loaded, err := loadMTL(filepath.Join(dir, lib), dir)
				if err != nil {
					log.Warn("obj: material library skipped", "lib", lib, "err", err)
					continue
				}
				for k, m := range loaded {
					materials[k] = m
				}
			}
		case "f":
			if len(args) < 3 {
				return nil, fmt.Errorf("%s:%d: face needs at least 3 vertices", name, line)
			}
			corners := make([]objCorner, len(args))
			for i, tok := range args {
				c, err := parseCorner(tok, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", name, line, err)
				}
				corners[i] = c
			}
			for i := 1; i+1 < len(corners); i++ {
				cur.tris = append(cur.tris, [3]objCorner{corners[0], corners[i], corners[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan obj %q: %w", name, err)
	}
	if len(cur.tris) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no geometry found in %q", name)
	}

	meshes := make([]*Mesh, 0, len(groups))
	for _, g := range groups {
		mesh := buildOBJMesh(g, positions, normals, uvs)
		if m, ok := materials[g.material]; ok {
			mesh.Material = m
		} else if g.material != "" {
			log.Debug("obj: unknown material, using default", "material", g.material)
		}
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

func parseFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("want %d components, got %d", n, len(args))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseCorner decodes "v", "v/vt", "v//vn" or "v/vt/vn". Negative indices
// count back from the last element read so far.
func parseCorner(tok string, nv, nvt, nvn int) (objCorner, error) {
	c := objCorner{v: -1, vt: -1, vn: -1}
	parts := strings.Split(tok, "/")
	counts := [3]int{nv, nvt, nvn}
	dst := [3]*int{&c.v, &c.vt, &c.vn}
	for i := 0; i < len(parts) && i < 3; i++ {
		if parts[i] == "" {
			continue
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return c, fmt.Errorf("bad face index %q", tok)
		}
		switch {
		case n > 0:
			n--
		case n < 0:
			n += counts[i]
		}
		if n < 0 || n >= counts[i] {
			return c, fmt.Errorf("face index %q out of range", tok)
		}
		*dst[i] = n
	}
	if c.v < 0 {
		return c, fmt.Errorf("face vertex %q has no position", tok)
	}
	return c, nil
}

// buildOBJMesh deduplicates corners into an indexed mesh. Groups without
// normals get area-weighted smooth normals.
func buildOBJMesh(g *objGroup, positions, normals []math.Vec3, uvs []math.Vec2) *Mesh {
	index := map[objCorner]uint32{}
	var vertices []core.Vertex
	var indices []uint32
	missingNormals := false

	for _, tri := range g.tris {
		for _, c := range tri {
			if i, ok := index[c]; ok {
				indices = append(indices, i)
				continue
			}
			v := core.Vertex{Position: positions[c.v], Color: core.ColorWhite}
			if c.vn >= 0 {
				v.Normal = normals[c.vn]
			} else {
				missingNormals = true
			}
			if c.vt >= 0 {
				v.UV = uvs[c.vt]
			}
			i := uint32(len(vertices))
			vertices = append(vertices, v)
			index[c] = i
			indices = append(indices, i)
		}
	}
	if missingNormals {
		smoothNormals(vertices, indices)
	}
	return CreateMeshFromData(g.name, vertices, indices)
}

func smoothNormals(vertices []core.Vertex, indices []uint32) {
	sum := make([]math.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		n := vertices[b].Position.Sub(vertices[a].Position).Cross(vertices[c].Position.Sub(vertices[a].Position))
		sum[a] = sum[a].Add(n)
		sum[b] = sum[b].Add(n)
		sum[c] = sum[c].Add(n)
	}
	for i := range vertices {
		if sum[i].LengthSqr() > 0 {
			vertices[i].Normal = sum[i].Normalize()
		}
	}
}

// ── MTL ──────────────────────────────────────────────────────────────────────

func loadMTL(path, dir string) (map[string]*Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMTL(f, dir)
}

func parseMTL(r io.Reader, dir string) (map[string]*Material, error) {
	mats := map[string]*Material{}
	var cur *Material

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			if len(fields) > 1 {
				cur = DefaultMaterial()
				cur.Name = fields[1]
				mats[cur.Name] = cur
			}
			continue
		}
		if cur == nil {
			continue
		}
		args := fields[1:]

		switch fields[0] {
		case "Kd":
			if v, err := parseFloats(args, 3); err == nil {
				cur.Albedo = core.Color{R: v[0], G: v[1], B: v[2], A: cur.Albedo.A}
			}
		case "Ke":
			if v, err := parseFloats(args, 3); err == nil {
				cur.EmissiveColor = core.Color{R: v[0], G: v[1], B: v[2], A: 1}
			}
		case "Ks":
			// Bright specular reads as metal.
			if v, err := parseFloats(args, 3); err == nil {
				cur.Metallic = clamp01((v[0] + v[1] + v[2]) / 3)
			}
		case "Ns":
			if v, err := parseFloats(args, 1); err == nil {
				cur.Roughness = clamp01(float32(stdmath.Sqrt(2 / (float64(v[0]) + 2))))
			}
		case "Ni":
			if v, err := parseFloats(args, 1); err == nil && v[0] > 0 {
				cur.IOR = v[0]
			}
		case "d", "Tr":
			if v, err := parseFloats(args, 1); err == nil {
				alpha := v[0]
				if fields[0] == "Tr" {
					alpha = 1 - alpha
				}
				cur.Albedo.A = clamp01(alpha)
				if cur.Albedo.A < 1 {
					cur.AlphaMode = AlphaBlend
				}
			}
		case "illum":
			switch strings.Join(args, "") {
			case "4", "6", "7", "9":
				cur.Transmission = 1
			}
		case "map_Kd":
			if len(args) > 0 {
				tex, err := LoadTexture(filepath.Join(dir, args[len(args)-1]))
				if err != nil {
					logging.Logger().Warn("mtl: texture skipped", "err", err)
					continue
				}
				cur.AlbedoTexture = tex
			}
		}
	}
	return mats, scanner.Err()
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
