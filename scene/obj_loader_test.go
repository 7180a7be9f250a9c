package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const quadOBJ = `# two groups
mtllib quad.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
o front
usemtl glass
f 1/1 2/2 3/3 4/4
o back
usemtl missing
f -1 -2 -3
`

const quadMTL = `newmtl glass
Kd 0.5 0.6 0.7
d 0.25
Ni 1.33
Ns 0
illum 7
`

func TestLoadOBJ(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "quad.obj"), []byte(quadOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(quadMTL), 0o644); err != nil {
		t.Fatal(err)
	}

	meshes, err := LoadOBJ(filepath.Join(dir, "quad.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if len(meshes) != 2 {
		t.Fatalf("meshes = %d", len(meshes))
	}
	front, back := meshes[0], meshes[1]
	if front.Name != "front" || front.TriangleCount() != 2 || len(front.Vertices) != 4 {
		t.Fatalf("front = %s tris=%d verts=%d", front.Name, front.TriangleCount(), len(front.Vertices))
	}
	// Fan triangulation keeps the CCW winding, so generated normals face +Z.
	for _, v := range front.Vertices {
		if v.Normal.Z < 0.99 {
			t.Fatalf("normal %v, want +Z", v.Normal)
		}
	}

	m := front.Material
	if m == nil || m.Name != "glass" {
		t.Fatalf("material = %+v", m)
	}
	if m.AlphaMode != AlphaBlend || m.Albedo.A != 0.25 || m.Transmission != 1 || m.IOR != 1.33 {
		t.Fatalf("glass mapped to %+v", m)
	}
	if m.Roughness != 1 || !m.IsTransparent() {
		t.Fatalf("roughness %v", m.Roughness)
	}

	if back.TriangleCount() != 1 || back.Material != nil {
		t.Fatal("unknown material should fall back to the default")
	}
	if back.Vertices[0].Normal.Z > -0.99 {
		t.Fatalf("reversed face should face -Z, got %v", back.Vertices[0].Normal)
	}
}

func TestParseOBJErrors(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"empty", "# nothing\n"},
		{"bad vertex", "v 1 two 3\n"},
		{"short face", "v 0 0 0\nf 1 1\n"},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"},
		{"no position", "v 0 0 0\nf /1 /1 /1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseOBJ(strings.NewReader(tt.src), ".", tt.name); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadOBJMissingFile(t *testing.T) {
	if _, err := LoadOBJ(filepath.Join(t.TempDir(), "nope.obj")); err == nil {
		t.Fatal("expected an error")
	}
}
