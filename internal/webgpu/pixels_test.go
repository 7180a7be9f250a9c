package webgpu

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"raytrace-engine/internal/gpu"
	"raytrace-engine/scene"
)

func TestPixelBytes(t *testing.T) {
	if got := pixelBytes(3, 2); got != 96 {
		t.Fatalf("pixelBytes(3, 2) = %d, want 96", got)
	}
}

func TestDecodePixels(t *testing.T) {
	want := []float32{0, 1, -2.5, float32(math.Inf(1))}
	b := make([]byte, len(want)*4)
	for i, v := range want {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	got := decodePixels(b)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pix[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEnvBytesEmpty(t *testing.T) {
	for _, tex := range []*scene.Texture{nil, {Name: "short", Width: 2, Height: 2, Pixels: make([]byte, 4)}} {
		b := envBytes(tex)
		if len(b) != envHeaderWords*4 {
			t.Fatalf("len = %d, want header only", len(b))
		}
		for i, v := range b {
			if v != 0 {
				t.Fatalf("byte %d = %d, want zero header", i, v)
			}
		}
	}
}

func TestEnvBytesLayout(t *testing.T) {
	tex := &scene.Texture{
		Name:   "env",
		Width:  2,
		Height: 1,
		Pixels: []byte{10, 20, 30, 255, 40, 50, 60, 255},
	}
	b := envBytes(tex)
	if len(b) != 8+8 {
		t.Fatalf("len = %d, want 16", len(b))
	}
	if w := binary.LittleEndian.Uint32(b[0:]); w != 2 {
		t.Errorf("width = %d", w)
	}
	if h := binary.LittleEndian.Uint32(b[4:]); h != 1 {
		t.Errorf("height = %d", h)
	}
	// unpack4x8unorm reads the low byte as red.
	if word := binary.LittleEndian.Uint32(b[8:]); word&0xff != 10 || word>>24 != 255 {
		t.Errorf("first pixel word = %#x", word)
	}
}

func TestSPIRVWords(t *testing.T) {
	b := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00, 0xff}
	words := spirvWords(b)
	if len(words) != 2 {
		t.Fatalf("len = %d, want 2", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("magic = %#x", words[0])
	}
	if words[1] != 0x00010000 {
		t.Errorf("version = %#x", words[1])
	}
}

func TestKernelMatchesHostLayout(t *testing.T) {
	for _, want := range []string{
		"@workgroup_size(8, 8, 1)",
		"@binding(0) var<storage, read_write> out_pixels",
		"@binding(4) var<uniform> params",
		"@binding(5) var<storage, read> env",
	} {
		if !strings.Contains(tracerWGSL, want) {
			t.Errorf("kernel missing %q", want)
		}
	}
	if gpu.WorkgroupSize != 8 {
		t.Fatalf("WorkgroupSize = %d, kernel assumes 8", gpu.WorkgroupSize)
	}
}
