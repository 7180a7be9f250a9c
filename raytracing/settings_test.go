package raytracing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"raytrace-engine/core"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Enable || s.UseSkybox || s.ForceDoubleSided {
		t.Fatal("flags should default to off")
	}
	if s.MaxReflections != 2 || s.MaxIndirect != 0 || s.MaxRefractions != 2 {
		t.Fatalf("depths = %d/%d/%d", s.MaxReflections, s.MaxIndirect, s.MaxRefractions)
	}
	if s.ShadowSamples != 1 || s.ReflectionMode != 1 || s.IndirectSkyStrength != 1 || s.SunSpread != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.SkyColor != core.ColorBlue || s.FloorColor != core.ColorGray {
		t.Fatalf("sky colors = %+v %+v", s.SkyColor, s.FloorColor)
	}
	if s.IsActive() {
		t.Fatal("default settings must not be active")
	}
}

func TestSettingsClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Settings
		want func(Settings) bool
	}{
		{"depths high", Settings{MaxReflections: 20, MaxIndirect: 9, MaxRefractions: 100},
			func(s Settings) bool { return s.MaxReflections == 8 && s.MaxIndirect == 8 && s.MaxRefractions == 8 }},
		{"depths low", Settings{MaxReflections: -1, MaxIndirect: -5, MaxRefractions: -2},
			func(s Settings) bool { return s.MaxReflections == 0 && s.MaxIndirect == 0 && s.MaxRefractions == 0 }},
		{"shadows", Settings{ShadowSamples: 9},
			func(s Settings) bool { return s.ShadowSamples == 4 }},
		{"reflection mode", Settings{ReflectionMode: 7},
			func(s Settings) bool { return s.ReflectionMode == 3 }},
		{"sky strength", Settings{IndirectSkyStrength: 3.5},
			func(s Settings) bool { return s.IndirectSkyStrength == 2 }},
		{"sun spread", Settings{SunSpread: -1},
			func(s Settings) bool { return s.SunSpread == 0 }},
		{"sun spread high", Settings{SunSpread: 11},
			func(s Settings) bool { return s.SunSpread == 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); !tt.want(got) {
				t.Fatalf("Clamp() = %+v", got)
			}
		})
	}
}

func TestDecodeSettingsKeepsDefaults(t *testing.T) {
	s, err := DecodeSettings(strings.NewReader(`{"enable": true, "maxReflections": 12}`))
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsActive() {
		t.Fatal("enable not read")
	}
	if s.MaxReflections != 8 {
		t.Fatalf("maxReflections = %d, want clamped 8", s.MaxReflections)
	}
	if s.ShadowSamples != 1 || s.MaxRefractions != 2 {
		t.Fatal("missing fields should keep defaults")
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rt.json")
	if err := os.WriteFile(path, []byte(`{"enable":true,"useSkybox":true,"skyColor":{"R":1,"G":0,"B":0,"A":1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if !s.UseSkybox || s.SkyColor.R != 1 || s.SkyColor.B != 0 {
		t.Fatalf("settings = %+v", s)
	}

	if _, err := LoadSettings(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := LoadSettings(bad); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestNilSettingsInactive(t *testing.T) {
	var s *Settings
	if s.IsActive() {
		t.Fatal("nil settings must be inactive")
	}
}
