package raytracing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"raytrace-engine/core"
)

// Settings is the read-only snapshot the host hands the pass each frame.
// Out-of-range values are clamped, never rejected.
type Settings struct {
	Enable           bool `json:"enable"`
	UseSkybox        bool `json:"useSkybox"`
	ForceDoubleSided bool `json:"forceDoubleSided"`

	// SunSpread widens the sun disc for soft shadows, in [0,10].
	SunSpread float32 `json:"sunSpread"`

	MaxReflections int `json:"maxReflections"`
	MaxIndirect    int `json:"maxIndirect"`
	MaxRefractions int `json:"maxRefractions"`

	IndirectSkyStrength float32 `json:"indirectSkyStrength"`
	ShadowSamples       int     `json:"shadowSamples"`
	ReflectionMode      int     `json:"reflectionMode"`

	SkyColor   core.Color `json:"skyColor"`
	FloorColor core.Color `json:"floorColor"`
}

const (
	MaxDepthLimit        = 8
	MaxShadowSamples     = 4
	MaxReflectionMode    = 3
	MaxSunSpread         = 10
	MaxIndirectSkyFactor = 2
)

// DefaultSettings returns the settings a freshly added volume starts with.
// Ray tracing is off until Enable is set.
func DefaultSettings() Settings {
	return Settings{
		SunSpread:           0,
		MaxReflections:      2,
		MaxIndirect:         0,
		IndirectSkyStrength: 1,
		MaxRefractions:      2,
		ShadowSamples:       1,
		ReflectionMode:      1,
		SkyColor:            core.ColorBlue,
		FloorColor:          core.ColorGray,
	}
}

// IsActive reports whether the pass should do any work.
func (s *Settings) IsActive() bool {
	return s != nil && s.Enable
}

// Clamp returns a copy with every ranged field pulled into range.
func (s Settings) Clamp() Settings {
	s.SunSpread = clampf(s.SunSpread, 0, MaxSunSpread)
	s.MaxReflections = clampi(s.MaxReflections, 0, MaxDepthLimit)
	s.MaxIndirect = clampi(s.MaxIndirect, 0, MaxDepthLimit)
	s.MaxRefractions = clampi(s.MaxRefractions, 0, MaxDepthLimit)
	s.IndirectSkyStrength = clampf(s.IndirectSkyStrength, 0, MaxIndirectSkyFactor)
	s.ShadowSamples = clampi(s.ShadowSamples, 0, MaxShadowSamples)
	s.ReflectionMode = clampi(s.ReflectionMode, 0, MaxReflectionMode)
	return s
}

// DecodeSettings reads JSON settings from r. Fields missing from the input
// keep their defaults and the result is clamped.
func DecodeSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s.Clamp(), nil
}

// LoadSettings reads a JSON settings file.
func LoadSettings(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open settings %q: %w", path, err)
	}
	defer f.Close()

	s, err := DecodeSettings(f)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
