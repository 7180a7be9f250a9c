package main

import (
	stdmath "math"
	"testing"
	"time"

	"raytrace-engine/core"
	"raytrace-engine/raytracing"
	"raytrace-engine/scene"
)

func near(a, b float32) bool {
	return stdmath.Abs(float64(a-b)) < 1e-4
}

func sameColor(a, b core.Color) bool {
	return near(a.R, b.R) && near(a.G, b.G) && near(a.B, b.B)
}

func TestSamplePaletteKeys(t *testing.T) {
	for _, key := range palettes {
		p := samplePalette(key.t)
		if !sameColor(p.zenith, key.zenith) || !near(p.sunIntensity, key.sunIntensity) {
			t.Errorf("samplePalette(%v) = %+v, want key %+v", key.t, p, key)
		}
	}
}

func TestSamplePaletteWraps(t *testing.T) {
	late := samplePalette(0.9999)
	if d := stdmath.Abs(float64(late.zenith.B - palettes[0].zenith.B)); d > 0.01 {
		t.Errorf("zenith near wrap = %v, want ~%v", late.zenith, palettes[0].zenith)
	}
	last := palettes[len(palettes)-1]
	mid := samplePalette((last.t + 1) / 2)
	want := (last.sunIntensity + palettes[0].sunIntensity) / 2
	if !near(mid.sunIntensity, want) {
		t.Errorf("sunIntensity halfway to noon = %v, want %v", mid.sunIntensity, want)
	}
}

func TestDayNightUpdateWraps(t *testing.T) {
	dn := NewDayNight(10 * time.Second)
	dn.Update(12500 * time.Millisecond)
	if !near(dn.Time, 0.25) {
		t.Fatalf("Time = %v, want 0.25", dn.Time)
	}
	dn.Period = 0
	dn.Update(time.Second)
	if !near(dn.Time, 0.25) {
		t.Fatalf("zero period advanced time to %v", dn.Time)
	}
}

func TestSunDirection(t *testing.T) {
	dn := &DayNight{}
	if d := dn.SunDirection(); d.Y >= 0 || !near(d.Length(), 1) {
		t.Errorf("noon sun = %v, want unit vector pointing down", d)
	}
	dn.Time = 0.5
	if d := dn.SunDirection(); d.Y <= 0 {
		t.Errorf("midnight sun = %v, want pointing up", d)
	}
}

func TestDayNightApply(t *testing.T) {
	s := scene.NewScene()
	settings := raytracing.DefaultSettings()
	dn := &DayNight{}
	dn.Apply(s, &settings)
	if !sameColor(settings.SkyColor, palettes[0].zenith) || !sameColor(settings.FloorColor, palettes[0].ground) {
		t.Errorf("settings sky/floor = %v/%v", settings.SkyColor, settings.FloorColor)
	}
	if !sameColor(s.SkyColor, palettes[0].zenith) || !sameColor(s.Ambient, palettes[0].ambient) {
		t.Errorf("scene sky/ambient = %v/%v", s.SkyColor, s.Ambient)
	}
	if !near(s.SunColor.R, palettes[0].sunColor.R*palettes[0].sunIntensity) {
		t.Errorf("sun color = %v", s.SunColor)
	}
}

func TestTimeOfDay(t *testing.T) {
	cases := map[float32]string{
		0:    "12:00 PM",
		0.25: "06:00 PM",
		0.5:  "12:00 AM",
		0.75: "06:00 AM",
	}
	for tm, want := range cases {
		dn := &DayNight{Time: tm}
		if got := dn.TimeOfDay(); got != want {
			t.Errorf("TimeOfDay(%v) = %q, want %q", tm, got, want)
		}
	}
}
