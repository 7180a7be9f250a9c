// Command rtdemo renders a scene through the hybrid pipeline: a raster
// base pass with the ray-traced overlay composited on top. Without -out
// it opens a window (OpenGL only); with -out it renders -frames frames
// headless and writes the last one as a PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	sceneio "raytrace-engine/io"
	"raytrace-engine/raytracing"
	"raytrace-engine/renderer"
	"raytrace-engine/scene"
)

type options struct {
	scene    string
	backend  string
	frames   int
	out      string
	width    int
	height   int
	scale    float64
	interval time.Duration
	daynight time.Duration
	verbose  bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("rtdemo", flag.ContinueOnError)
	fs.StringVar(&o.scene, "scene", "", "scene file (.rtscene); empty renders the built-in demo scene")
	fs.StringVar(&o.backend, "backend", backendSoftware, "render backend: software, opengl or webgpu")
	fs.IntVar(&o.frames, "frames", 1, "frames to render before writing -out")
	fs.StringVar(&o.out, "out", "", "write the last frame to this PNG and exit")
	fs.IntVar(&o.width, "width", 640, "target width in pixels")
	fs.IntVar(&o.height, "height", 360, "target height in pixels")
	fs.Float64Var(&o.scale, "scale", 1, "ray target resolution scale")
	fs.DurationVar(&o.interval, "interval", raytracing.DefaultRebuildInterval, "minimum time between acceleration structure rebuilds")
	fs.DurationVar(&o.daynight, "daynight", 0, "animate the sun over a day of this length; 0 keeps it fixed")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.width <= 0 || o.height <= 0 {
		return o, fmt.Errorf("invalid size %dx%d", o.width, o.height)
	}
	if o.frames < 1 {
		o.frames = 1
	}
	if _, err := parseBackend(o.backend); err != nil {
		return o, err
	}
	if o.out == "" && o.backend != backendOpenGL {
		return o, fmt.Errorf("backend %q renders headless only; pass -out", o.backend)
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtdemo:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	raytracing.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(o); err != nil {
		raytracing.Logger().Error("rtdemo failed", "err", err)
		os.Exit(1)
	}
}

// loadScene returns the demo scene with ray tracing on when path is empty.
func loadScene(path string) (*scene.Scene, raytracing.Settings, error) {
	if path == "" {
		settings := raytracing.DefaultSettings()
		settings.Enable = true
		settings.MaxIndirect = 1
		return scene.CreateDemoScene(), settings, nil
	}
	return sceneio.LoadScene(path)
}

// newEngine wires backend into a render engine over s.
func newEngine(backend renderer.Backend, s *scene.Scene, settings *raytracing.Settings, o options) (*renderer.RenderEngine, error) {
	cfg := raytracing.DefaultPassConfig()
	cfg.RebuildInterval = o.interval
	re, err := renderer.NewRenderEngine(backend, cfg)
	if err != nil {
		return nil, err
	}
	re.SetScene(s)
	re.Settings = settings
	re.Resize(o.width, o.height)
	for _, cam := range cameras(s) {
		cam.RenderScale = float32(o.scale)
	}
	return re, nil
}

func cameras(s *scene.Scene) []*scene.Camera {
	if len(s.Cameras) > 0 {
		return s.Cameras
	}
	if s.Camera != nil {
		return []*scene.Camera{s.Camera}
	}
	return nil
}

func run(o options) error {
	s, settings, err := loadScene(o.scene)
	if err != nil {
		return err
	}
	kind, _ := parseBackend(o.backend)
	if kind == backendOpenGL {
		return runOpenGL(s, &settings, o)
	}

	backend, err := newHeadlessBackend(kind)
	if err != nil {
		return err
	}
	re, err := newEngine(backend, s, &settings, o)
	if err != nil {
		backend.Destroy()
		return err
	}
	defer re.Destroy()

	if err := renderFrames(re, o.frames, newCycle(o)); err != nil {
		return err
	}
	src, ok := backend.(colorSource)
	if !ok || src.Color() == nil {
		return fmt.Errorf("backend %s produced no image", backend.Name())
	}
	return writePNG(o.out, src.Color().Image)
}

// frameStep is the simulated frame time of headless renders.
const frameStep = 16 * time.Millisecond

// newCycle returns nil when -daynight is off.
func newCycle(o options) *DayNight {
	if o.daynight <= 0 {
		return nil
	}
	return NewDayNight(o.daynight)
}

// advance steps the cycle, if any, and pushes it into the scene.
func advance(re *renderer.RenderEngine, cycle *DayNight, dt time.Duration) {
	if cycle == nil {
		return
	}
	cycle.Update(dt)
	cycle.Apply(re.Scene, re.Settings)
}

func renderFrames(re *renderer.RenderEngine, frames int, cycle *DayNight) error {
	start := time.Now()
	for i := 0; i < frames; i++ {
		advance(re, cycle, frameStep)
		if err := re.Render(frameStep); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	st := re.Stats()
	raytracing.Logger().Info("rendered",
		"frames", frames,
		"cameras", st.Cameras,
		"instances", st.Instances,
		"elapsed", time.Since(start))
	return nil
}
