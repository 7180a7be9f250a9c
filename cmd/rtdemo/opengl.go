package main

import (
	"fmt"
	"time"

	"raytrace-engine/editor"
	"raytrace-engine/internal/opengl"
	"raytrace-engine/platform"
	"raytrace-engine/raytracing"
	"raytrace-engine/renderer"
	"raytrace-engine/scene"
)

// runOpenGL renders in a window. With -out the window stays hidden and
// the tone-mapped frame is read back; otherwise it runs until closed.
// R toggles ray tracing, a left click selects the node under the cursor
// (shift adds to the selection) and F centers the orbit on the selection.
// Right-drag orbits, the wheel zooms, Space pauses the day/night cycle and
// Escape quits.
func runOpenGL(s *scene.Scene, settings *raytracing.Settings, o options) error {
	cfg := platform.DefaultWindowConfig()
	cfg.Width, cfg.Height = o.width, o.height
	cfg.Title = "rtdemo"
	cfg.Hidden = o.out != ""
	cfg.Resizable = o.out == ""
	window, err := platform.NewWindow(cfg)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, err := opengl.NewDevice()
	if err != nil {
		return err
	}
	dev.SetViewport(window.Width, window.Height)
	o.width, o.height = window.Width, window.Height

	re, err := newEngine(dev, s, settings, o)
	if err != nil {
		dev.Destroy()
		return err
	}
	defer re.Destroy()

	if o.out != "" {
		if err := renderFrames(re, o.frames, newCycle(o)); err != nil {
			return err
		}
		pix := opengl.ReadPixels(window.Width, window.Height)
		return writePNG(o.out, flipRows(pix, window.Width, window.Height))
	}

	var orbit *orbitControl
	if cam := re.Scene.Camera; cam != nil {
		orbit = newOrbitControl(cam)
		window.SetScrollCallback(func(_, yoff float64) { orbit.zoom(yoff) })
	}

	var (
		last      = time.Now()
		toggleWas bool
		clickWas  bool
		focusWas  bool
		pauseWas  bool
		paused    bool
		dragX     float64
		dragY     float64
		dragging  bool
		selection = editor.NewSelection()
		cycle     = newCycle(o)
		frames    int
		fpsStart  = last
		w, h      = window.Width, window.Height
	)
	for !window.ShouldClose() {
		window.PollEvents()
		if window.IsKeyPressed(platform.KeyEscape) {
			break
		}
		toggle := window.IsKeyPressed(platform.KeyR)
		if toggle && !toggleWas {
			settings.Enable = !settings.Enable
			raytracing.Logger().Info("ray tracing toggled", "enabled", settings.Enable)
		}
		toggleWas = toggle

		click := window.IsMouseButtonPressed(platform.MouseButtonLeft)
		if click && !clickWas {
			pick(window, re, selection)
		}
		clickWas = click

		focus := window.IsKeyPressed(platform.KeyF)
		if focus && !focusWas && orbit != nil && selection.HasSelection() {
			orbit.focus(selection.Center())
		}
		focusWas = focus

		pause := window.IsKeyPressed(platform.KeySpace)
		if pause && !pauseWas {
			paused = !paused
		}
		pauseWas = pause

		if orbit != nil && window.IsMouseButtonPressed(platform.MouseButtonRight) {
			x, y := window.GetCursorPos()
			if dragging {
				orbit.rotate(x-dragX, y-dragY)
			}
			dragX, dragY, dragging = x, y, true
		} else {
			dragging = false
		}

		if window.Width != w || window.Height != h {
			w, h = window.Width, window.Height
			re.Resize(w, h)
			dev.SetViewport(w, h)
		}

		now := time.Now()
		if !paused {
			advance(re, cycle, now.Sub(last))
		}
		if err := re.Render(now.Sub(last)); err != nil {
			return err
		}
		last = now
		window.SwapBuffers()

		frames++
		if dt := now.Sub(fpsStart); dt >= time.Second {
			title := fmt.Sprintf("rtdemo | %s | %.0f fps | rt %v",
				dev.Name(), float64(frames)/dt.Seconds(), settings.Enable)
			if cycle != nil {
				title += " | " + cycle.TimeOfDay()
			}
			window.SetTitle(title)
			frames = 0
			fpsStart = now
		}
	}
	return nil
}

// pick selects the node under the cursor in the last committed build.
func pick(window *platform.Window, re *renderer.RenderEngine, sel *editor.Selection) {
	cam := re.Scene.Camera
	if cam == nil {
		return
	}
	x, y := window.GetCursorPos()
	hit := editor.Pick(float32(x), float32(y), window.Width, window.Height, cam, re.Pass().Accel().Current())
	sel.Apply(hit, window.IsKeyPressed(platform.KeyLeftShift))
	if !hit.Hit {
		raytracing.Logger().Info("pick missed", "selected", len(sel.Objects))
		return
	}
	raytracing.Logger().Info("picked",
		"node", hit.Node.Name,
		"face", hit.FaceIdx,
		"distance", hit.Distance,
		"selected", len(sel.Objects))
}
