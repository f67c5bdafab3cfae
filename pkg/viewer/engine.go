// Package viewer draws a road network with the live heatmap on top of it. The
// Engine is an ebiten.Game: base map first, then the heatmap overlay, then
// traffic-light markers and the legend.
package viewer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sudorandom/lane-heat/pkg/feed"
	"github.com/sudorandom/lane-heat/pkg/heatmap"
	"github.com/sudorandom/lane-heat/pkg/network"
)

const (
	panStep  = 12.0 // px per tick while an arrow key is held
	zoomStep = 1.25
)

// Fallback returns a previously stored model for sourceURL, or nil when there
// is none.
type Fallback func(sourceURL string) (*network.Model, time.Time, error)

type Options struct {
	Width, Height int
	Scale         float64
	CaptureDir    string
	Render        heatmap.Config
	Enabled       bool
	Diagnostic    bool
}

type Engine struct {
	Width, Height int
	Scale         float64
	CaptureDir    string

	// Fallback is consulted when ingestion fails to retrieve the document.
	Fallback Fallback
	// OnModel is called on the update goroutine with every ingested model.
	OnModel func(sourceURL string, m *network.Model)
	// OnFrame, when set, receives the composited screen after every Draw.
	OnFrame func(screen *ebiten.Image)

	renderer *heatmap.Renderer
	sched    *heatmap.Scheduler
	sink     *feed.Sink

	sourceURL string
	pending   <-chan network.Response
	model     *network.Model
	status    string

	camera    *Camera
	base      *image.RGBA
	baseDirty bool
	heatDirty bool
	signals   map[string]string

	captureNext bool
	fpsWindow   time.Time
	fpsFrames   int
	fps         float64

	baseImage   *ebiten.Image
	heatImage   *ebiten.Image
	markerImage *ebiten.Image
	rampImage   *ebiten.Image
	fontSource  *text.GoTextFaceSource
	monoSource  *text.GoTextFaceSource
}

// NewEngine builds an engine fed by sink. sink may be nil, in which case the
// heatmap only decays.
func NewEngine(opts Options, sink *feed.Sink) *Engine {
	s, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		log.Printf("[VIEWER] Error loading font: %v", err)
	}
	m, err := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))
	if err != nil {
		log.Printf("[VIEWER] Error loading mono font: %v", err)
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}

	r := heatmap.NewRenderer(opts.Render)
	r.SetEnabled(opts.Enabled)
	r.SetDiagnostic(opts.Diagnostic)

	var src heatmap.Source
	if sink != nil {
		src = sink.Samples
	}
	return &Engine{
		Width:      opts.Width,
		Height:     opts.Height,
		Scale:      opts.Scale,
		CaptureDir: opts.CaptureDir,
		renderer:   r,
		sched:      heatmap.NewScheduler(r, src),
		sink:       sink,
		status:     "Waiting for network",
		signals:    make(map[string]string),
		fontSource: s,
		monoSource: m,
	}
}

// Renderer exposes the heatmap renderer for settings changes.
func (e *Engine) Renderer() *heatmap.Renderer { return e.renderer }

func (e *Engine) Model() *network.Model { return e.model }

// Await installs the response channel of a running ingestion. The engine
// polls it from Update and never blocks on it.
func (e *Engine) Await(sourceURL string, resp <-chan network.Response) {
	e.sourceURL = sourceURL
	e.pending = resp
	e.status = "Loading " + sourceURL
}

// SetModel replaces the network and refits the camera.
func (e *Engine) SetModel(m *network.Model) {
	e.model = m
	e.signals = make(map[string]string)
	e.camera = NewCamera(m.Extent(), e.Width, e.Height)
	e.applyCamera()
}

func (e *Engine) applyCamera() {
	if e.camera == nil {
		return
	}
	vp := e.camera.Viewport()
	e.renderer.Resize(vp)
	e.base = RasterizeBase(e.model, vp)
	e.baseDirty = true
	e.heatDirty = true
}

func (e *Engine) poll() {
	if e.pending == nil {
		return
	}
	select {
	case resp, ok := <-e.pending:
		e.pending = nil
		if ok {
			e.resolve(resp)
		}
	default:
	}
}

func (e *Engine) resolve(resp network.Response) {
	if resp.Err == nil {
		e.SetModel(resp.Model)
		e.status = fmt.Sprintf("%d lanes, %d signals", len(resp.Model.Lanes), len(resp.Model.TrafficLights))
		if e.OnModel != nil {
			e.OnModel(e.sourceURL, resp.Model)
		}
		return
	}

	log.Printf("[VIEWER] Network unavailable: %v", resp.Err)
	e.status = "Network unavailable: " + resp.Err.Error()

	var re *network.RetrievalError
	if !errors.As(resp.Err, &re) || e.Fallback == nil {
		return
	}
	m, savedAt, err := e.Fallback(e.sourceURL)
	if err != nil {
		log.Printf("[VIEWER] Error loading stored network: %v", err)
		return
	}
	if m == nil {
		return
	}
	log.Printf("[VIEWER] Using stored network from %s", savedAt.Format(time.RFC3339))
	e.SetModel(m)
	e.status = "Offline, network saved " + savedAt.Format("2006-01-02 15:04")
}

var shortcutKeys = []ebiten.Key{
	ebiten.KeyH, ebiten.KeyD, ebiten.KeyP, ebiten.KeyF,
	ebiten.KeyEqual, ebiten.KeyKPAdd, ebiten.KeyMinus, ebiten.KeyKPSubtract,
}

func (e *Engine) handleKey(k ebiten.Key) {
	switch k {
	case ebiten.KeyH:
		e.renderer.SetEnabled(!e.renderer.Enabled())
		e.heatDirty = true
	case ebiten.KeyD:
		e.renderer.SetDiagnostic(!e.renderer.Diagnostic())
	case ebiten.KeyP:
		e.captureNext = true
	case ebiten.KeyF:
		if e.camera != nil && e.model != nil {
			e.camera.Fit(e.model.Extent())
			e.applyCamera()
		}
	case ebiten.KeyEqual, ebiten.KeyKPAdd:
		e.zoom(zoomStep)
	case ebiten.KeyMinus, ebiten.KeyKPSubtract:
		e.zoom(1 / zoomStep)
	}
}

func (e *Engine) zoom(f float64) {
	if e.camera == nil {
		return
	}
	e.camera.ZoomBy(f)
	e.applyCamera()
}

// zoomAt zooms around the screen pixel (px, py), used for the mouse wheel.
func (e *Engine) zoomAt(px, py, f float64) {
	if e.camera == nil {
		return
	}
	e.camera.ZoomAt(px, py, f)
	e.applyCamera()
}

func (e *Engine) pan(dx, dy float64) {
	if e.camera == nil || (dx == 0 && dy == 0) {
		return
	}
	e.camera.Pan(dx, dy)
	e.applyCamera()
}

// advance pulls the newest signal states and ticks the scheduler.
func (e *Engine) advance(now time.Time) {
	if e.sink != nil {
		if sigs, ok := e.sink.Signals.Take(); ok {
			for _, s := range sigs {
				e.signals[s.ID] = s.State
			}
		}
	}
	if !e.sched.Tick(now) {
		return
	}
	e.heatDirty = true

	e.fpsFrames++
	if e.fpsWindow.IsZero() {
		e.fpsWindow = now
	}
	if elapsed := now.Sub(e.fpsWindow); elapsed >= time.Second {
		e.fps = float64(e.fpsFrames) / elapsed.Seconds()
		e.fpsFrames = 0
		e.fpsWindow = now
	}
}

func (e *Engine) Update() error {
	e.poll()
	for _, k := range shortcutKeys {
		if inpututil.IsKeyJustPressed(k) {
			e.handleKey(k)
		}
	}

	var dx, dy float64
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		dx -= panStep
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		dx += panStep
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		dy -= panStep
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		dy += panStep
	}
	e.pan(dx, dy)

	if _, wy := ebiten.Wheel(); wy != 0 {
		mx, my := ebiten.CursorPosition()
		e.zoomAt(float64(mx), float64(my), math.Pow(zoomStep, wy))
	}

	e.advance(time.Now())
	return nil
}

func (e *Engine) ensureImages() {
	if e.baseImage == nil {
		e.baseImage = ebiten.NewImage(e.Width, e.Height)
	}
	if e.heatImage == nil {
		e.heatImage = ebiten.NewImage(e.Width, e.Height)
	}
	if e.markerImage == nil {
		size := 64
		if e.Width > 2000 {
			size = 128
		}
		e.markerImage = ebiten.NewImage(size, size)
		e.markerImage.WritePixels(markerPixels(size, e.Width > 2000))
	}
	if e.rampImage == nil {
		e.rampImage = ebiten.NewImage(256, 1)
		e.rampImage.WritePixels(rampPixels(e.renderer.Config().Stops))
	}
}

func (e *Engine) Draw(screen *ebiten.Image) {
	e.ensureImages()

	if e.baseDirty && e.base != nil && e.base.Rect.Dx() == e.Width && e.base.Rect.Dy() == e.Height {
		e.baseImage.WritePixels(e.base.Pix)
		e.baseDirty = false
	}
	screen.DrawImage(e.baseImage, nil)

	if e.renderer.Enabled() {
		if e.heatDirty {
			if d := e.renderer.Display(); d != nil && d.Rect.Dx() == e.Width && d.Rect.Dy() == e.Height {
				e.heatImage.WritePixels(d.Pix)
			} else {
				e.heatImage.Clear()
			}
			e.heatDirty = false
		}
		screen.DrawImage(e.heatImage, nil)
	}

	e.drawSignals(screen)
	e.drawLegend(screen)
	e.drawStatus(screen)

	if e.captureNext {
		e.captureNext = false
		e.captureFrame(screen, time.Now())
	}
	if e.OnFrame != nil {
		e.OnFrame(screen)
	}
}

func (e *Engine) drawSignals(screen *ebiten.Image) {
	if e.model == nil || e.camera == nil || len(e.model.TrafficLights) == 0 {
		return
	}
	vp := e.camera.Viewport()
	size := 14 * e.Scale
	imgW := float64(e.markerImage.Bounds().Dx())
	halfW := imgW / 2
	scale := size / imgW

	op := &ebiten.DrawImageOptions{}
	op.Blend = ebiten.BlendLighter
	op.Filter = ebiten.FilterLinear
	const alpha = 0.85
	for _, tl := range e.model.TrafficLights {
		x, y := vp.Project(tl.Lng, tl.Lat)
		if x < -size || y < -size || x > float64(e.Width)+size || y > float64(e.Height)+size {
			continue
		}
		state, ok := e.signals[tl.ClusterID]
		if !ok {
			state = e.signals[tl.ID]
		}
		c := signalColor(state)
		op.GeoM.Reset()
		op.GeoM.Translate(-halfW, -halfW)
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(x, y)
		r, g, b := float32(c.R)/255, float32(c.G)/255, float32(c.B)/255
		op.ColorScale.Reset()
		op.ColorScale.Scale(r*alpha, g*alpha, b*alpha, alpha)
		screen.DrawImage(e.markerImage, op)
	}
}

func (e *Engine) Layout(w, h int) (int, int) { return e.Width, e.Height }

// Close stops consuming the feed and releases the heatmap buffers and images.
func (e *Engine) Close() {
	e.sink = nil
	e.sched = heatmap.NewScheduler(e.renderer, nil)
	e.pending = nil
	e.renderer.Close()
	for _, img := range []*ebiten.Image{e.baseImage, e.heatImage, e.markerImage, e.rampImage} {
		if img != nil {
			img.Deallocate()
		}
	}
	e.baseImage, e.heatImage, e.markerImage, e.rampImage = nil, nil, nil, nil
	e.base = nil
}
