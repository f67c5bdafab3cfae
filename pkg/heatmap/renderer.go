// Package heatmap keeps a decaying per-pixel intensity raster fed by vehicle
// positions and colorizes it for compositing over the base map.
package heatmap

import (
	"image"
	"image/color"
	"log"
	"math"
	"strconv"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sudorandom/lane-heat/pkg/colorramp"
	"github.com/sudorandom/lane-heat/pkg/feed"
)

var (
	markerColor   = color.RGBA{255, 235, 59, 255}
	readoutColor  = color.RGBA{255, 255, 255, 255}
	readoutShadow = color.RGBA{0, 0, 0, 200}
)

// Stats describes the last processed batch.
type Stats struct {
	Visible  int // samples inside the padded viewport
	Total    int // samples in the batch
	Splatted int // samples drawn after bounded sampling
}

type point struct{ x, y, w float64 }

// Renderer owns the accumulation and display buffers. It is not safe for
// concurrent use; drive it from a single goroutine.
type Renderer struct {
	cfg     Config
	palette [256][4]uint8 // premultiplied LUT colors at the configured opacity

	enabled    bool
	diagnostic bool

	vp      Viewport
	acc     []float32
	display *image.RGBA

	visible []point
	stats   Stats
}

// NewRenderer returns a Disabled renderer without buffers.
func NewRenderer(cfg Config) *Renderer {
	r := &Renderer{}
	r.SetConfig(cfg)
	return r
}

func (r *Renderer) SetConfig(cfg Config) {
	r.cfg = NewConfig(cfg)
	lut := colorramp.Get(r.cfg.Stops)
	for i, c := range lut {
		a := float64(c.A) * r.cfg.Opacity
		r.palette[i] = [4]uint8{
			uint8(math.Round(float64(c.R) * a / 255)),
			uint8(math.Round(float64(c.G) * a / 255)),
			uint8(math.Round(float64(c.B) * a / 255)),
			uint8(math.Round(a)),
		}
	}
	r.palette[0] = [4]uint8{}
}

func (r *Renderer) Config() Config { return r.cfg }

// SetEnabled switches the overlay on or off. Buffers survive while Disabled.
func (r *Renderer) SetEnabled(on bool) {
	if r.enabled != on {
		log.Printf("[HEATMAP] Enabled=%v", on)
	}
	r.enabled = on
}

func (r *Renderer) Enabled() bool { return r.enabled }

func (r *Renderer) SetDiagnostic(on bool) { r.diagnostic = on }

func (r *Renderer) Diagnostic() bool { return r.diagnostic }

func (r *Renderer) Viewport() Viewport { return r.vp }

// Resize adopts vp. When the size or the visible area changed, both buffers are
// reallocated and cleared; history is not reprojected. An invalid viewport
// drops the buffers so that frames are skipped until a valid one arrives.
func (r *Renderer) Resize(vp Viewport) {
	if r.acc != nil && r.vp.equal(vp) {
		return
	}
	r.vp = vp
	r.visible = r.visible[:0]
	r.stats = Stats{}
	if !vp.Valid() {
		r.acc, r.display = nil, nil
		return
	}
	r.acc = make([]float32, vp.Width*vp.Height)
	r.display = image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	log.Printf("[HEATMAP] Resized to %dx%d", vp.Width, vp.Height)
}

// Frame advances the overlay by dt: decay, then (when fresh) splat the batch,
// then colorize. It reports whether the frame was processed; a Disabled
// renderer or one without a valid viewport does nothing.
func (r *Renderer) Frame(dt time.Duration, batch []feed.Sample, fresh bool) bool {
	if !r.enabled || r.acc == nil {
		return false
	}
	r.decay(dt)
	if fresh {
		r.collect(batch)
		r.splat()
	}
	if r.diagnostic {
		r.drawDiagnostic()
	} else {
		r.colorize()
	}
	return true
}

func (r *Renderer) decay(dt time.Duration) {
	f := float32(r.cfg.DecayFactor(dt))
	if f == 1 {
		return
	}
	for i := range r.acc {
		r.acc[i] *= f
	}
}

// collect projects the batch and keeps the samples inside the viewport padded
// by the splat radius.
func (r *Renderer) collect(batch []feed.Sample) {
	pad := r.cfg.Radius
	w, h := float64(r.vp.Width), float64(r.vp.Height)
	r.visible = r.visible[:0]
	for _, s := range batch {
		if math.IsNaN(s.X) || math.IsNaN(s.Y) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) {
			continue
		}
		px, py := r.vp.Project(s.X, s.Y)
		if px < -pad || py < -pad || px > w+pad || py > h+pad {
			continue
		}
		r.visible = append(r.visible, point{x: px, y: py, w: r.cfg.Weight(s.Speed)})
	}
	r.stats = Stats{Visible: len(r.visible), Total: len(batch)}
}

func (r *Renderer) splat() {
	pts := r.visible
	if len(pts) > MaxSplats {
		pts = SampleStride(pts, MaxSplats)
	}
	for _, p := range pts {
		r.splatOne(p)
	}
	r.stats.Splatted += len(pts)
}

func (r *Renderer) splatOne(p point) {
	rad := r.cfg.Radius
	center := float32(math.Min(1, p.w*r.cfg.Intensity*SplatAlpha))
	x0, x1 := clampInt(int(p.x-rad), 0, r.vp.Width-1), clampInt(int(p.x+rad), 0, r.vp.Width-1)
	y0, y1 := clampInt(int(p.y-rad), 0, r.vp.Height-1), clampInt(int(p.y+rad), 0, r.vp.Height-1)
	r2 := rad * rad
	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - p.y
		row := y * r.vp.Width
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - p.x
			d2 := dx*dx + dy*dy
			if d2 >= r2 {
				continue
			}
			v := r.acc[row+x] + center*float32(1-math.Sqrt(d2)/rad)
			if v > 1 {
				v = 1
			}
			r.acc[row+x] = v
		}
	}
}

func (r *Renderer) colorize() {
	pix := r.display.Pix
	for i, v := range r.acc {
		idx := 0
		if v > 0 {
			idx = min(int(v*255), 255)
		}
		c := r.palette[idx]
		o := i * 4
		pix[o], pix[o+1], pix[o+2], pix[o+3] = c[0], c[1], c[2], c[3]
	}
}

func (r *Renderer) drawDiagnostic() {
	clear(r.display.Pix)
	half := r.cfg.MarkerSize / 2
	for _, p := range r.visible {
		r.fillRect(int(p.x-half), int(p.y-half), int(p.x+half), int(p.y+half), markerColor)
	}

	label := strconv.Itoa(r.stats.Visible) + "/" + strconv.Itoa(r.stats.Total)
	face := basicfont.Face7x13
	r.fillRect(4, 4, 12+font.MeasureString(face, label).Ceil(), 8+face.Height, readoutShadow)
	d := &font.Drawer{
		Dst:  r.display,
		Src:  image.NewUniform(readoutColor),
		Face: face,
		Dot:  fixed.P(8, 4+face.Ascent),
	}
	d.DrawString(label)
}

func (r *Renderer) fillRect(x0, y0, x1, y1 int, c color.RGBA) {
	b := r.display.Bounds().Intersect(image.Rect(x0, y0, x1, y1))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			o := r.display.PixOffset(x, y)
			r.display.Pix[o], r.display.Pix[o+1], r.display.Pix[o+2], r.display.Pix[o+3] = c.R, c.G, c.B, c.A
		}
	}
}

// Stats returns counts for the last batch that was splatted.
func (r *Renderer) Stats() Stats { return r.stats }

// Display is the colorized overlay (premultiplied RGBA), nil without a valid viewport.
func (r *Renderer) Display() *image.RGBA { return r.display }

// Intensity returns the accumulated value at pixel (x, y).
func (r *Renderer) Intensity(x, y int) float32 {
	if r.acc == nil || x < 0 || y < 0 || x >= r.vp.Width || y >= r.vp.Height {
		return 0
	}
	return r.acc[y*r.vp.Width+x]
}

// Close detaches both buffers and disables the renderer.
func (r *Renderer) Close() {
	r.enabled = false
	r.acc, r.display, r.visible = nil, nil, nil
	r.vp = Viewport{}
}

// SampleStride picks every k-th item, k = ceil(len/limit), so at most limit
// items remain. The choice only depends on the input order.
func SampleStride[T any](items []T, limit int) []T {
	step := stride(len(items), limit)
	out := make([]T, 0, (len(items)+step-1)/step)
	for i := 0; i < len(items); i += step {
		out = append(out, items[i])
	}
	return out
}

func stride(n, limit int) int {
	if limit <= 0 || n <= limit {
		return 1
	}
	return (n + limit - 1) / limit
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
