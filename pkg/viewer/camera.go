package viewer

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/sudorandom/lane-heat/pkg/heatmap"
)

const (
	// FitMargin is the fraction of the screen left free on each side when
	// the network is fitted.
	FitMargin = 0.05
	minZoom   = 0.25
	maxZoom   = 64
)

// Camera maps the network extent onto the screen. Zoom is relative to the
// fitted view; 1 shows the whole network.
type Camera struct {
	Width, Height int

	extent orb.Bound
	center orb.Point
	fitUPP float64 // source units per pixel at zoom 1
	zoom   float64
}

func NewCamera(extent orb.Bound, width, height int) *Camera {
	c := &Camera{Width: width, Height: height}
	c.Fit(extent)
	return c
}

// Fit centres extent on screen and resets the zoom.
func (c *Camera) Fit(extent orb.Bound) {
	c.extent = extent
	c.center = extent.Center()
	c.zoom = 1
	c.refit()
}

func (c *Camera) refit() {
	usableW := float64(c.Width) * (1 - 2*FitMargin)
	usableH := float64(c.Height) * (1 - 2*FitMargin)
	w := c.extent.Max[0] - c.extent.Min[0]
	h := c.extent.Max[1] - c.extent.Min[1]
	if usableW <= 0 || usableH <= 0 {
		c.fitUPP = 0
		return
	}
	c.fitUPP = math.Max(w/usableW, h/usableH)
	if c.fitUPP <= 0 {
		// A single point or an empty network: show one unit per pixel.
		c.fitUPP = 1
	}
}


// Pan moves the view by a screen-space offset in pixels. Positive dy moves
// the view down.
func (c *Camera) Pan(dx, dy float64) {
	upp := c.unitsPerPixel()
	c.center[0] += dx * upp
	c.center[1] -= dy * upp
}

// ZoomBy multiplies the zoom by f, keeping the centre fixed.
func (c *Camera) ZoomBy(f float64) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	c.zoom = math.Min(maxZoom, math.Max(minZoom, c.zoom*f))
}

// ZoomAt zooms by f while the source point under screen pixel (px, py) stays
// under it.
func (c *Camera) ZoomAt(px, py, f float64) {
	if !c.Viewport().Valid() {
		c.ZoomBy(f)
		return
	}
	x0, y0 := c.Viewport().Unproject(px, py)
	c.ZoomBy(f)
	x1, y1 := c.Viewport().Unproject(px, py)
	c.center[0] += x0 - x1
	c.center[1] += y0 - y1
}

func (c *Camera) Zoom() float64 { return c.zoom }

func (c *Camera) unitsPerPixel() float64 {
	return c.fitUPP / c.zoom
}

// Viewport is the visible area on the current screen.
func (c *Camera) Viewport() heatmap.Viewport {
	upp := c.unitsPerPixel()
	halfW := float64(c.Width) * upp / 2
	halfH := float64(c.Height) * upp / 2
	return heatmap.Viewport{
		Width:  c.Width,
		Height: c.Height,
		Bound: orb.Bound{
			Min: orb.Point{c.center[0] - halfW, c.center[1] - halfH},
			Max: orb.Point{c.center[0] + halfW, c.center[1] + halfH},
		},
	}
}
