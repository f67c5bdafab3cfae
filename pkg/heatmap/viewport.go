package heatmap

import (
	"github.com/paulmach/orb"
)

// Viewport maps network source coordinates onto a Width x Height pixel grid.
// Bound is the visible area; y grows downward on screen.
type Viewport struct {
	Width, Height int
	Bound         orb.Bound
}

func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 &&
		v.Bound.Max[0] > v.Bound.Min[0] && v.Bound.Max[1] > v.Bound.Min[1]
}

// Project converts a source point to pixel coordinates.
func (v Viewport) Project(x, y float64) (px, py float64) {
	px = (x - v.Bound.Min[0]) / (v.Bound.Max[0] - v.Bound.Min[0]) * float64(v.Width)
	py = (v.Bound.Max[1] - y) / (v.Bound.Max[1] - v.Bound.Min[1]) * float64(v.Height)
	return px, py
}

// Unproject is the inverse of Project.
func (v Viewport) Unproject(px, py float64) (x, y float64) {
	x = v.Bound.Min[0] + px/float64(v.Width)*(v.Bound.Max[0]-v.Bound.Min[0])
	y = v.Bound.Max[1] - py/float64(v.Height)*(v.Bound.Max[1]-v.Bound.Min[1])
	return x, y
}

func (v Viewport) equal(o Viewport) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Bound == o.Bound
}
