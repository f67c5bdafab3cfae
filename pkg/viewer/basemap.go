package viewer

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"

	"github.com/sudorandom/lane-heat/pkg/heatmap"
	"github.com/sudorandom/lane-heat/pkg/network"
)

var (
	ColorBackground   = color.RGBA{8, 10, 15, 255}
	ColorJunction     = color.RGBA{26, 29, 35, 255}
	ColorJunctionDot  = color.RGBA{36, 42, 53, 255}
	ColorLane         = color.RGBA{70, 80, 98, 255}
	ColorInternalLane = color.RGBA{44, 50, 62, 255}
)

type point struct{ x, y float64 }

// RasterizeBase draws the static network into a new image the size of vp:
// junction polygons filled, then lane polylines on top. Junction points are
// drawn as dots only when the model carries no polygons.
func RasterizeBase(m *network.Model, vp heatmap.Viewport) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{ColorBackground}, image.Point{}, draw.Src)
	if m == nil || !vp.Valid() {
		return img
	}

	for _, jp := range m.JunctionPolygons {
		ring := make([]point, len(jp.Polygon))
		for i, p := range jp.Polygon {
			ring[i].x, ring[i].y = vp.Project(p[1], p[0])
		}
		fillPolygon(img, ring, ColorJunction)
	}
	if len(m.JunctionPolygons) == 0 {
		for _, j := range m.JunctionPoints {
			x, y := vp.Project(j.Lng, j.Lat)
			fillDot(img, int(x), int(y), 1, ColorJunctionDot)
		}
	}

	// Internal lanes first so through lanes stay on top.
	for pass := 0; pass < 2; pass++ {
		for _, l := range m.Lanes {
			if l.IsInternal != (pass == 0) {
				continue
			}
			c := ColorLane
			if l.IsInternal {
				c = ColorInternalLane
			}
			for i := 0; i+1 < len(l.Points); i++ {
				x1, y1 := vp.Project(l.Points[i][1], l.Points[i][0])
				x2, y2 := vp.Project(l.Points[i+1][1], l.Points[i+1][0])
				if !segmentVisible(x1, y1, x2, y2, vp.Width, vp.Height) {
					continue
				}
				drawLine(img, int(math.Floor(x1)), int(math.Floor(y1)), int(math.Floor(x2)), int(math.Floor(y2)), c)
			}
		}
	}
	return img
}

// segmentVisible rejects segments whose box misses the screen, which also
// keeps Bresenham from walking far off-screen when zoomed in.
func segmentVisible(x1, y1, x2, y2 float64, w, h int) bool {
	if math.Max(x1, x2) < 0 || math.Min(x1, x2) >= float64(w) {
		return false
	}
	if math.Max(y1, y2) < 0 || math.Min(y1, y2) >= float64(h) {
		return false
	}
	return math.Abs(x2-x1) < 1e6 && math.Abs(y2-y1) < 1e6
}

// fillPolygon scanline-fills ring with the even-odd rule.
func fillPolygon(img *image.RGBA, ring []point, c color.RGBA) {
	if len(ring) < 3 {
		return
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range ring {
		minY = math.Min(minY, p.y)
		maxY = math.Max(maxY, p.y)
	}
	y0 := int(math.Max(0, math.Floor(minY)))
	y1 := int(math.Min(float64(height-1), math.Ceil(maxY)))

	var nodes []int
	for y := y0; y <= y1; y++ {
		nodes = nodes[:0]
		fy := float64(y) + 0.5
		for i := range ring {
			j := (i + 1) % len(ring)
			a, b := ring[i], ring[j]
			if (a.y < fy && b.y >= fy) || (b.y < fy && a.y >= fy) {
				nodes = append(nodes, int(a.x+(fy-a.y)/(b.y-a.y)*(b.x-a.x)))
			}
		}
		sort.Ints(nodes)
		for i := 0; i+1 < len(nodes); i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe > width {
				xe = width
			}
			for x := xs; x < xe; x++ {
				setPixel(img, x, y, c)
			}
		}
	}
}

// drawLine is Bresenham's line algorithm, clipped per pixel.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		setPixel(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func fillDot(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			setPixel(img, x, y, c)
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if !(image.Point{x, y}.In(img.Rect)) {
		return
	}
	off := img.PixOffset(x, y)
	img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
