// Package colorramp builds 256-entry color lookup tables from gradient stops.
package colorramp

import (
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// BaseAlpha is the alpha of every LUT slot before opacity is applied.
const BaseAlpha = 204

// Stop is a gradient stop. Pos is in [0,1]; the alpha of Color is ignored.
type Stop struct {
	Pos   float64
	Color color.RGBA
}

// LUT maps a quantized intensity (0..255) to a color. It is never modified
// after Build returns it.
type LUT [256]color.RGBA

// DefaultStops runs from deep blue through cyan, green and yellow to red.
var DefaultStops = []Stop{
	{Pos: 0, Color: color.RGBA{R: 0, G: 0, B: 139}},
	{Pos: 0.25, Color: color.RGBA{R: 0, G: 255, B: 255}},
	{Pos: 0.5, Color: color.RGBA{R: 0, G: 255, B: 0}},
	{Pos: 0.75, Color: color.RGBA{R: 255, G: 255, B: 0}},
	{Pos: 1, Color: color.RGBA{R: 255, G: 0, B: 0}},
}

// Build interpolates stops into a LUT. Stops are ordered by position (ties keep
// input order) and positions are clamped to [0,1]. Slots before the first or
// after the last stop take that stop's color. An empty list uses DefaultStops.
func Build(stops []Stop) *LUT {
	if len(stops) == 0 {
		stops = DefaultStops
	}
	sorted := make([]Stop, len(stops))
	for i, s := range stops {
		sorted[i] = Stop{Pos: clamp01(s.Pos), Color: s.Color}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pos < sorted[j].Pos })

	lut := new(LUT)
	j := 0
	for i := range lut {
		t := float64(i) / 255
		for j < len(sorted)-2 && t > sorted[j+1].Pos {
			j++
		}
		lut[i] = sample(sorted, j, t)
	}
	return lut
}

func sample(stops []Stop, j int, t float64) color.RGBA {
	first, last := stops[0], stops[len(stops)-1]
	switch {
	case t <= first.Pos:
		return withBase(first.Color)
	case t >= last.Pos:
		return withBase(last.Color)
	}
	a, b := stops[j], stops[j+1]
	span := b.Pos - a.Pos
	if span <= 0 {
		return withBase(b.Color)
	}
	f := (t - a.Pos) / span
	return color.RGBA{
		R: lerp(a.Color.R, b.Color.R, f),
		G: lerp(a.Color.G, b.Color.G, f),
		B: lerp(a.Color.B, b.Color.B, f),
		A: BaseAlpha,
	}
}

func withBase(c color.RGBA) color.RGBA {
	c.A = BaseAlpha
	return c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*LUT{}
)

// Get returns the LUT for stops, building it on first use. The same stop list
// always yields the same pointer.
func Get(stops []Stop) *LUT {
	key := cacheKey(stops)
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if lut, ok := cache[key]; ok {
		return lut
	}
	lut := Build(stops)
	cache[key] = lut
	return lut
}

func cacheKey(stops []Stop) string {
	if len(stops) == 0 {
		stops = DefaultStops
	}
	var b strings.Builder
	for _, s := range stops {
		b.WriteString(strconv.FormatFloat(s.Pos, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(s.Color.R)))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(s.Color.G)))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(s.Color.B)))
		b.WriteByte(';')
	}
	return b.String()
}
