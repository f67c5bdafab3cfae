package viewer

import (
	"image/color"
	"math"
)

var (
	ColorSignalGreen   = color.RGBA{0, 230, 118, 255}
	ColorSignalYellow  = color.RGBA{255, 214, 0, 255}
	ColorSignalRed     = color.RGBA{255, 50, 50, 255}
	ColorSignalUnknown = color.RGBA{160, 170, 190, 255}
)

// signalColor summarises a traffic-light state string ("GGrr", "yyrr", ...)
// by its most common phase. Ties go to the more restrictive phase.
func signalColor(state string) color.RGBA {
	var green, yellow, red int
	for _, ch := range state {
		switch ch {
		case 'G', 'g':
			green++
		case 'y', 'Y', 'u':
			yellow++
		case 'r', 'R', 's':
			red++
		}
	}
	switch {
	case red == 0 && yellow == 0 && green == 0:
		return ColorSignalUnknown
	case red >= yellow && red >= green:
		return ColorSignalRed
	case yellow >= green:
		return ColorSignalYellow
	default:
		return ColorSignalGreen
	}
}

// markerPixels renders a soft white ring of the given size as premultiplied
// RGBA pixels, ready to be tinted with a color scale.
func markerPixels(size int, large bool) []byte {
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	outer, inner := 0.9, 0.55
	if large {
		outer, inner = 0.94, 0.7
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-center, float64(y)+0.5-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= maxDist {
				continue
			}
			val := 1.0
			if dist > maxDist*outer {
				val = math.Cos((dist - maxDist*outer) / (maxDist * (1 - outer)) * (math.Pi / 2))
			} else if dist < maxDist*inner {
				// Dim core so overlapping markers stay readable.
				val = 0.35 + 0.65*dist/(maxDist*inner)
			}
			a := uint8(math.Round(math.Max(0, math.Min(1, val)) * 255))
			off := (y*size + x) * 4
			pixels[off], pixels[off+1], pixels[off+2], pixels[off+3] = a, a, a, a
		}
	}
	return pixels
}
