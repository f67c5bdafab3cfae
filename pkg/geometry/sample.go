package geometry

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CapSample keeps every k-th point so that at most limit points remain. The final
// point is always kept, even when the stride would skip it.
func CapSample(ls orb.LineString, limit int) orb.LineString {
	if limit < 2 || len(ls) <= limit {
		return ls
	}
	last := ls[len(ls)-1]
	for step := int(math.Ceil(float64(len(ls)) / float64(limit))); ; step++ {
		out := make(orb.LineString, 0, limit+1)
		for i := 0; i < len(ls); i += step {
			out = append(out, ls[i])
		}
		if (len(ls)-1)%step != 0 {
			out = append(out, last)
		}
		if len(out) <= limit {
			return out
		}
	}
}

// ParseShape reads a SUMO shape attribute ("x1,y1 x2,y2 ..."). Pairs that do not
// parse to two finite numbers are skipped.
func ParseShape(s string) orb.LineString {
	fields := strings.Fields(s)
	ls := make(orb.LineString, 0, len(fields))
	for _, pair := range fields {
		xs, ys, ok := strings.Cut(pair, ",")
		if !ok || strings.Contains(ys, ",") {
			continue
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			continue
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			continue
		}
		if !finite(x) || !finite(y) {
			continue
		}
		ls = append(ls, orb.Point{x, y})
	}
	return ls
}

// ToDisplay swaps every point to the [y, x] (lat, lng) order used by the map.
func ToDisplay(ls orb.LineString) [][2]float64 {
	out := make([][2]float64, len(ls))
	for i, p := range ls {
		out[i] = [2]float64{p[1], p[0]}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
