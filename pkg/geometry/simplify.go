// Package geometry reduces lane polylines to a bounded number of points.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Simplify runs Douglas-Peucker over ls with the given tolerance (source units).
// Short lines and non-positive tolerances are returned untouched. The first and
// last points always survive and the input slice is never modified.
func Simplify(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) <= 2 || !(tolerance > 0) || math.IsInf(tolerance, 1) {
		return ls
	}
	// orb compares squared point-to-segment distances against tolerance^2.
	out, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok || len(out) < 2 {
		return ls
	}
	return out
}

// MaxDeviation returns the largest distance between a point of original and the
// retained segment of simplified that spans it. simplified must be an ordered
// subset of original sharing its endpoints; points are matched by value.
func MaxDeviation(original, simplified orb.LineString) float64 {
	if len(original) < 3 || len(simplified) < 2 {
		return 0
	}
	maxDist := 0.0
	seg := 0
	for _, p := range original[1:] {
		if seg+1 >= len(simplified) {
			break
		}
		if p == simplified[seg+1] {
			seg++
			continue
		}
		if d := planar.DistanceFromSegment(simplified[seg], simplified[seg+1], p); d > maxDist {
			maxDist = d
		}
	}
	return maxDist
}
