package heatmap

import (
	"math"
	"time"

	"github.com/sudorandom/lane-heat/pkg/colorramp"
)

// Weighting selects how much a single sample contributes to the heat.
type Weighting string

const (
	// WeightSpeed makes slow vehicles hotter, normalised by the free-flow speed.
	WeightSpeed Weighting = "speed"
	// WeightCount gives every vehicle the same weight.
	WeightCount Weighting = "count"
)

const (
	// MaxSplats bounds the samples drawn in one frame.
	MaxSplats = 2000
	// SplatAlpha scales the centre contribution of one splat.
	SplatAlpha = 0.25
	// MinSpeedWeight keeps fast vehicles faintly visible.
	MinSpeedWeight = 0.1
)

// Config controls rendering. Build it with NewConfig so every field is in range.
type Config struct {
	FPSCap        int
	FreeFlowSpeed float64 // m/s
	Radius        float64 // px
	Intensity     float64
	HalfLife      float64 // seconds
	Weighting     Weighting
	Opacity       float64
	MarkerSize    float64 // px, diagnostic mode
	Stops         []colorramp.Stop
}

type bounds struct{ def, min, max float64 }

var (
	fpsBounds       = bounds{20, 2, 30}
	freeFlowBounds  = bounds{13.9, 1, 40}
	radiusBounds    = bounds{18, 4, 80}
	intensityBounds = bounds{1, 0.2, 3}
	halfLifeBounds  = bounds{2.5, 0.5, 10}
	opacityBounds   = bounds{0.6, 0.1, 1}
	markerBounds    = bounds{6, 2, 24}
)

func (b bounds) apply(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		v = b.def
	}
	return math.Min(b.max, math.Max(b.min, v))
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return NewConfig(Config{})
}

// NewConfig fills zero or non-finite fields with defaults and clamps the rest
// into their supported ranges. An unknown weighting becomes WeightSpeed.
func NewConfig(c Config) Config {
	c.FPSCap = int(fpsBounds.apply(float64(c.FPSCap)))
	c.FreeFlowSpeed = freeFlowBounds.apply(c.FreeFlowSpeed)
	c.Radius = radiusBounds.apply(c.Radius)
	c.Intensity = intensityBounds.apply(c.Intensity)
	c.HalfLife = halfLifeBounds.apply(c.HalfLife)
	c.Opacity = opacityBounds.apply(c.Opacity)
	c.MarkerSize = markerBounds.apply(c.MarkerSize)
	if c.Weighting != WeightCount {
		c.Weighting = WeightSpeed
	}
	if len(c.Stops) == 0 {
		c.Stops = colorramp.DefaultStops
	}
	return c
}

// FrameInterval is the minimum time between two rendered frames.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPSCap)
}

// DecayFactor is the fraction of intensity that survives dt.
func (c Config) DecayFactor(dt time.Duration) float64 {
	if dt <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 / c.HalfLife * dt.Seconds())
}

// Weight returns the contribution weight of a sample with the given speed
// (nil when unknown).
func (c Config) Weight(speed *float64) float64 {
	if c.Weighting == WeightCount || speed == nil || math.IsNaN(*speed) || math.IsInf(*speed, 0) {
		return 1
	}
	w := 1 - *speed/c.FreeFlowSpeed
	return math.Min(1, math.Max(MinSpeedWeight, w))
}
