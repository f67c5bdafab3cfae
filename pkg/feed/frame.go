// Package feed receives live vehicle positions and keeps only the newest batch.
package feed

import (
	"encoding/json"
	"fmt"
	"math"
)

// Sample is one vehicle position in network source units.
type Sample struct {
	ID    string
	X, Y  float64
	Speed *float64
}

// Signal is the state string of one traffic-light cluster ("GrGr", ...).
type Signal struct {
	ID    string
	State string
}

// Frame is one message from the simulation bridge.
type Frame struct {
	Type     string    `json:"type"`
	Step     float64   `json:"step"`
	TS       int64     `json:"ts"`
	Vehicles []Vehicle `json:"vehicles"`
	TLS      []TLS     `json:"tls"`
	Message  string    `json:"message"`
}

const (
	FrameViz   = "viz"
	FrameError = "error"
)

type Vehicle struct {
	ID    string   `json:"id"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Lon   *float64 `json:"lon"`
	Lng   *float64 `json:"lng"`
	Lat   *float64 `json:"lat"`
	Speed *float64 `json:"speed"`
	Angle *float64 `json:"angle"`
	Type  string   `json:"type"`
}

type TLS struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// DecodeFrame parses one JSON frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &f, nil
}

// Sample converts v, preferring x over lng over lon and y over lat. It reports
// false when no finite coordinate pair is available.
func (v Vehicle) Sample() (Sample, bool) {
	x, ok := first(v.X, v.Lng, v.Lon)
	if !ok {
		return Sample{}, false
	}
	y, ok := first(v.Y, v.Lat)
	if !ok {
		return Sample{}, false
	}
	s := Sample{ID: v.ID, X: x, Y: y}
	if v.Speed != nil && finite(*v.Speed) {
		speed := *v.Speed
		s.Speed = &speed
	}
	return s, true
}

// Samples returns the usable vehicle positions of a viz frame. Vehicles
// without coordinates are skipped individually.
func (f *Frame) Samples() []Sample {
	out := make([]Sample, 0, len(f.Vehicles))
	for _, v := range f.Vehicles {
		if s, ok := v.Sample(); ok {
			out = append(out, s)
		}
	}
	return out
}

func (f *Frame) Signals() []Signal {
	out := make([]Signal, 0, len(f.TLS))
	for _, t := range f.TLS {
		if t.ID != "" {
			out = append(out, Signal{ID: t.ID, State: t.State})
		}
	}
	return out
}

func first(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil && finite(*v) {
			return *v, true
		}
	}
	return 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
