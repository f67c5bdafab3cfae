package network

import (
	"sort"

	"github.com/sudorandom/lane-heat/pkg/geometry"
)

// LaneReport describes what simplification did to one lane.
type LaneReport struct {
	ID         string  `json:"id"`
	EdgeID     string  `json:"edgeId"`
	Raw        int     `json:"raw"`
	Simplified int     `json:"simplified"`
	Kept       int     `json:"kept"`
	Deviation  float64 `json:"deviation"`
}

// ReportSummary aggregates a report.
type ReportSummary struct {
	Lanes        int     `json:"lanes"`
	RawPoints    int     `json:"rawPoints"`
	KeptPoints   int     `json:"keptPoints"`
	MaxDeviation float64 `json:"maxDeviation"`
}

// Report runs the per-lane pipeline of Parse over every lane that passes the
// edge filter and records point counts and the largest deviation introduced
// by Douglas-Peucker. Lane thinning is not applied. Lanes come back sorted by
// descending deviation.
func Report(data []byte, opts ...Option) ([]LaneReport, ReportSummary, error) {
	o := newOptions(opts)

	doc, err := decodeNet(data)
	if err != nil {
		return nil, ReportSummary{}, err
	}

	filter := newRoadFilter(o.roadTypes)
	var out []LaneReport
	var sum ReportSummary
	for i := range doc.Edges {
		e := &doc.Edges[i]
		if !filter.keep(e) {
			continue
		}
		for _, l := range e.Lanes {
			raw := geometry.ParseShape(l.Shape)
			if len(raw) < 2 {
				continue
			}
			simplified := geometry.Simplify(raw, o.tolerance)
			kept := geometry.CapSample(simplified, o.maxPoints)
			r := LaneReport{
				ID:         l.ID,
				EdgeID:     e.ID,
				Raw:        len(raw),
				Simplified: len(simplified),
				Kept:       len(kept),
				Deviation:  geometry.MaxDeviation(raw, simplified),
			}
			out = append(out, r)
			sum.Lanes++
			sum.RawPoints += r.Raw
			sum.KeptPoints += r.Kept
			if r.Deviation > sum.MaxDeviation {
				sum.MaxDeviation = r.Deviation
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deviation > out[j].Deviation })
	return out, sum, nil
}
