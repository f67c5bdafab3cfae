package network

import (
	"github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
)

// Lane is one retained lane. Points are in display order, [lat, lng] = [y, x].
type Lane struct {
	ID         string       `json:"id"`
	EdgeID     string       `json:"edgeId"`
	Points     [][2]float64 `json:"points"`
	SpeedLimit *float64     `json:"speedLimit,omitempty"`
	IsInternal bool         `json:"isInternal"`
}

// Bounds is the network boundary in source units.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Bound converts b to an orb.Bound.
func (b *Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

type TrafficLight struct {
	ID        string  `json:"id"`
	ClusterID string  `json:"clusterId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

type JunctionPolygon struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Polygon [][2]float64 `json:"polygon"`
}

type JunctionPoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Model is the simplified, render-ready network. It is never modified after
// Parse returns it.
type Model struct {
	Lanes            []Lane            `json:"lanes"`
	Bounds           *Bounds           `json:"bounds"`
	TrafficLights    []TrafficLight    `json:"trafficLights"`
	JunctionPolygons []JunctionPolygon `json:"junctionPolygons"`
	JunctionPoints   []JunctionPoint   `json:"junctionPoints"`
}

// Extent returns the area the model covers in source units: Bounds when the
// document carried one, otherwise the box around every lane and junction.
func (m *Model) Extent() orb.Bound {
	if m.Bounds != nil {
		return m.Bounds.Bound()
	}
	var mp orb.MultiPoint
	for _, l := range m.Lanes {
		for _, p := range l.Points {
			mp = append(mp, orb.Point{p[1], p[0]})
		}
	}
	for _, j := range m.JunctionPoints {
		mp = append(mp, orb.Point{j.Lng, j.Lat})
	}
	if len(mp) == 0 {
		return orb.Bound{}
	}
	return mp.Bound()
}

// FeatureCollection exports the model as GeoJSON with [x, y] coordinates.
func (m *Model) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range m.Lanes {
		f := geojson.NewLineStringFeature(toXY(l.Points))
		f.ID = l.ID
		f.SetProperty("kind", "lane")
		f.SetProperty("edgeId", l.EdgeID)
		f.SetProperty("isInternal", l.IsInternal)
		if l.SpeedLimit != nil {
			f.SetProperty("speedLimit", *l.SpeedLimit)
		}
		fc.AddFeature(f)
	}
	for _, j := range m.JunctionPolygons {
		ring := toXY(j.Polygon)
		if first, last := ring[0], ring[len(ring)-1]; first[0] != last[0] || first[1] != last[1] {
			ring = append(ring, []float64{first[0], first[1]})
		}
		f := geojson.NewPolygonFeature([][][]float64{ring})
		f.ID = j.ID
		f.SetProperty("kind", "junction")
		f.SetProperty("type", j.Type)
		fc.AddFeature(f)
	}
	for _, tl := range m.TrafficLights {
		f := geojson.NewPointFeature([]float64{tl.Lng, tl.Lat})
		f.ID = tl.ID
		f.SetProperty("kind", "trafficLight")
		f.SetProperty("clusterId", tl.ClusterID)
		fc.AddFeature(f)
	}
	for _, j := range m.JunctionPoints {
		f := geojson.NewPointFeature([]float64{j.Lng, j.Lat})
		f.ID = j.ID
		f.SetProperty("kind", "junctionPoint")
		fc.AddFeature(f)
	}
	return fc
}

func toXY(points [][2]float64) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = []float64{p[1], p[0]}
	}
	return out
}
