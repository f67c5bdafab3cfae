// Package network turns a SUMO net.xml document into a bounded, render-ready
// geometry model.
package network

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/sudorandom/lane-heat/pkg/geometry"
)

const (
	DefaultTolerance         = 5.0
	DefaultMaxPointsPerLane  = 20
	DefaultMaxLanes          = 15000
	internalFunction         = "internal"
	trafficLightJunctionType = "traffic_light"
)

// DefaultRoadTypes are the edge classifications kept besides internal and
// unclassified edges.
var DefaultRoadTypes = []string{"trunk", "primary", "secondary"}

type xmlNet struct {
	XMLName   xml.Name      `xml:"net"`
	Locations []xmlLocation `xml:"location"`
	Edges     []xmlEdge     `xml:"edge"`
	Junctions []xmlJunction `xml:"junction"`
}

type xmlLocation struct {
	ConvBoundary string `xml:"convBoundary,attr"`
}

type xmlEdge struct {
	ID       string    `xml:"id,attr"`
	Function string    `xml:"function,attr"`
	Type     string    `xml:"type,attr"`
	Lanes    []xmlLane `xml:"lane"`
}

type xmlLane struct {
	ID    string `xml:"id,attr"`
	Shape string `xml:"shape,attr"`
	Speed string `xml:"speed,attr"`
}

type xmlJunction struct {
	ID    string `xml:"id,attr"`
	Type  string `xml:"type,attr"`
	X     string `xml:"x,attr"`
	Y     string `xml:"y,attr"`
	Shape string `xml:"shape,attr"`
	TL    string `xml:"tl,attr"`
}

type options struct {
	tolerance      float64
	maxPoints      int
	maxLanes       int
	roadTypes      []string
	representative bool
}

func (o *options) String() string {
	return fmt.Sprintf("tolerance=%g max_points=%d max_lanes=%d road_types=%s representative=%t",
		o.tolerance, o.maxPoints, o.maxLanes, strings.Join(o.roadTypes, ","), o.representative)
}

// Option tunes Parse.
type Option func(*options)

func WithTolerance(tolerance float64) Option {
	return func(o *options) {
		o.tolerance = tolerance
	}
}

func WithMaxPointsPerLane(n int) Option {
	return func(o *options) {
		o.maxPoints = n
	}
}

func WithMaxLanes(n int) Option {
	return func(o *options) {
		o.maxLanes = n
	}
}

// WithRoadTypes replaces the allow-list of edge classifications. Matching is
// case-insensitive and by substring, so "primary" keeps "highway.primary_link".
func WithRoadTypes(types []string) Option {
	return func(o *options) {
		o.roadTypes = types
	}
}

// WithRepresentativeLanes keeps only the most detailed lane of every
// non-internal edge.
func WithRepresentativeLanes() Option {
	return func(o *options) {
		o.representative = true
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		tolerance: DefaultTolerance,
		maxPoints: DefaultMaxPointsPerLane,
		maxLanes:  DefaultMaxLanes,
		roadTypes: DefaultRoadTypes,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// roadFilter decides which edges survive.
type roadFilter struct {
	matcher *ahocorasick.Matcher
}

func newRoadFilter(types []string) *roadFilter {
	patterns := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			patterns = append(patterns, t)
		}
	}
	if len(patterns) == 0 {
		return &roadFilter{}
	}
	return &roadFilter{matcher: ahocorasick.NewStringMatcher(patterns)}
}

func (f *roadFilter) keep(e *xmlEdge) bool {
	if e.Function == internalFunction || e.Type == "" {
		return true
	}
	if f.matcher == nil {
		return false
	}
	return len(f.matcher.Match([]byte(strings.ToLower(e.Type)))) > 0
}

// decodeNet decodes the <net> root and rejects any element or text after it.
func decodeNet(data []byte) (*xmlNet, error) {
	var doc xmlNet
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, invalidFormat(err, "decode net.xml")
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &doc, nil
		}
		if err != nil {
			return nil, invalidFormat(err, "decode net.xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return nil, invalidFormat(fmt.Errorf("element <%s> after </net>", t.Name.Local), "decode net.xml")
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, invalidFormat(fmt.Errorf("text %q after </net>", bytes.TrimSpace(t)), "decode net.xml")
			}
		}
	}
}

// Parse builds a Model from a net.xml document.
func Parse(data []byte, opts ...Option) (*Model, error) {
	o := newOptions(opts)

	doc, err := decodeNet(data)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Bounds:           parseBounds(doc.Locations),
		Lanes:            []Lane{},
		TrafficLights:    []TrafficLight{},
		JunctionPolygons: []JunctionPolygon{},
		JunctionPoints:   []JunctionPoint{},
	}

	filter := newRoadFilter(o.roadTypes)
	keptEdges := 0
	internal := 0
	for i := range doc.Edges {
		e := &doc.Edges[i]
		if !filter.keep(e) {
			continue
		}
		keptEdges++
		lanes := edgeLanes(e, o)
		if e.Function == internalFunction {
			internal += len(lanes)
		} else if o.representative && len(lanes) > 1 {
			lanes = lanes[representative(lanes):][:1]
		}
		m.Lanes = append(m.Lanes, lanes...)
	}
	before := len(m.Lanes)
	m.Lanes = thin(m.Lanes, o.maxLanes)

	for _, j := range doc.Junctions {
		x, xok := parseCoord(j.X)
		y, yok := parseCoord(j.Y)
		if xok && yok {
			m.JunctionPoints = append(m.JunctionPoints, JunctionPoint{ID: j.ID, Lat: y, Lng: x})
			if j.Type == trafficLightJunctionType {
				cluster := j.TL
				if cluster == "" {
					cluster = j.ID
				}
				m.TrafficLights = append(m.TrafficLights, TrafficLight{ID: j.ID, ClusterID: cluster, Lat: y, Lng: x})
			}
		}
		if shape := geometry.ParseShape(j.Shape); len(shape) >= 3 {
			m.JunctionPolygons = append(m.JunctionPolygons, JunctionPolygon{
				ID:      j.ID,
				Type:    j.Type,
				Polygon: geometry.ToDisplay(shape),
			})
		}
	}

	log.Printf("[INGEST] Parsed %d/%d edges -> %d lanes (%d internal, %d before thinning), %d traffic lights, %d junction polygons, %d junction points [%s]",
		keptEdges, len(doc.Edges), len(m.Lanes), internal, before,
		len(m.TrafficLights), len(m.JunctionPolygons), len(m.JunctionPoints), o)
	return m, nil
}

func edgeLanes(e *xmlEdge, o *options) []Lane {
	lanes := make([]Lane, 0, len(e.Lanes))
	for _, l := range e.Lanes {
		ls := geometry.ParseShape(l.Shape)
		if len(ls) < 2 {
			continue
		}
		ls = geometry.CapSample(geometry.Simplify(ls, o.tolerance), o.maxPoints)
		if len(ls) < 2 {
			continue
		}
		lane := Lane{
			ID:         l.ID,
			EdgeID:     e.ID,
			Points:     geometry.ToDisplay(ls),
			IsInternal: e.Function == internalFunction,
		}
		if v, ok := parseCoord(l.Speed); ok {
			lane.SpeedLimit = &v
		}
		lanes = append(lanes, lane)
	}
	return lanes
}

// representative returns the index of the lane with the most points; the
// first one wins ties.
func representative(lanes []Lane) int {
	best := 0
	for i := 1; i < len(lanes); i++ {
		if len(lanes[i].Points) > len(lanes[best].Points) {
			best = i
		}
	}
	return best
}

// thin keeps every k-th lane, k = ceil(len/limit), when there are more than limit.
func thin(lanes []Lane, limit int) []Lane {
	if limit <= 0 || len(lanes) <= limit {
		return lanes
	}
	k := (len(lanes) + limit - 1) / limit
	out := make([]Lane, 0, limit)
	for i := 0; i < len(lanes); i += k {
		out = append(out, lanes[i])
	}
	return out
}

func parseBounds(locs []xmlLocation) *Bounds {
	for _, loc := range locs {
		if loc.ConvBoundary == "" {
			continue
		}
		parts := strings.Split(loc.ConvBoundary, ",")
		if len(parts) != 4 {
			return nil
		}
		var v [4]float64
		for i, p := range parts {
			f, ok := parseCoord(p)
			if !ok {
				return nil
			}
			v[i] = f
		}
		return &Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	}
	return nil
}

func parseCoord(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
