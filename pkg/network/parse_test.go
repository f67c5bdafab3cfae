package network

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const scenarioNet = `<?xml version="1.0" encoding="UTF-8"?>
<net version="1.9" junctionCornerDetail="5">
    <location netOffset="0.00,0.00" convBoundary="0.00,0.00,100.00,100.00" origBoundary="0,0,100,100" projParameter="!"/>
    <edge id="e1" from="j1" to="j2" priority="7" type="highway.primary">
        <lane id="e1_0" index="0" speed="13.89" length="100.00" shape="0.00,0.00 50.00,0.50 100.00,0.00"/>
        <lane id="e1_1" index="1" speed="13.89" length="100.00" shape="0.00,3.20 100.00,3.20"/>
    </edge>
    <junction id="j1" type="traffic_light" x="0.00" y="0.00" incLanes="" intLanes="" shape="-1.00,-1.00 1.00,-1.00 1.00,1.00 -1.00,1.00"/>
    <junction id="j2" type="priority" x="100.00" y="0.00" incLanes="e1_0 e1_1" intLanes=""/>
</net>`

func TestParseScenario(t *testing.T) {
	m, err := Parse([]byte(scenarioNet))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Bounds == nil {
		t.Fatal("expected bounds")
	}
	if *m.Bounds != (Bounds{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}) {
		t.Errorf("bounds = %+v, want {0 0 100 100}", *m.Bounds)
	}
	if len(m.Lanes) != 2 {
		t.Fatalf("got %d lanes, want 2", len(m.Lanes))
	}
	if len(m.TrafficLights) != 1 {
		t.Fatalf("got %d traffic lights, want 1", len(m.TrafficLights))
	}
	tl := m.TrafficLights[0]
	if tl.ID != "j1" || tl.ClusterID != "j1" || tl.Lat != 0 || tl.Lng != 0 {
		t.Errorf("traffic light = %+v", tl)
	}

	lane := m.Lanes[0]
	if lane.ID != "e1_0" || lane.EdgeID != "e1" || lane.IsInternal {
		t.Errorf("lane = %+v", lane)
	}
	// The 0.5 bump is under the 5 unit tolerance.
	if len(lane.Points) != 2 {
		t.Errorf("lane e1_0 has %d points, want 2", len(lane.Points))
	}
	if lane.Points[0] != [2]float64{0, 0} || lane.Points[len(lane.Points)-1] != [2]float64{0, 100} {
		t.Errorf("lane endpoints = %v..%v, want [0 0]..[0 100]", lane.Points[0], lane.Points[len(lane.Points)-1])
	}
	if lane.SpeedLimit == nil || *lane.SpeedLimit != 13.89 {
		t.Errorf("speed limit = %v, want 13.89", lane.SpeedLimit)
	}

	if len(m.JunctionPolygons) != 1 || m.JunctionPolygons[0].ID != "j1" || len(m.JunctionPolygons[0].Polygon) != 4 {
		t.Errorf("junction polygons = %+v", m.JunctionPolygons)
	}
	if len(m.JunctionPoints) != 2 {
		t.Errorf("got %d junction points, want 2", len(m.JunctionPoints))
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"",
		"not xml at all",
		"<net><edge id='a'></net>",
		"<osm><node id='1'/></osm>",
		"<net><edge id='a'><lane id='a_0' shape='0,0 10,0'/></edge></net><<<garbage",
		"<net></net><net></net>",
		"<net></net>trailing text",
	}

	for _, in := range tests {
		_, err := Parse([]byte(in))
		var ife *InvalidFormatError
		if !errors.As(err, &ife) {
			t.Errorf("Parse(%q) error = %v, want InvalidFormatError", in, err)
		}
	}
}

func TestParseTrailingMisc(t *testing.T) {
	in := "<?xml version='1.0'?>\n<net><edge id='a'><lane id='a_0' shape='0,0 10,0'/></edge></net>\n<!-- written by netconvert -->\n"
	m, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Lanes) != 1 {
		t.Errorf("lanes = %d, want 1", len(m.Lanes))
	}
}

func TestParseBounds(t *testing.T) {
	tests := []struct {
		location string
		want     *Bounds
	}{
		{`<location convBoundary="1,2,3,4"/>`, &Bounds{1, 2, 3, 4}},
		{`<location convBoundary="-10.5,0,10.5,20"/>`, &Bounds{-10.5, 0, 10.5, 20}},
		{`<location convBoundary="1,2,3"/>`, nil},
		{`<location convBoundary="1,2,x,4"/>`, nil},
		{`<location netOffset="0,0"/>`, nil},
		{``, nil},
	}

	for _, tt := range tests {
		m, err := Parse([]byte("<net>" + tt.location + "</net>"))
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", tt.location, err)
		}
		switch {
		case tt.want == nil && m.Bounds != nil:
			t.Errorf("%s: bounds = %+v, want nil", tt.location, *m.Bounds)
		case tt.want != nil && (m.Bounds == nil || *m.Bounds != *tt.want):
			t.Errorf("%s: bounds = %v, want %+v", tt.location, m.Bounds, *tt.want)
		}
	}
}

func TestParseEdgeFilter(t *testing.T) {
	doc := `<net>
	<edge id="internal" function="internal" type="highway.residential"><lane id="i_0" shape="0,0 10,0"/></edge>
	<edge id="untyped"><lane id="u_0" shape="0,0 10,0"/></edge>
	<edge id="trunk" type="highway.trunk"><lane id="t_0" shape="0,0 10,0"/></edge>
	<edge id="primary" type="Highway.PRIMARY_link"><lane id="p_0" shape="0,0 10,0"/></edge>
	<edge id="secondary" type="highway.secondary"><lane id="s_0" shape="0,0 10,0"/></edge>
	<edge id="residential" type="highway.residential"><lane id="r_0" shape="0,0 10,0"/></edge>
	<edge id="footway" type="highway.footway"><lane id="f_0" shape="0,0 10,0"/></edge>
</net>`

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"default", nil, []string{"internal", "untyped", "trunk", "primary", "secondary"}},
		{"custom", []Option{WithRoadTypes([]string{"residential"})}, []string{"internal", "untyped", "residential"}},
		{"empty allow-list", []Option{WithRoadTypes(nil)}, []string{"internal", "untyped"}},
	}

	for _, tt := range tests {
		m, err := Parse([]byte(doc), tt.opts...)
		if err != nil {
			t.Fatalf("%s: Parse failed: %v", tt.name, err)
		}
		var got []string
		for _, l := range m.Lanes {
			got = append(got, l.EdgeID)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s: kept edges %v, want %v", tt.name, got, tt.want)
		}
		if !m.Lanes[0].IsInternal {
			t.Errorf("%s: internal lane not flagged", tt.name)
		}
	}
}

func TestParseDropsDegenerateLanes(t *testing.T) {
	doc := `<net><edge id="e">
	<lane id="ok" shape="0,0 10,0"/>
	<lane id="single" shape="5,5"/>
	<lane id="garbage" shape="a,b c,d"/>
	<lane id="missing"/>
	<lane id="badspeed" speed="fast" shape="0,0 1,1 bad"/>
</edge></net>`
	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Lanes) != 2 || m.Lanes[0].ID != "ok" || m.Lanes[1].ID != "badspeed" {
		t.Fatalf("lanes = %+v, want ok and badspeed", m.Lanes)
	}
	if m.Lanes[1].SpeedLimit != nil {
		t.Errorf("unparseable speed produced %v", *m.Lanes[1].SpeedLimit)
	}
}

func TestParseLaneCaps(t *testing.T) {
	var shape strings.Builder
	for i := 0; i < 200; i++ {
		// Zig-zag of amplitude 20 survives a tolerance of 5.
		fmt.Fprintf(&shape, "%d,%d ", i*10, (i%2)*20)
	}
	doc := `<net><edge id="e"><lane id="zig" shape="` + shape.String() + `"/></edge></net>`

	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pts := m.Lanes[0].Points
	if len(pts) > DefaultMaxPointsPerLane {
		t.Errorf("lane kept %d points, cap is %d", len(pts), DefaultMaxPointsPerLane)
	}
	if pts[0] != [2]float64{0, 0} || pts[len(pts)-1] != [2]float64{20, 1990} {
		t.Errorf("endpoints = %v..%v", pts[0], pts[len(pts)-1])
	}

	m, err = Parse([]byte(doc), WithMaxPointsPerLane(50), WithTolerance(0))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if n := len(m.Lanes[0].Points); n > 50 || n < 40 {
		t.Errorf("lane kept %d points with cap 50", n)
	}
}

func TestParseThinning(t *testing.T) {
	var b strings.Builder
	b.WriteString("<net>")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, `<edge id="e%d"><lane id="l%d" shape="0,%d 10,%d"/></edge>`, i, i, i, i)
	}
	b.WriteString("</net>")

	tests := []struct {
		limit int
		want  []string
	}{
		{10, []string{"l0", "l1", "l2", "l3", "l4", "l5", "l6"}},
		{7, []string{"l0", "l1", "l2", "l3", "l4", "l5", "l6"}},
		{3, []string{"l0", "l3", "l6"}},
		{2, []string{"l0", "l4"}},
		{1, []string{"l0"}},
	}

	for _, tt := range tests {
		m, err := Parse([]byte(b.String()), WithMaxLanes(tt.limit))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		var got []string
		for _, l := range m.Lanes {
			got = append(got, l.ID)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("limit %d: got %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestParseRepresentativeLanes(t *testing.T) {
	doc := `<net>
	<edge id="road">
		<lane id="road_0" shape="0,0 100,0"/>
		<lane id="road_1" shape="0,10 50,40 100,10"/>
		<lane id="road_2" shape="0,20 50,50 100,20"/>
	</edge>
	<edge id=":j_0" function="internal">
		<lane id=":j_0_0" shape="0,0 1,1"/>
		<lane id=":j_0_1" shape="0,1 1,2"/>
	</edge>
</net>`

	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Lanes) != 5 {
		t.Errorf("default mode kept %d lanes, want 5", len(m.Lanes))
	}

	m, err = Parse([]byte(doc), WithRepresentativeLanes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var got []string
	for _, l := range m.Lanes {
		got = append(got, l.ID)
	}
	if want := "road_1,:j_0_0,:j_0_1"; strings.Join(got, ",") != want {
		t.Errorf("representative lanes = %v, want %s", got, want)
	}
}

func TestParseJunctions(t *testing.T) {
	doc := `<net>
	<junction id="a" type="traffic_light" x="1" y="2" tl="cluster_ab" shape="0,0 1,0 1,1"/>
	<junction id="b" type="traffic_light" x="3" y="4" tl="cluster_ab"/>
	<junction id="c" type="traffic_light" x="NaN" y="4"/>
	<junction id="d" type="priority" x="5" y="6" shape="0,0 1,1"/>
	<junction id="e" type="dead_end" shape="0,0 2,0 2,2 0,2"/>
</net>`
	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	wantTL := []TrafficLight{
		{ID: "a", ClusterID: "cluster_ab", Lat: 2, Lng: 1},
		{ID: "b", ClusterID: "cluster_ab", Lat: 4, Lng: 3},
	}
	if len(m.TrafficLights) != len(wantTL) {
		t.Fatalf("traffic lights = %+v", m.TrafficLights)
	}
	for i := range wantTL {
		if m.TrafficLights[i] != wantTL[i] {
			t.Errorf("traffic light %d = %+v, want %+v", i, m.TrafficLights[i], wantTL[i])
		}
	}

	if len(m.JunctionPolygons) != 2 || m.JunctionPolygons[0].ID != "a" || m.JunctionPolygons[1].ID != "e" {
		t.Errorf("junction polygons = %+v", m.JunctionPolygons)
	}
	if m.JunctionPolygons[1].Polygon[1] != [2]float64{0, 2} {
		t.Errorf("polygon not in display order: %v", m.JunctionPolygons[1].Polygon)
	}

	var ids []string
	for _, p := range m.JunctionPoints {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "a,b,d" {
		t.Errorf("junction points = %v, want a,b,d", ids)
	}
}
