package network

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func TestExtent(t *testing.T) {
	m := &Model{Bounds: &Bounds{MinX: -5, MinY: 1, MaxX: 50, MaxY: 60}}
	want := orb.Bound{Min: orb.Point{-5, 1}, Max: orb.Point{50, 60}}
	if got := m.Extent(); got != want {
		t.Errorf("Extent() = %v, want %v", got, want)
	}

	m = &Model{
		Lanes: []Lane{
			{ID: "a", Points: [][2]float64{{10, 0}, {20, 5}}},
			{ID: "b", Points: [][2]float64{{-3, 7}, {0, 2}}},
		},
		JunctionPoints: []JunctionPoint{{ID: "j", Lat: 25, Lng: 1}},
	}
	want = orb.Bound{Min: orb.Point{0, -3}, Max: orb.Point{7, 25}}
	if got := m.Extent(); got != want {
		t.Errorf("Extent() without bounds = %v, want %v", got, want)
	}

	if got := (&Model{}).Extent(); !got.IsZero() {
		t.Errorf("empty Extent() = %v, want zero", got)
	}
}

func TestFeatureCollection(t *testing.T) {
	m, err := Parse([]byte(scenarioNet))
	if err != nil {
		t.Fatal(err)
	}
	fc := m.FeatureCollection()

	counts := map[string]int{}
	for _, f := range fc.Features {
		counts[f.PropertyMustString("kind")]++
	}
	want := map[string]int{"lane": 2, "junction": 1, "trafficLight": 1, "junctionPoint": 2}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("%s features = %d, want %d", k, counts[k], n)
		}
	}

	lane := fc.Features[0]
	if !lane.Geometry.IsLineString() {
		t.Fatalf("first feature is %s, want LineString", lane.Geometry.Type)
	}
	// GeoJSON is [x, y]; the model stores [y, x].
	if end := lane.Geometry.LineString[1]; end[0] != 100 || end[1] != 0 {
		t.Errorf("lane end = %v, want [100 0]", end)
	}

	poly := fc.Features[2]
	if !poly.Geometry.IsPolygon() {
		t.Fatalf("third feature is %s, want Polygon", poly.Geometry.Type)
	}
	ring := poly.Geometry.Polygon[0]
	if len(ring) != 5 || ring[0][0] != ring[4][0] || ring[0][1] != ring[4][1] {
		t.Errorf("polygon ring not closed: %v", ring)
	}

	if _, err := fc.MarshalJSON(); err != nil {
		t.Errorf("MarshalJSON failed: %v", err)
	}
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()

	m, err := Parse([]byte(scenarioNet))
	if err != nil {
		t.Fatal(err)
	}

	got, _, err := store.Load("http://example.com/a.net.xml")
	if err != nil || got != nil {
		t.Fatalf("Load before Save = (%v, %v), want (nil, nil)", got, err)
	}

	if err := store.Save("http://example.com/a.net.xml", m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, savedAt, err := store.Load("http://example.com/a.net.xml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if savedAt.IsZero() {
		t.Error("savedAt not recorded")
	}

	a, _ := json.Marshal(m)
	b, _ := json.Marshal(got)
	if string(a) != string(b) {
		t.Errorf("stored model differs:\n got %s\nwant %s", b, a)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != "http://example.com/a.net.xml" || entries[0].Lanes != len(m.Lanes) || entries[0].Bytes == 0 {
		t.Errorf("Entries() = %+v", entries)
	}

	if err := store.Delete("http://example.com/a.net.xml"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _, err := store.Load("http://example.com/a.net.xml"); err != nil || got != nil {
		t.Errorf("Load after Delete = (%v, %v), want (nil, nil)", got, err)
	}
	if entries, err := store.Entries(); err != nil || len(entries) != 0 {
		t.Errorf("Entries after Delete = (%+v, %v), want none", entries, err)
	}
	if err := store.Delete("http://example.com/never-saved.net.xml"); err != nil {
		t.Errorf("Delete of a missing model failed: %v", err)
	}
}
