package network

import (
	"errors"
	"math"
	"testing"
)

func TestReport(t *testing.T) {
	lanes, sum, err := Report([]byte(scenarioNet))
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(lanes) != 2 {
		t.Fatalf("got %d lanes, want 2", len(lanes))
	}

	first := lanes[0]
	if first.ID != "e1_0" || first.Raw != 3 || first.Simplified != 2 || first.Kept != 2 {
		t.Errorf("first lane = %+v", first)
	}
	if math.Abs(first.Deviation-0.5) > 1e-9 {
		t.Errorf("deviation = %v, want 0.5", first.Deviation)
	}
	if lanes[1].Deviation != 0 {
		t.Errorf("straight lane deviation = %v, want 0", lanes[1].Deviation)
	}

	want := ReportSummary{Lanes: 2, RawPoints: 5, KeptPoints: 4, MaxDeviation: first.Deviation}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}

	// A tolerance below the bump keeps the middle point.
	lanes, _, err = Report([]byte(scenarioNet), WithTolerance(0.1))
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lanes {
		if l.Raw != l.Simplified || l.Deviation != 0 {
			t.Errorf("lane %s changed under a small tolerance: %+v", l.ID, l)
		}
	}
}

func TestReportInvalid(t *testing.T) {
	for _, in := range []string{"<net><edge", "<net></net><edge id='x'/>"} {
		_, _, err := Report([]byte(in))
		var ife *InvalidFormatError
		if !errors.As(err, &ife) {
			t.Errorf("Report(%q) error = %v, want InvalidFormatError", in, err)
		}
	}
}
