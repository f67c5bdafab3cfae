package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/sudorandom/lane-heat/pkg/heatmap"
)

const sampleConfig = `
network:
  sourceUrl: https://example.com/addis.net.xml
  tolerance: 3
  maxLanes: 8000
  roadTypes: [trunk, primary]
  representativeLanes: true
feed:
  websocketUrl: ws://localhost:8765/viz
render:
  enabled: true
  fpsCap: 25
  radius: 120
  weighting: count
  opacity: 0.8
  stops:
    - {pos: 0, color: "#000"}
    - {pos: 1, color: "#ff8000"}
viewer:
  width: 1920
  height: 1080
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Network.SourceURL != "https://example.com/addis.net.xml" || cfg.Network.MaxLanes != 8000 {
		t.Errorf("network = %+v", cfg.Network)
	}
	if got := len(cfg.Network.Options()); got != 4 {
		t.Errorf("network options = %d, want 4", got)
	}
	if cfg.Network.TimeoutSeconds != 120 || cfg.Network.StorePath != "data/models" {
		t.Errorf("network defaults not applied: %+v", cfg.Network)
	}
	if cfg.Viewer.Width != 1920 || cfg.Viewer.Height != 1080 || cfg.Viewer.Scale != 1 || cfg.Viewer.CaptureDir != "captures" {
		t.Errorf("viewer = %+v", cfg.Viewer)
	}

	hm := cfg.Render.Heatmap()
	if hm.FPSCap != 25 || hm.Radius != 80 || hm.Weighting != heatmap.WeightCount || hm.Opacity != 0.8 || hm.HalfLife != 2.5 {
		t.Errorf("heatmap config = %+v", hm)
	}
	if len(hm.Stops) != 2 || hm.Stops[1].Color != (color.RGBA{255, 128, 0, 255}) {
		t.Errorf("stops = %+v", hm.Stops)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"render:\n  weighting: density\n",
		"render:\n  opacity: 2\n",
		"render:\n  fpsCap: -1\n",
		"render:\n  stops:\n    - {pos: 0.5, color: red}\n",
		"render:\n  stops:\n    - {pos: 1.5, color: '#fff'}\n",
		"feed:\n  websocketUrl: not a url\n",
		"network:\n  maxPointsPerLane: 1\n",
		"network: [unbalanced\n",
	}
	for _, in := range tests {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Render.Enabled {
		t.Error("render.enabled not read")
	}

	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("Load of a named missing file succeeded")
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load without a file failed: %v", err)
	}
	if cfg.Viewer.Width != 1280 || cfg.Render.Heatmap().FPSCap != 20 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("NET_URL", "file:///tmp/other.net.xml")
	t.Setenv("FEED_WS_URL", "")
	cfg.ApplyEnv()
	if cfg.Network.SourceURL != "file:///tmp/other.net.xml" {
		t.Errorf("NET_URL not applied: %s", cfg.Network.SourceURL)
	}
	if cfg.Feed.WebSocketURL != "ws://localhost:8765/viz" {
		t.Errorf("empty FEED_WS_URL overrode the file: %s", cfg.Feed.WebSocketURL)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#ffffff", color.RGBA{255, 255, 255, 255}, true},
		{"00008b", color.RGBA{0, 0, 139, 255}, true},
		{"#0f0", color.RGBA{0, 255, 0, 255}, true},
		{"#12345", color.RGBA{}, false},
		{"#gggggg", color.RGBA{}, false},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseHexColor(%q) = (%v, %v)", tt.in, got, err)
		}
	}
}
