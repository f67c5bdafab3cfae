// Package config loads the YAML configuration shared by the lane-heat binaries.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sudorandom/lane-heat/pkg/colorramp"
	"github.com/sudorandom/lane-heat/pkg/heatmap"
	"github.com/sudorandom/lane-heat/pkg/network"
)

// DefaultPaths are tried in order when no config file is named.
var DefaultPaths = []string{"lane-heat.yml", "config/lane-heat.yml"}

type NetworkConfig struct {
	SourceURL           string   `yaml:"sourceUrl"`
	Tolerance           float64  `yaml:"tolerance" validate:"gte=0"`
	MaxPointsPerLane    int      `yaml:"maxPointsPerLane" validate:"omitempty,gte=2"`
	MaxLanes            int      `yaml:"maxLanes" validate:"gte=0"`
	RoadTypes           []string `yaml:"roadTypes"`
	RepresentativeLanes bool     `yaml:"representativeLanes"`
	TimeoutSeconds      int      `yaml:"timeoutSeconds" validate:"gte=0"`
	StorePath           string   `yaml:"storePath"`
}

type FeedConfig struct {
	WebSocketURL string   `yaml:"websocketUrl" validate:"omitempty,url"`
	Subscribe    string   `yaml:"subscribe"`
	Command      []string `yaml:"command"`
	File         string   `yaml:"file"`
}

type StopConfig struct {
	Pos   float64 `yaml:"pos" validate:"gte=0,lte=1"`
	Color string  `yaml:"color" validate:"required,hexcolor"`
}

// RenderConfig mirrors heatmap.Config. Zero values mean "use the default".
type RenderConfig struct {
	Enabled       bool         `yaml:"enabled"`
	Diagnostic    bool         `yaml:"diagnostic"`
	FPSCap        int          `yaml:"fpsCap" validate:"gte=0"`
	FreeFlowSpeed float64      `yaml:"freeFlowSpeed" validate:"gte=0"`
	Radius        float64      `yaml:"radius" validate:"gte=0"`
	Intensity     float64      `yaml:"intensity" validate:"gte=0"`
	HalfLife      float64      `yaml:"halfLife" validate:"gte=0"`
	Weighting     string       `yaml:"weighting" validate:"omitempty,oneof=speed count"`
	Opacity       float64      `yaml:"opacity" validate:"gte=0,lte=1"`
	MarkerSize    float64      `yaml:"markerSize" validate:"gte=0"`
	Stops         []StopConfig `yaml:"stops" validate:"dive"`
}

type ViewerConfig struct {
	Width      int     `yaml:"width" validate:"gte=0"`
	Height     int     `yaml:"height" validate:"gte=0"`
	Scale      float64 `yaml:"scale" validate:"gte=0"`
	Title      string  `yaml:"title"`
	CaptureDir string  `yaml:"captureDir"`
}

type AppConfig struct {
	Network NetworkConfig `yaml:"network"`
	Feed    FeedConfig    `yaml:"feed"`
	Render  RenderConfig  `yaml:"render"`
	Viewer  ViewerConfig  `yaml:"viewer"`
}

// Load reads path, or the first of DefaultPaths that exists when path is
// empty. A missing default file is not an error: defaults are returned.
func Load(path string) (*AppConfig, error) {
	paths := DefaultPaths
	if path != "" {
		paths = []string{path}
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return Parse(data)
	}
	return Parse(nil)
}

// Parse decodes and validates a YAML document, then fills defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Network.TimeoutSeconds == 0 {
		c.Network.TimeoutSeconds = 120
	}
	if c.Network.StorePath == "" {
		c.Network.StorePath = "data/models"
	}
	if c.Viewer.Width == 0 {
		c.Viewer.Width = 1280
	}
	if c.Viewer.Height == 0 {
		c.Viewer.Height = 720
	}
	if c.Viewer.Scale == 0 {
		c.Viewer.Scale = 1
	}
	if c.Viewer.Title == "" {
		c.Viewer.Title = "Lane Heat"
	}
	if c.Viewer.CaptureDir == "" {
		c.Viewer.CaptureDir = "captures"
	}
}

// ApplyEnv overrides the network source and feed URL with NET_URL and
// FEED_WS_URL when they are set.
func (c *AppConfig) ApplyEnv() {
	c.Network.SourceURL = getEnv("NET_URL", c.Network.SourceURL)
	c.Feed.WebSocketURL = getEnv("FEED_WS_URL", c.Feed.WebSocketURL)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Options converts the network section into parser options.
func (n NetworkConfig) Options() []network.Option {
	var opts []network.Option
	if n.Tolerance > 0 {
		opts = append(opts, network.WithTolerance(n.Tolerance))
	}
	if n.MaxPointsPerLane > 0 {
		opts = append(opts, network.WithMaxPointsPerLane(n.MaxPointsPerLane))
	}
	if n.MaxLanes > 0 {
		opts = append(opts, network.WithMaxLanes(n.MaxLanes))
	}
	if len(n.RoadTypes) > 0 {
		opts = append(opts, network.WithRoadTypes(n.RoadTypes))
	}
	if n.RepresentativeLanes {
		opts = append(opts, network.WithRepresentativeLanes())
	}
	return opts
}

// Heatmap converts the render section into a clamped heatmap.Config.
func (r RenderConfig) Heatmap() heatmap.Config {
	cfg := heatmap.Config{
		FPSCap:        r.FPSCap,
		FreeFlowSpeed: r.FreeFlowSpeed,
		Radius:        r.Radius,
		Intensity:     r.Intensity,
		HalfLife:      r.HalfLife,
		Weighting:     heatmap.Weighting(r.Weighting),
		Opacity:       r.Opacity,
		MarkerSize:    r.MarkerSize,
	}
	for _, s := range r.Stops {
		c, err := ParseHexColor(s.Color)
		if err != nil {
			continue
		}
		cfg.Stops = append(cfg.Stops, colorramp.Stop{Pos: s.Pos, Color: c})
	}
	return heatmap.NewConfig(cfg)
}

// ParseHexColor reads "#rgb" or "#rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
