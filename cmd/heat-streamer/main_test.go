package main

import (
	"slices"
	"strings"
	"testing"
)

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name    string
		opts    encodeOptions
		want    []string
		notWant []string
	}{
		{
			name:    "software to rtmp",
			opts:    encodeOptions{Width: 1920, Height: 1080, FPS: 30, Codec: "libx264", Output: "rtmp://live/key"},
			want:    []string{"1920x1080", "libx264", "yuv420p", "keyint=60:min-keyint=60:scenecut=0:bframes=2", "flv"},
			notWant: []string{"-vaapi_device", "-loglevel"},
		},
		{
			name: "vaapi to mp4",
			opts: encodeOptions{Width: 1280, Height: 720, FPS: 25, Codec: "h264_vaapi",
				GlobalHWArgs: []string{"-vaapi_device", "/dev/dri/renderD128"},
				OutputHWArgs: []string{"-vf", "format=nv12,hwupload"},
				Output:       "out.mp4", Debug: true},
			want:    []string{"-loglevel", "-vaapi_device", "format=nv12,hwupload", "25"},
			notWant: []string{"yuv420p", "flv", "-x264-params"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := ffmpegArgs(tt.opts)
			if args[len(args)-1] != tt.opts.Output {
				t.Errorf("last arg = %q, want output %q", args[len(args)-1], tt.opts.Output)
			}
			for _, w := range tt.want {
				if !slices.Contains(args, w) {
					t.Errorf("missing %q in %s", w, strings.Join(args, " "))
				}
			}
			for _, w := range tt.notWant {
				if slices.Contains(args, w) {
					t.Errorf("unexpected %q in %s", w, strings.Join(args, " "))
				}
			}
		})
	}
}

func TestQualitySettings(t *testing.T) {
	if w, h, _, _, _ := qualitySettings("4k"); w != 3840 || h != 2160 {
		t.Errorf("4k = %dx%d", w, h)
	}
	if w, h, _, _, _ := qualitySettings("unknown"); w != 1920 || h != 1080 {
		t.Errorf("default = %dx%d", w, h)
	}
}

func TestSelectCodecSoftware(t *testing.T) {
	codec, global, output := selectCodec("linux", true, "/dev/dri/renderD128")
	if codec != "libx264" || global != nil || output != nil {
		t.Errorf("software codec = %s %v %v", codec, global, output)
	}
	if codec, _, _ := selectCodec("linux", false, "/nonexistent/device"); codec != "libx264" {
		t.Errorf("missing device codec = %s", codec)
	}
	if codec, _, _ := selectCodec("darwin", false, ""); codec != "h264_videotoolbox" {
		t.Errorf("darwin codec = %s", codec)
	}
}
