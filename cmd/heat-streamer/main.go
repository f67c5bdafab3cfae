package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/joho/godotenv"

	"github.com/sudorandom/lane-heat/pkg/config"
	"github.com/sudorandom/lane-heat/pkg/feed"
	"github.com/sudorandom/lane-heat/pkg/network"
	"github.com/sudorandom/lane-heat/pkg/utils"
	"github.com/sudorandom/lane-heat/pkg/viewer"
)

var (
	configFlag      = flag.String("config", "", "Config file (default lane-heat.yml if present)")
	qualityFlag     = flag.String("quality", "1080p", "Stream quality: 720p, 1080p or 4k")
	headlessFlag    = flag.Bool("headless", false, "Run without a local window (more stable for 24/7 streams)")
	outputFlag      = flag.String("output", "", "Output destination (file path or RTMP URL). Overrides STREAM_URL.")
	softwareFlag    = flag.Bool("software", false, "Force software encoding (libx264) even if hardware acceleration is available")
	deviceFlag      = flag.String("device", "/dev/dri/renderD128", "VA-API render device path (Linux only)")
	vaapiDriverFlag = flag.String("vaapi-driver", "", "Force a specific VA-API driver (e.g., iHD, i965, radeonsi)")
	fpsFlag         = flag.Int("fps", 30, "Output frame rate")
	debugFlag       = flag.Bool("debug", false, "Enable verbose logging for debugging")
)

type encodeOptions struct {
	Width, Height int
	FPS           int
	Bitrate       string
	MaxBitrate    string
	Codec         string
	GlobalHWArgs  []string
	OutputHWArgs  []string
	Output        string
	Debug         bool
}

func qualitySettings(q string) (width, height int, scale float64, bitrate, maxBitrate string) {
	switch q {
	case "4k":
		return 3840, 2160, 2, "18000k", "25000k"
	case "720p":
		return 1280, 720, 1, "4500k", "7500k"
	default:
		return 1920, 1080, 1, "9000k", "15000k"
	}
}

// selectCodec picks a hardware encoder when one is usable.
func selectCodec(goos string, software bool, device string) (codec string, globalArgs, outputArgs []string) {
	codec = "libx264"
	if software {
		return codec, nil, nil
	}
	switch goos {
	case "darwin":
		return "h264_videotoolbox", nil, []string{"-realtime", "true", "-q:v", "65", "-color_range", "1"}
	case "linux":
		if _, err := os.Stat(device); err != nil {
			if *debugFlag {
				log.Printf("DEBUG: Render device %s NOT found.", device)
			}
			return codec, nil, nil
		}
		f, err := os.OpenFile(device, os.O_RDWR, 0)
		if err != nil {
			log.Printf("WARNING: Device %s exists but cannot be opened for RW: %v. Using software encoding.", device, err)
			return codec, nil, nil
		}
		utils.CloseQuietly(f, device)
		return "h264_vaapi", []string{"-vaapi_device", device}, []string{"-vf", "format=nv12,hwupload", "-color_range", "1"}
	}
	return codec, nil, nil
}

func ffmpegArgs(o encodeOptions) []string {
	var args []string
	if o.Debug {
		args = append(args, "-loglevel", "debug")
	}
	args = append(args, o.GlobalHWArgs...)
	args = append(args,
		"-thread_queue_size", "1024",
		"-f", "rawvideo", "-pixel_format", "rgba", "-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"-framerate", fmt.Sprint(o.FPS), "-i", "pipe:0",
		"-c:v", o.Codec,
		"-b:v", o.Bitrate,
		"-maxrate", o.MaxBitrate,
		"-bufsize", "30000k",
		"-g", fmt.Sprint(2*o.FPS),
	)
	if o.Codec != "h264_vaapi" {
		args = append(args, "-pix_fmt", "yuv420p")
	}
	if o.Codec == "libx264" {
		keyint := 2 * o.FPS
		args = append(args, "-preset", "veryfast", "-crf", "18",
			"-x264-params", fmt.Sprintf("keyint=%d:min-keyint=%d:scenecut=0:bframes=2", keyint, keyint), "-color_range", "1")
	}
	args = append(args, o.OutputHWArgs...)
	if strings.HasPrefix(o.Output, "rtmp://") || strings.HasPrefix(o.Output, "rtmps://") || strings.HasSuffix(o.Output, ".flv") {
		args = append(args, "-f", "flv")
	}
	return append(args, o.Output)
}

// frameWriter forwards screen frames to ffmpeg without blocking the game
// loop; frames are dropped when the encoder falls behind.
type frameWriter struct {
	frames chan []byte
	pool   sync.Pool
	mu     sync.Mutex
	w      io.WriteCloser
}

func newFrameWriter(w io.WriteCloser, frameSize int) *frameWriter {
	fw := &frameWriter{frames: make(chan []byte, 2), w: w}
	fw.pool.New = func() any { return make([]byte, frameSize) }
	go fw.loop()
	return fw
}

func (fw *frameWriter) loop() {
	for buf := range fw.frames {
		fw.mu.Lock()
		if fw.w != nil {
			if _, err := fw.w.Write(buf); err != nil {
				log.Printf("Error writing frame: %v", err)
				utils.CloseQuietly(fw.w, "ffmpeg stdin")
				fw.w = nil
			}
		}
		fw.mu.Unlock()
		fw.pool.Put(buf)
	}
}

func (fw *frameWriter) OnFrame(screen *ebiten.Image) {
	buf := fw.pool.Get().([]byte)
	screen.ReadPixels(buf)
	select {
	case fw.frames <- buf:
	default:
		fw.pool.Put(buf)
	}
}

func (fw *frameWriter) Close() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.w != nil {
		utils.CloseQuietly(fw.w, "ffmpeg stdin")
		fw.w = nil
	}
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()

	width, height, scale, bitrate, maxBitrate := qualitySettings(*qualityFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := feed.NewSink()
	if cfg.Feed.WebSocketURL != "" {
		go feed.ListenWebSocket(ctx, cfg.Feed.WebSocketURL, cfg.Feed.Subscribe, sink)
	}
	if len(cfg.Feed.Command) > 0 {
		go func() {
			if err := feed.RunCommand(ctx, cfg.Feed.Command[0], cfg.Feed.Command[1:], sink); err != nil {
				log.Printf("[FEED] %v", err)
			}
		}()
	}

	engine := viewer.NewEngine(viewer.Options{
		Width:      width,
		Height:     height,
		Scale:      scale,
		CaptureDir: cfg.Viewer.CaptureDir,
		Render:     cfg.Render.Heatmap(),
		Enabled:    true,
		Diagnostic: cfg.Render.Diagnostic,
	}, sink)
	defer engine.Close()
	engine.Await(cfg.Network.SourceURL, network.Start(ctx, network.NewFetcher(cfg.Network.Timeout()),
		network.Request{SourceURL: cfg.Network.SourceURL}, cfg.Network.Options()...))

	output := *outputFlag
	if output == "" {
		output = os.Getenv("STREAM_URL")
	}
	if output == "" {
		output = "lane-heat.flv"
	}
	codec, globalHW, outputHW := selectCodec(runtime.GOOS, *softwareFlag, *deviceFlag)
	args := ffmpegArgs(encodeOptions{
		Width: width, Height: height, FPS: *fpsFlag,
		Bitrate: bitrate, MaxBitrate: maxBitrate,
		Codec: codec, GlobalHWArgs: globalHW, OutputHWArgs: outputHW,
		Output: output, Debug: *debugFlag,
	})

	cmd := exec.Command("ffmpeg", args...)
	cmd.Env = append(os.Environ(), "LIBVA_MESSAGES=1")
	if *vaapiDriverFlag != "" {
		cmd.Env = append(cmd.Env, "LIBVA_DRIVER_NAME="+*vaapiDriverFlag)
	}
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start ffmpeg: %v", err)
	}
	fw := newFrameWriter(stdin, width*height*4)
	engine.OnFrame = fw.OnFrame

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("ffmpeg process exited with error: %v", err)
		} else {
			log.Println("ffmpeg process exited normally")
		}
		fw.Close()
		log.Println("Stream connection lost. Exiting in 10s...")
		time.Sleep(10 * time.Second)
		os.Exit(1)
	}()
	log.Printf("Streaming %dx%d to %s using %s", width, height, output, codec)

	ebiten.SetTPS(*fpsFlag)
	if *headlessFlag {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		ebiten.SetWindowSize(1280, 720)
		ebiten.SetWindowTitle("Lane Heat Streamer")
	}
	if err := ebiten.RunGame(engine); err != nil {
		log.Fatal(err)
	}
	fw.Close()
}
