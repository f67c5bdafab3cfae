package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/joho/godotenv"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/sudorandom/lane-heat/pkg/config"
	"github.com/sudorandom/lane-heat/pkg/feed"
	"github.com/sudorandom/lane-heat/pkg/heatmap"
	"github.com/sudorandom/lane-heat/pkg/network"
	"github.com/sudorandom/lane-heat/pkg/utils"
	"github.com/sudorandom/lane-heat/pkg/viewer"
)

var (
	configFlag    = flag.String("config", "", "Config file (default lane-heat.yml if present)")
	urlFlag       = flag.String("url", "", "Network URL or path, overrides the config")
	wsFlag        = flag.String("ws", "", "Bridge websocket URL, overrides the config")
	fileFlag      = flag.String("frames", "", "Read JSON-lines frames from this file ('-' for stdin)")
	headlessFlag  = flag.Bool("headless", false, "Run without a local window (Xvfb rendering active)")
	offscreenFlag = flag.Bool("offscreen", false, "Render without ebiten and write periodic snapshots")
	snapshotEvery = flag.Duration("snapshot-every", 10*time.Second, "Snapshot interval in offscreen mode")
	windowWidth   = flag.Int("window-width", 0, "Initial window width (default: render width)")
	windowHeight  = flag.Int("window-height", 0, "Initial window height (default: render height)")
	tpsFlag       = flag.Int("tps", heatmap.BaseTickRate, "Ticks per second (engine updates)")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run owns every resource of the viewer so that its defers complete before
// main exits.
func run() error {
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if *urlFlag != "" {
		cfg.Network.SourceURL = *urlFlag
	}
	if *wsFlag != "" {
		cfg.Feed.WebSocketURL = *wsFlag
	}
	if *fileFlag != "" {
		cfg.Feed.File = *fileFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := feed.NewSink()
	startFeeds(ctx, cfg.Feed, sink)

	store, err := network.OpenStore(cfg.Network.StorePath)
	if err != nil {
		log.Printf("Model store unavailable, continuing without it: %v", err)
		store = nil
	} else {
		defer utils.CloseQuietly(store, "model store")
	}

	fetcher := network.NewFetcher(cfg.Network.Timeout())
	ingestion := network.Start(ctx, fetcher, network.Request{SourceURL: cfg.Network.SourceURL}, cfg.Network.Options()...)

	if *offscreenFlag {
		if err := runOffscreen(ctx, cfg, sink, store, ingestion); err != nil {
			return fmt.Errorf("offscreen render failed: %w", err)
		}
		return nil
	}

	engine := viewer.NewEngine(viewer.Options{
		Width:      cfg.Viewer.Width,
		Height:     cfg.Viewer.Height,
		Scale:      cfg.Viewer.Scale,
		CaptureDir: cfg.Viewer.CaptureDir,
		Render:     cfg.Render.Heatmap(),
		Enabled:    cfg.Render.Enabled,
		Diagnostic: cfg.Render.Diagnostic,
	}, sink)
	defer engine.Close()
	if store != nil {
		saver := &modelSaver{store: store}
		// Runs before the deferred store Close.
		defer saver.Wait()
		engine.Fallback = store.Load
		engine.OnModel = saver.OnModel
	}
	engine.Await(cfg.Network.SourceURL, ingestion)

	ebiten.SetTPS(*tpsFlag)
	if *headlessFlag {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		w, h := *windowWidth, *windowHeight
		if w <= 0 || h <= 0 {
			w, h = cfg.Viewer.Width, cfg.Viewer.Height
		}
		ebiten.SetWindowSize(w, h)
		ebiten.SetWindowTitle(cfg.Viewer.Title)
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	return ebiten.RunGame(engine)
}

type modelStore interface {
	Save(sourceURL string, m *network.Model) error
}

// modelSaver writes ingested models off the update goroutine. Wait blocks
// until every pending save has finished.
type modelSaver struct {
	store modelStore
	wg    sync.WaitGroup
}

func (s *modelSaver) OnModel(sourceURL string, m *network.Model) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.Save(sourceURL, m); err != nil {
			log.Printf("Error saving model: %v", err)
		}
	}()
}

func (s *modelSaver) Wait() { s.wg.Wait() }

// startFeeds attaches every configured frame source to sink.
func startFeeds(ctx context.Context, fc config.FeedConfig, sink *feed.Sink) {
	if fc.WebSocketURL != "" {
		go feed.ListenWebSocket(ctx, fc.WebSocketURL, fc.Subscribe, sink)
	}
	if len(fc.Command) > 0 {
		go func() {
			if err := feed.RunCommand(ctx, fc.Command[0], fc.Command[1:], sink); err != nil {
				log.Printf("[FEED] %v", err)
			}
		}()
	}
	if fc.File != "" {
		go func() {
			r := os.Stdin
			if fc.File != "-" {
				f, err := os.Open(fc.File)
				if err != nil {
					log.Printf("[FEED] Error opening frames: %v", err)
					return
				}
				defer utils.CloseQuietly(f, "frames file")
				r = f
			}
			if err := feed.ReadFrames(ctx, r, sink); err != nil {
				log.Printf("[FEED] %v", err)
			}
			log.Printf("[FEED] Frames from %s exhausted", fc.File)
		}()
	}
}

// runOffscreen drives the renderer with Scheduler.Run and writes the
// composited frame to the capture directory every snapshot interval.
func runOffscreen(ctx context.Context, cfg *config.AppConfig, sink *feed.Sink, store *network.Store, ingestion <-chan network.Response) error {
	var m *network.Model
	select {
	case resp := <-ingestion:
		if resp.Err != nil {
			if store == nil {
				return resp.Err
			}
			log.Printf("Ingestion failed (%v), trying the model store", resp.Err)
			stored, savedAt, err := store.Load(cfg.Network.SourceURL)
			if err != nil || stored == nil {
				return resp.Err
			}
			log.Printf("Using stored network from %s", savedAt.Format(time.RFC3339))
			m = stored
		} else {
			m = resp.Model
			if store != nil {
				if err := store.Save(cfg.Network.SourceURL, m); err != nil {
					log.Printf("Error saving model: %v", err)
				}
			}
		}
	case <-ctx.Done():
		return nil
	}

	vp := viewer.NewCamera(m.Extent(), cfg.Viewer.Width, cfg.Viewer.Height).Viewport()
	base := viewer.RasterizeBase(m, vp)

	r := heatmap.NewRenderer(cfg.Render.Heatmap())
	defer r.Close()
	r.Resize(vp)
	r.SetEnabled(true)
	r.SetDiagnostic(cfg.Render.Diagnostic)

	frame := image.NewRGBA(base.Bounds())
	var last time.Time
	sched := heatmap.NewScheduler(r, sink.Samples)
	sched.Run(ctx, func() {
		if time.Since(last) < *snapshotEvery {
			return
		}
		last = time.Now()
		copy(frame.Pix, base.Pix)
		if d := r.Display(); d != nil {
			draw.Draw(frame, frame.Bounds(), d, image.Point{}, draw.Over)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			log.Printf("Error encoding snapshot: %v", err)
			return
		}
		path := filepath.Join(cfg.Viewer.CaptureDir, fmt.Sprintf("lane-heat-%s.png", last.Format("20060102-150405")))
		if err := utils.WriteFileAtomic(path, buf.Bytes()); err != nil {
			log.Printf("Error writing snapshot: %v", err)
			return
		}
		rendered, skipped := sched.Frames()
		st := r.Stats()
		fs := sink.Stats()
		log.Printf("Snapshot %s: %d/%d vehicles visible, %d frames (%d skipped), feed %d frames (%d dropped, %d malformed)",
			path, st.Visible, st.Total, rendered, skipped, fs.Frames, fs.Dropped, fs.Malformed)
	})
	return nil
}
