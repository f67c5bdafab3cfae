package viewer

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/sudorandom/lane-heat/pkg/utils"
)

// captureFrame copies the composited screen and writes it as a PNG in the
// background.
func (e *Engine) captureFrame(img *ebiten.Image, timestamp time.Time) {
	if e.CaptureDir == "" {
		return
	}

	// ReadPixels yields premultiplied alpha; the screen is opaque so it
	// doubles as straight RGBA.
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	img.ReadPixels(rgba.Pix)

	go func() {
		path, err := writeCapture(e.CaptureDir, rgba, timestamp)
		if err != nil {
			log.Printf("[VIEWER] Error writing capture: %v", err)
			return
		}
		log.Printf("[VIEWER] Captured frame: %s", path)
	}()
}

func writeCapture(dir string, img image.Image, timestamp time.Time) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode capture: %w", err)
	}
	name := fmt.Sprintf("lane-heat-%s.png", timestamp.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := utils.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write capture: %w", err)
	}
	return path, nil
}
