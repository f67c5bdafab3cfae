package viewer

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/lane-heat/pkg/colorramp"
	"github.com/sudorandom/lane-heat/pkg/heatmap"
)

var (
	ColorPanel       = color.RGBA{0, 0, 0, 100}
	ColorPanelBorder = color.RGBA{36, 42, 53, 255}
	ColorAccent      = color.RGBA{0, 191, 255, 255}
)

// rampPixels renders the color ramp as a 256x1 opaque strip.
func rampPixels(stops []colorramp.Stop) []byte {
	lut := colorramp.Get(stops)
	pixels := make([]byte, 256*4)
	for i, c := range lut {
		pixels[i*4], pixels[i*4+1], pixels[i*4+2], pixels[i*4+3] = c.R, c.G, c.B, 255
	}
	return pixels
}

// rampLabels names the two ends of the ramp for the active weighting.
func rampLabels(w heatmap.Weighting) (low, high string) {
	if w == heatmap.WeightCount {
		return "sparse", "dense"
	}
	return "free flow", "congested"
}

func (e *Engine) sizes() (margin, fontSize float64) {
	if e.Width > 2000 {
		return 80, 32
	}
	return 40, 16
}

func (e *Engine) drawPanel(screen *ebiten.Image, x, y, w, h, fontSize float64, title string) {
	vector.DrawFilledRect(screen, float32(x-10), float32(y-fontSize-15), float32(w), float32(h), ColorPanel, false)
	vector.StrokeRect(screen, float32(x-10), float32(y-fontSize-15), float32(w), float32(h), 1, ColorPanelBorder, false)
	vector.DrawFilledRect(screen, float32(x-10), float32(y-fontSize-15), 4, float32(fontSize+10), ColorAccent, false)

	titleFace := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x+5, y-fontSize-5)
	op.ColorScale.Scale(1, 1, 1, 0.5)
	text.Draw(screen, title, titleFace, op)
}

func (e *Engine) drawLegend(screen *ebiten.Image) {
	if e.fontSource == nil {
		return
	}
	margin, fontSize := e.sizes()
	boxW, boxH := 260.0, 150.0
	if e.Width > 2000 {
		boxW, boxH = 520.0, 300.0
	}
	lx := float64(e.Width) - margin - boxW + 10
	ly := float64(e.Height) - margin - boxH + fontSize + 15
	e.drawPanel(screen, lx, ly, boxW, boxH, fontSize, "LEGEND")

	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}
	barW, barH := boxW-40, fontSize*0.6
	y := ly + 5

	cfg := e.renderer.Config()
	if e.renderer.Enabled() {
		op := &ebiten.DrawImageOptions{}
		op.Filter = ebiten.FilterLinear
		op.GeoM.Scale(barW/256, barH)
		op.GeoM.Translate(lx, y)
		op.ColorScale.ScaleAlpha(float32(cfg.Opacity))
		screen.DrawImage(e.rampImage, op)

		low, high := rampLabels(cfg.Weighting)
		lop := &text.DrawOptions{}
		lop.GeoM.Translate(lx, y+barH+4)
		lop.ColorScale.Scale(1, 1, 1, 0.7)
		text.Draw(screen, low, face, lop)

		tw, _ := text.Measure(high, face, 0)
		hop := &text.DrawOptions{}
		hop.GeoM.Translate(lx+barW-tw, y+barH+4)
		hop.ColorScale.Scale(1, 1, 1, 0.7)
		text.Draw(screen, high, face, hop)
	} else {
		op := &text.DrawOptions{}
		op.GeoM.Translate(lx, y)
		op.ColorScale.Scale(1, 1, 1, 0.5)
		text.Draw(screen, "heatmap off (H)", face, op)
	}

	imgW := float64(e.markerImage.Bounds().Dx())
	halfW := imgW / 2
	swatch := fontSize
	items := []struct {
		Label string
		Color color.RGBA
	}{
		{"Green", ColorSignalGreen},
		{"Yellow", ColorSignalYellow},
		{"Red", ColorSignalRed},
	}
	y += barH + fontSize*2
	for i, it := range items {
		x := lx + float64(i)*(barW/3)
		r, g, b := float32(it.Color.R)/255, float32(it.Color.G)/255, float32(it.Color.B)/255
		sop := &ebiten.DrawImageOptions{}
		sop.Blend = ebiten.BlendLighter
		sop.Filter = ebiten.FilterLinear
		sop.GeoM.Translate(-halfW, -halfW)
		sop.GeoM.Scale(swatch/imgW, swatch/imgW)
		sop.GeoM.Translate(x+swatch/2, y+swatch/2)
		sop.ColorScale.Scale(r*0.85, g*0.85, b*0.85, 0.85)
		screen.DrawImage(e.markerImage, sop)

		top := &text.DrawOptions{}
		top.GeoM.Translate(x+swatch+6, y+swatch/2-fontSize*0.4)
		top.ColorScale.Scale(1, 1, 1, 0.8)
		text.Draw(screen, it.Label, face, top)
	}
}

func (e *Engine) drawStatus(screen *ebiten.Image) {
	if e.fontSource == nil {
		return
	}
	margin, fontSize := e.sizes()
	boxW, boxH := 420.0, 110.0
	if e.Width > 2000 {
		boxW, boxH = 840.0, 220.0
	}
	x, y := margin, margin+fontSize+15
	e.drawPanel(screen, x, y, boxW, boxH, fontSize, "LANE HEAT")

	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.Scale(1, 1, 1, 0.8)
	text.Draw(screen, e.status, face, op)

	if e.monoSource == nil {
		return
	}
	mono := &text.GoTextFace{Source: e.monoSource, Size: fontSize * 0.7}
	st := e.renderer.Stats()
	lines := []string{
		fmt.Sprintf("vehicles %d/%d  %4.1f fps", st.Visible, st.Total, e.fps),
	}
	if e.sink != nil {
		fs := e.sink.Stats()
		lines = append(lines, fmt.Sprintf("frames %d  dropped %d  bad %d", fs.Frames, fs.Dropped, fs.Malformed))
	}
	if e.camera != nil {
		lines = append(lines, fmt.Sprintf("zoom %.2fx  H heat  D diag  P capture  F fit", e.camera.Zoom()))
	}
	for i, l := range lines {
		lop := &text.DrawOptions{}
		lop.GeoM.Translate(x, y+fontSize*1.3*float64(i+1))
		lop.ColorScale.Scale(1, 1, 1, 0.6)
		text.Draw(screen, l, mono, lop)
	}
}
