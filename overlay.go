package main

import (
	"image/color"
	"math"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	text "github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"
)

// overlayTheme is the palette the compositor and HUD draw with.
type overlayTheme struct {
	Marker color.RGBA
	Edge   color.RGBA
	Label  color.RGBA
	HUD    color.RGBA
	Dim    color.RGBA
}

var darkTheme = overlayTheme{
	Marker: color.RGBA{0xff, 0x30, 0x30, 0xff},
	Edge:   color.RGBA{0xff, 0xa0, 0x20, 0xff},
	Label:  color.RGBA{0xff, 0xff, 0xff, 0xff},
	HUD:    color.RGBA{0xd0, 0xd0, 0xd0, 0xff},
	Dim:    color.RGBA{0x70, 0x70, 0x70, 0xff},
}

var lightTheme = overlayTheme{
	Marker: color.RGBA{0xc0, 0x00, 0x00, 0xff},
	Edge:   color.RGBA{0xb0, 0x60, 0x00, 0xff},
	Label:  color.RGBA{0x10, 0x10, 0x10, 0xff},
	HUD:    color.RGBA{0x20, 0x20, 0x20, 0xff},
	Dim:    color.RGBA{0x90, 0x90, 0x90, 0xff},
}

var labelFace text.Face = text.NewGoXFace(basicfont.Face7x13)

const edgeMargin = 18.0

// composeOverlay draws the projected entities onto dst and returns the
// number of malformed entries that were skipped. Stateless: identical
// inputs produce identical output, with no draw state carried between
// ticks.
func composeOverlay(dst *ebiten.Image, ents []ProjectedEntity, th *overlayTheme) int {
	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())
	skipped := 0
	for _, p := range sortForDraw(ents) {
		if !wellFormed(p) {
			skipped++
			continue
		}
		if p.OnScreen {
			drawMarker(dst, p, w, h, th)
		} else {
			drawEdgeIndicator(dst, p, w, h, th)
		}
	}
	return skipped
}

// sortForDraw orders entities farthest first so nearer markers are
// drawn last and stay on top when overlapping. The input is not
// modified.
func sortForDraw(ents []ProjectedEntity) []ProjectedEntity {
	out := append([]ProjectedEntity(nil), ents...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance > out[j].Distance })
	return out
}

// wellFormed rejects entries the projector let through with NaN or Inf
// coordinates; a broken entity is omitted, never a crash.
func wellFormed(p ProjectedEntity) bool {
	if p.Distance < 0 || !finite(p.Distance) || !finite(p.Bearing) {
		return false
	}
	if p.OnScreen && (!finite(p.ScreenX) || !finite(p.ScreenY)) {
		return false
	}
	return true
}

// markerRadius shrinks markers with distance, clamped so far entities
// stay visible.
func markerRadius(distance float64) float64 {
	r := 40 / (1 + distance/200)
	if r < 3 {
		r = 3
	}
	return r
}

func drawMarker(dst *ebiten.Image, p ProjectedEntity, w, h float64, th *overlayTheme) {
	px := (p.ScreenX + 1) / 2 * w
	py := (p.ScreenY + 1) / 2 * h
	r := markerRadius(p.Distance)
	vector.StrokeCircle(dst, float32(px), float32(py), float32(r), 2, th.Marker, true)

	op := &text.DrawOptions{}
	op.GeoM.Translate(px-float64(len(p.Label))*3.5, py-r-16)
	op.ColorScale.ScaleWithColor(th.Label)
	text.Draw(dst, p.Label, labelFace, op)
}

// edgePoint maps a bearing onto the point where a ray from screen
// center at that bearing crosses the margin-inset screen rectangle.
// Bearing 0 is straight ahead (top center), +90 the right edge.
func edgePoint(bearing, w, h float64) (float64, float64) {
	a := radians(bearing)
	vx := math.Sin(a)
	vy := -math.Cos(a)
	halfW := w/2 - edgeMargin
	halfH := h/2 - edgeMargin
	t := math.Inf(1)
	if vx != 0 {
		t = math.Min(t, halfW/math.Abs(vx))
	}
	if vy != 0 {
		t = math.Min(t, halfH/math.Abs(vy))
	}
	if math.IsInf(t, 1) {
		t = 0
	}
	return w/2 + vx*t, h/2 + vy*t
}

// drawEdgeIndicator draws a chevron at the screen edge nearest the
// entity's bearing, pointing along the bearing, with the range beside
// it. This is how "behind you" reads on screen.
func drawEdgeIndicator(dst *ebiten.Image, p ProjectedEntity, w, h float64, th *overlayTheme) {
	px, py := edgePoint(p.Bearing, w, h)
	a := radians(p.Bearing)
	vx := math.Sin(a)
	vy := -math.Cos(a)

	const size = 10.0
	tipX := px + vx*size/2
	tipY := py + vy*size/2
	// Back corners sit 140 degrees off the pointing direction.
	for _, side := range []float64{1, -1} {
		ba := a + side*radians(140)
		bx := tipX + math.Sin(ba)*size
		by := tipY - math.Cos(ba)*size
		vector.StrokeLine(dst, float32(tipX), float32(tipY), float32(bx), float32(by), 2, th.Edge, true)
	}

	op := &text.DrawOptions{}
	lx := px - float64(len(p.Label))*3.5
	ly := py + 6
	if py > h/2 {
		ly = py - 22
	}
	op.GeoM.Translate(lx, ly)
	op.ColorScale.ScaleWithColor(th.Edge)
	text.Draw(dst, p.Label, labelFace, op)
}
