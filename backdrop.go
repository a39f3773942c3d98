package main

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// frameSource supplies the base frame the overlay is merged onto. The
// engine's rendered view would normally arrive through a display sink;
// the built-in source draws a tactical backdrop from the same snapshot
// so the client is usable on its own.
type frameSource interface {
	DrawBase(dst *ebiten.Image, cur *overlayFrame)
}

type tacticalBackdrop struct {
	bg   color.RGBA
	grid color.RGBA
	self color.RGBA
}

func newTacticalBackdrop() *tacticalBackdrop {
	return &tacticalBackdrop{
		bg:   color.RGBA{0x12, 0x14, 0x18, 0xff},
		grid: color.RGBA{0x22, 0x26, 0x2c, 0xff},
		self: color.RGBA{0x40, 0xc0, 0x40, 0xff},
	}
}

// gridSpacing is world units per grid line on the backdrop.
const gridSpacing = 128.0

// backdropScale is screen pixels per world unit.
const backdropScale = 0.35

func (b *tacticalBackdrop) DrawBase(dst *ebiten.Image, cur *overlayFrame) {
	dst.Fill(b.bg)
	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())

	if cur != nil && cur.snap != nil {
		b.drawGrid(dst, w, h, cur.snap.Self)
	}

	// Local player wedge at screen center, always facing up; the world
	// rotates around it.
	cx, cy := float32(w/2), float32(h/2)
	vector.StrokeLine(dst, cx, cy+6, cx, cy-10, 2, b.self, true)
	vector.StrokeLine(dst, cx, cy-10, cx-5, cy-2, 2, b.self, true)
	vector.StrokeLine(dst, cx, cy-10, cx+5, cy-2, 2, b.self, true)
}

// drawGrid renders the world grid rotated into camera space, which
// reads as ground motion when the player moves or turns.
func (b *tacticalBackdrop) drawGrid(dst *ebiten.Image, w, h float64, pose Pose) {
	// Facing up on screen means rotating world axes by -(angle - 90).
	rot := radians(90 - pose.Angle)
	sin, cos := math.Sin(rot), math.Cos(rot)

	span := math.Hypot(w, h) / backdropScale
	minX := pose.X - span
	maxX := pose.X + span
	minY := pose.Y - span
	maxY := pose.Y + span

	toScreen := func(wx, wy float64) (float32, float32) {
		dx := wx - pose.X
		dy := wy - pose.Y
		sx := dx*cos - dy*sin
		sy := dx*sin + dy*cos
		return float32(w/2 + sx*backdropScale), float32(h/2 - sy*backdropScale)
	}

	for x := math.Floor(minX/gridSpacing) * gridSpacing; x <= maxX; x += gridSpacing {
		x0, y0 := toScreen(x, minY)
		x1, y1 := toScreen(x, maxY)
		vector.StrokeLine(dst, x0, y0, x1, y1, 1, b.grid, false)
	}
	for y := math.Floor(minY/gridSpacing) * gridSpacing; y <= maxY; y += gridSpacing {
		x0, y0 := toScreen(minX, y)
		x1, y1 := toScreen(maxX, y)
		vector.StrokeLine(dst, x0, y0, x1, y1, 1, b.grid, false)
	}
}
