package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/ebiten/v2"
	text "github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hako/durafmt"
	"github.com/sqweek/dialog"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func drawText(dst *ebiten.Image, s string, x, y float64, clr interface{ RGBA() (r, g, b, a uint32) }) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(dst, s, labelFace, op)
}

// drawHUD paints the status block in the top-left corner.
func drawHUD(dst *ebiten.Image, cur *overlayFrame, th *overlayTheme) {
	st := sess.Status()
	y := 8.0
	line := func(s string) {
		drawText(dst, s, 8, y, th.HUD)
		y += 16
	}

	switch st.State {
	case StateStreaming:
		up := durafmt.Parse(st.Uptime.Round(time.Second)).LimitFirstN(2).Format(shortUnits)
		line(fmt.Sprintf("%s @ %s  up %s", st.Name, st.Addr, up))
		tickMu.Lock()
		tps := serverTPS
		tickMu.Unlock()
		line(fmt.Sprintf("rx %s  ticks %s  %.0f/s",
			humanize.Bytes(uint64(st.RxBytes)),
			humanize.Comma(st.Accepted), tps))
		if st.Dropped > 0 || st.Missing > 0 || overlaySkipped.Load() > 0 {
			line(fmt.Sprintf("dropped %d  missing %d  skipped %d",
				st.Dropped, st.Missing, overlaySkipped.Load()))
		}
		if cur != nil && cur.snap != nil {
			if self, ok := cur.snap.Entities[cur.snap.SelfID]; ok {
				status := fmt.Sprintf("HP %d  armor %d  frags %s",
					self.Health, self.Armor, humanize.Comma(int64(self.Frags)))
				if self.Dead {
					status = "DEAD - hold space to respawn"
				}
				line(status)
			}
		}
		if sess.ESPEnabled() {
			line("ESP on (F1)")
		} else {
			drawText(dst, "ESP off (F1)", 8, y, th.Dim)
			y += 16
		}
	case StateError:
		line("connection lost - showing last seen")
		if err := st.LastErr; err != nil {
			line(err.Error())
		}
	case StateConnecting, StateHandshaking:
		line(fmt.Sprintf("%v %s...", st.State, st.Addr))
	}
}

// drawServerList paints the directory while disconnected.
func drawServerList(dst *ebiten.Image, th *overlayTheme) {
	servers := directory.Servers()
	sel, _ := directory.Selected()

	x := 48.0
	y := 80.0
	drawText(dst, "vizESP - pick a server (arrows, enter to join, R to refresh)", x, y, th.Label)
	y += 28

	if len(servers) == 0 {
		drawText(dst, "no servers listed", x, y, th.Dim)
		y += 20
	}
	for _, s := range servers {
		lat := ""
		if s.Latency > 0 {
			lat = fmt.Sprintf("  %dms", s.Latency.Milliseconds())
		}
		lineText := fmt.Sprintf("%s  :%d  %d/%d  %s%s", s.Name, s.Port, s.Connected, s.Players, s.Status, lat)
		clr := th.HUD
		if s.Name == sel.Name && s.Port == sel.Port {
			lineText = "> " + lineText
			clr = th.Label
		} else {
			lineText = "  " + lineText
		}
		drawText(dst, lineText, x, y, clr)
		y += 20
	}

	y += 12
	drawText(dst, fmt.Sprintf("name: %s  color: %d  esp: %v", joinName(), gs.Color, gs.ESPEnabled), x, y, th.Dim)
	if err := sess.LastError(); err != nil {
		y += 20
		drawText(dst, err.Error(), x, y, th.Marker)
	}
}

// reportSessionError surfaces connect failures. A protocol mismatch is
// not retryable without fixing the configuration, so it gets a modal
// dialog instead of just a status line.
func reportSessionError(err error) {
	var mismatch *ProtocolMismatchError
	if errors.As(err, &mismatch) {
		dialog.Message("%v\n\nThe declared game-variable set does not match this server. Update the configuration before reconnecting.", mismatch).Title("Protocol mismatch").Error()
	}
}
