package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	dark "github.com/thiagokokada/dark-mode-go"
)

const initialWindowW, initialWindowH = 1024, 768

var (
	gameCtx     context.Context
	gameStarted = make(chan struct{})
	once        sync.Once

	sess      *ConnectionSession
	directory *serverDirectory

	theme *overlayTheme

	// overlaySkipped accumulates the compositor's malformed-entity
	// count across ticks for the HUD diagnostics line.
	overlaySkipped atomic.Int64
)

// overlayFrame is the immutable hand-off between the network goroutine
// and the render loop: one tick's snapshot plus its projection.
type overlayFrame struct {
	seq  uint32
	when time.Time
	snap *TickSnapshot
	ents []ProjectedEntity
}

// frameCh is the bounded single-slot queue between the stages. Together
// with publishFrame it gives deterministic drop-oldest backpressure.
var frameCh = make(chan overlayFrame, 1)

// publishFrame hands a frame to the render loop. If the render loop has
// fallen behind, the queued (older) frame is discarded rather than the
// new one: the overlay always reflects the freshest known state.
func publishFrame(f overlayFrame) {
	for {
		select {
		case frameCh <- f:
			return
		default:
		}
		select {
		case <-frameCh:
		default:
		}
	}
}

// Tick cadence tracking. The mode of recent inter-tick intervals gives
// the server's effective tick rate and paces the action sender.
var (
	tickMu       sync.Mutex
	lastTickTime time.Time
	intervalHist = make(map[int]int)
	serverTPS    float64
	tickInterval time.Duration
	tickCh       = make(chan struct{}, 1)
)

func noteTick() { noteTickAt(time.Now()) }

func noteTickAt(now time.Time) {
	tickMu.Lock()
	if !lastTickTime.IsZero() {
		dt := now.Sub(lastTickTime)
		ms := int(dt.Round(5*time.Millisecond) / time.Millisecond)
		if ms > 0 {
			intervalHist[ms]++
			var modeMS, modeCount int
			for v, c := range intervalHist {
				if c > modeCount {
					modeMS, modeCount = v, c
				}
			}
			if modeMS > 0 {
				tps := 1000.0 / float64(modeMS)
				if tps < 1 {
					tps = 1
				}
				serverTPS = tps
				tickInterval = time.Second / time.Duration(tps)
			}
		}
	}
	lastTickTime = now
	tickMu.Unlock()
	select {
	case tickCh <- struct{}{}:
	default:
	}
}

// Game is the render loop coordinator: it paces the pipeline to the
// display refresh, merges the overlay onto the base frame, and owns the
// overlay toggle and server-list navigation.
type Game struct {
	cur      *overlayFrame
	backdrop frameSource

	skipSeq  uint32
	haveSkip bool
}

func (g *Game) Update() error {
	select {
	case <-gameCtx.Done():
		return errors.New("shutdown")
	default:
	}
	once.Do(initGame)

	// Drain the hand-off queue; the newest frame wins.
	for {
		select {
		case f := <-frameCh:
			g.cur = &f
			continue
		default:
		}
		break
	}

	// Purge the last-seen overlay once the grace window after an error
	// has elapsed.
	if g.cur != nil {
		st := sess.State()
		if st == StateDisconnected {
			g.cur = nil
		} else if st == StateError && time.Since(g.cur.when) > purgeGrace {
			g.cur = nil
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF1) {
		on := sess.ToggleESP()
		gs.ESPEnabled = on
		settingsDirty = true
		logDebug("esp overlay %v", on)
	}

	updateGameplayInput()
	updateServerListInput()

	if time.Since(lastSettingsSave) >= 5*time.Second {
		if settingsDirty {
			saveSettings()
			settingsDirty = false
		}
		lastSettingsSave = time.Now()
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.backdrop.DrawBase(screen, g.cur)

	if g.cur != nil && sess.ESPEnabled() {
		g.noteSkipped(g.cur.seq, composeOverlay(screen, g.cur.ents, theme))
	}

	drawHUD(screen, g.cur, theme)
	if sess.State() == StateDisconnected {
		drawServerList(screen, theme)
	}
}

// noteSkipped folds the compositor's malformed count into the
// diagnostics counter once per tick. Draw repeats at display rate, so
// the same frame must not be counted again on every repaint.
func (g *Game) noteSkipped(seq uint32, n int) {
	if g.haveSkip && seq == g.skipSeq {
		return
	}
	g.skipSeq = seq
	g.haveSkip = true
	if n > 0 {
		overlaySkipped.Add(int64(n))
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func runGame(ctx context.Context) {
	gameCtx = ctx
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(initialWindowW, initialWindowH)
	if err := ebiten.RunGame(&Game{backdrop: newTacticalBackdrop()}); err != nil {
		log.Printf("ebiten: %v", err)
	}
	saveSettings()
}

func initGame() {
	ebiten.SetWindowTitle("vizESP Client")
	ebiten.SetVsyncEnabled(gs.Vsync)
	ebiten.SetTPS(ebiten.SyncWithFPS)

	name := gs.Theme
	if name == "" {
		darkMode, err := dark.IsDarkMode()
		if err != nil || darkMode {
			name = "dark"
		} else {
			name = "light"
		}
	}
	if name == "light" {
		theme = &lightTheme
	} else {
		theme = &darkTheme
	}

	sess.SetESP(gs.ESPEnabled)
	close(gameStarted)
}
