package main

import (
	"context"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

var (
	inputMu      sync.Mutex
	latestAction ActionVector

	lastCursorX, lastCursorY int
	haveCursor               bool
)

// mouseTurnScale converts horizontal cursor movement to turn degrees.
const mouseTurnScale = 0.22

// updateGameplayInput samples the keyboard and mouse into the action
// vector the sender ships each tick.
func updateGameplayInput() {
	if sess.State() != StateStreaming {
		haveCursor = false
		return
	}

	var av ActionVector
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		av.press(kBtnMoveForward)
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		av.press(kBtnMoveBackward)
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		av.press(kBtnMoveLeft)
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		av.press(kBtnMoveRight)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		av.press(kBtnTurnLeft)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		av.press(kBtnTurnRight)
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) || ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		av.press(kBtnAttack)
	}
	if ebiten.IsKeyPressed(ebiten.KeyE) {
		av.press(kBtnUse)
	}
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		av.press(kBtnSpeed)
	}
	if ebiten.IsKeyPressed(ebiten.KeySpace) {
		av.press(kBtnJump)
	}
	if ebiten.IsKeyPressed(ebiten.KeyC) {
		av.press(kBtnCrouch)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		av.press(kBtnSelectNextWeapon)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		av.press(kBtnSelectPrevWeapon)
	}

	// Dead players respawn with the jump key.
	if snap := sess.LastSnapshot(); snap != nil {
		if self, ok := snap.Entities[snap.SelfID]; ok && self.Dead && ebiten.IsKeyPressed(ebiten.KeySpace) {
			av.press(kBtnRespawn)
		}
	}

	cx, cy := ebiten.CursorPosition()
	if haveCursor {
		av.TurnDelta = float64(cx-lastCursorX) * mouseTurnScale
		av.LookDelta = float64(cy-lastCursorY) * mouseTurnScale
	}
	lastCursorX, lastCursorY = cx, cy
	haveCursor = true

	inputMu.Lock()
	latestAction = av
	inputMu.Unlock()

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		sess.Disconnect()
	}
}

// updateServerListInput drives the directory list while disconnected.
func updateServerListInput() {
	if sess.State() != StateDisconnected {
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		directory.moveSelection(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		directory.moveSelection(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		go directory.Refresh(gameCtx)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		connectSelected()
	}
}

func connectSelected() {
	info, ok := directory.Selected()
	if !ok {
		return
	}
	addr := info.address(directory.host())
	// Snapshot name and color here; the render thread owns gs and may
	// change it while the goroutine runs.
	name, color := joinName(), gs.Color
	go func() {
		if err := sess.Connect(gameCtx, addr, name, color, joinPassword); err != nil {
			reportSessionError(err)
		}
	}()
}

// sendActionLoop ships the latest action vector once per server tick,
// paced by the measured tick cadence.
func sendActionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickCh:
		}
		tickMu.Lock()
		interval := tickInterval
		last := lastTickTime
		tickMu.Unlock()
		if time.Since(last) > 2*time.Second {
			continue
		}
		delay := interval
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		timer := time.NewTimer(delay / 2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		inputMu.Lock()
		av := latestAction
		inputMu.Unlock()
		sess.SendAction(av)
	}
}
