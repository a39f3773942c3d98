package main

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestConnectSelectedSnapshotsSettings(t *testing.T) {
	savedSess, savedDir, savedCtx, savedGS := sess, directory, gameCtx, gs
	defer func() { sess, directory, gameCtx, gs = savedSess, savedDir, savedCtx, savedGS }()

	tr := newFakeTransport()
	sess = newSession(defaultFieldConfig(), tr)
	directory = newServerDirectory("http://127.0.0.1:8080")
	directory.setServers([]ServerInfo{{Name: "dm", Host: "127.0.0.1", Port: 5029}})
	gameCtx = context.Background()
	gs.PlayerName = "Pilot"
	gs.ESPEnabled = true

	connectSelected()

	// Settings changed right after selecting, as an F1 toggle on the
	// render thread would. The join must carry the selection-time values.
	gs.ESPEnabled = false
	gs.PlayerName = "Other"

	deadline := time.Now().Add(2 * time.Second)
	var hello []byte
	for hello == nil {
		tr.mu.Lock()
		if len(tr.sent) > 0 {
			hello = tr.sent[0]
		}
		tr.mu.Unlock()
		if hello == nil {
			if time.Now().After(deadline) {
				t.Fatalf("hello never sent")
			}
			time.Sleep(time.Millisecond)
		}
	}
	sess.Disconnect()

	if msgTag(hello) != kMsgHello {
		t.Fatalf("first message tag = %d, want hello", msgTag(hello))
	}
	idx := bytes.IndexByte(hello[5:], 0)
	if idx < 0 {
		t.Fatalf("hello name not terminated")
	}
	if name := decodeLatin1(hello[5 : 5+idx]); name != "Pilot-ESP" {
		t.Fatalf("join name = %q, want the name captured at selection time", name)
	}
}
