package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTransport scripts the server side of a session: queued messages
// come back from Receive, and Disconnect unblocks a pending Receive the
// way closing a TCP connection does.
type fakeTransport struct {
	mu         sync.Mutex
	sent       [][]byte
	recvCh     chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	connectErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recvCh: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Connect(ctx context.Context, address string) error { return t.connectErr }

func (t *fakeTransport) Send(payload []byte) error {
	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), payload...))
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Receive() ([]byte, error) {
	select {
	case m := <-t.recvCh:
		return m, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) Disconnect() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) sentTags() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	tags := make([]uint16, 0, len(t.sent))
	for _, m := range t.sent {
		tags = append(tags, msgTag(m))
	}
	return tags
}

func drainFrames() {
	for {
		select {
		case <-frameCh:
		default:
			return
		}
	}
}

func waitForState(t *testing.T, s *ConnectionSession, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", s.State(), want)
}

func welcomeForTestTable() []byte {
	table := testTable()
	return buildWelcome(kJoinOK, 0, table.size(), 35, defaultFieldConfig().Vars(), table.entries)
}

func TestSessionStreamsTicks(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	table := testTable()
	other := EntitySnapshot{ID: 101, Name: "Alpha", X: 50, Y: 25, Health: 90}
	tr.recvCh <- welcomeForTestTable()
	tr.recvCh <- tickFromEntities(1, table, map[int]EntitySnapshot{0: selfEntity(), 1: other})
	tr.recvCh <- be16(nil, kMsgBye)

	if err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.ticksAccepted.Load(); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
	select {
	case f := <-frameCh:
		if f.seq != 1 {
			t.Fatalf("frame seq = %d, want 1", f.seq)
		}
		if _, ok := f.snap.Entities[101]; !ok {
			t.Fatalf("entity 101 missing from published frame")
		}
	default:
		t.Fatalf("no frame published")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state after bye = %v, want disconnected", s.State())
	}
	if tags := tr.sentTags(); len(tags) == 0 || tags[0] != kMsgHello {
		t.Fatalf("first sent message tags = %v, want hello first", tags)
	}
}

func TestSessionChallengeJoin(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	challenge := be16(nil, kMsgChallenge)
	for i := 0; i < 16; i++ {
		challenge = append(challenge, byte(i))
	}
	tr.recvCh <- challenge
	tr.recvCh <- welcomeForTestTable()
	tr.recvCh <- be16(nil, kMsgBye)

	if err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "hunter2"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tags := tr.sentTags()
	if len(tags) < 2 || tags[0] != kMsgHello || tags[1] != kMsgJoin {
		t.Fatalf("sent tags = %v, want hello then join", tags)
	}
}

func TestSessionProtocolMismatch(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	// Server offers a shorter variable set than the client declared.
	vars := defaultFieldConfig().Vars()[:3]
	table := testTable()
	tr.recvCh <- buildWelcome(kJoinOK, 0, table.size(), 35, vars, table.entries)

	err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "")
	var mismatch *ProtocolMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want protocol mismatch", err)
	}
	if len(mismatch.Negotiated) != 3 {
		t.Fatalf("negotiated set = %v", mismatch.Negotiated)
	}
	if s.State() != StateError {
		t.Fatalf("state = %v, want error (no streaming on mismatch)", s.State())
	}
}

func TestSessionConnectFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = errors.New("connection refused")
	s := newSession(defaultFieldConfig(), tr)

	err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "")
	var cerr *ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConnectError", err)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", s.State())
	}
	if s.LastError() == nil {
		t.Fatalf("last error not recorded")
	}
}

func TestSessionDropsNonMonotonicTicks(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	table := testTable()
	ents := map[int]EntitySnapshot{0: selfEntity()}
	tr.recvCh <- welcomeForTestTable()
	tr.recvCh <- tickFromEntities(5, table, ents)
	tr.recvCh <- tickFromEntities(5, table, ents) // duplicate
	tr.recvCh <- tickFromEntities(4, table, ents) // regression
	tr.recvCh <- tickFromEntities(6, table, ents)
	tr.recvCh <- be16(nil, kMsgBye)

	if err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.ticksAccepted.Load(); got != 2 {
		t.Fatalf("accepted = %d, want 2", got)
	}
	if got := s.ticksDropped.Load(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestSessionMalformedTickDropped(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	table := testTable()
	tr.recvCh <- welcomeForTestTable()
	good := tickFromEntities(1, table, map[int]EntitySnapshot{0: selfEntity()})
	tr.recvCh <- good[:len(good)-4] // truncated values
	tr.recvCh <- tickFromEntities(2, table, map[int]EntitySnapshot{0: selfEntity()})
	tr.recvCh <- be16(nil, kMsgBye)

	if err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.ticksAccepted.Load(); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
	if got := s.ticksDropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestSessionUserDisconnect(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	tr.recvCh <- welcomeForTestTable()
	done := make(chan error, 1)
	go func() {
		done <- s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "")
	}()
	waitForState(t, s, StateStreaming)

	s.Disconnect()
	if err := <-done; err != nil {
		t.Fatalf("connect returned %v after user disconnect", err)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", s.State())
	}
	if s.LastSnapshot() != nil {
		t.Fatalf("snapshot retained after user disconnect")
	}
	tags := tr.sentTags()
	if tags[len(tags)-1] != kMsgBye {
		t.Fatalf("last sent tag = %d, want bye", tags[len(tags)-1])
	}
}

func TestSessionRefusesDoubleConnect(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	tr.recvCh <- welcomeForTestTable()
	done := make(chan error, 1)
	go func() {
		done <- s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "")
	}()
	waitForState(t, s, StateStreaming)

	if err := s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, ""); err == nil {
		t.Fatalf("expected error connecting while streaming")
	}
	s.Disconnect()
	<-done
}

func TestSessionSendActionOnlyWhileStreaming(t *testing.T) {
	drainFrames()
	tr := newFakeTransport()
	s := newSession(defaultFieldConfig(), tr)

	s.SendAction(ActionVector{Buttons: 1})
	if len(tr.sentTags()) != 0 {
		t.Fatalf("action sent while disconnected")
	}

	tr.recvCh <- welcomeForTestTable()
	done := make(chan error, 1)
	go func() {
		done <- s.Connect(context.Background(), "127.0.0.1:5029", "Pilot-ESP", 1, "")
	}()
	waitForState(t, s, StateStreaming)

	s.SendAction(ActionVector{Buttons: 1})
	found := false
	for _, tag := range tr.sentTags() {
		if tag == kMsgAction {
			found = true
		}
	}
	if !found {
		t.Fatalf("no action message sent while streaming")
	}
	s.Disconnect()
	<-done
}

func TestToggleESP(t *testing.T) {
	s := newSession(defaultFieldConfig(), newFakeTransport())
	if s.ESPEnabled() {
		t.Fatalf("overlay enabled by default")
	}
	if on := s.ToggleESP(); !on || !s.ESPEnabled() {
		t.Fatalf("first toggle should enable")
	}
	if on := s.ToggleESP(); on || s.ESPEnabled() {
		t.Fatalf("second toggle should disable")
	}
}
