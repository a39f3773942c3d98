package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// SessionState is the connection lifecycle position.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateHandshaking
	StateStreaming
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	}
	return "unknown"
}

// errorCooldown is how long the session sits in StateError before
// returning to StateDisconnected. There is no path from StateError back
// to StateStreaming.
const errorCooldown = 3 * time.Second

// purgeGrace is how long the last-known snapshot keeps feeding the
// overlay after a transport failure before entities are purged.
const purgeGrace = 2 * time.Second

// ConnectError is a transport-level failure while establishing the
// session. The user may simply retry.
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolMismatchError means the server's negotiated variable set is
// not the declared one. Fatal for the session; the configuration has to
// be fixed before reconnecting, so there is no automatic retry.
type ProtocolMismatchError struct {
	Declared   []FieldID
	Negotiated []FieldID
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("protocol mismatch: declared %s, server offers %s",
		fieldList(e.Declared), fieldList(e.Negotiated))
}

func fieldList(ids []FieldID) string {
	s := append([]FieldID(nil), ids...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	names := make([]string, 0, len(s))
	for _, id := range s {
		names = append(names, fieldName(id))
	}
	return "[" + strings.Join(names, " ") + "]"
}

// ConnectionSession owns the connection lifecycle and is the only
// component that mutates it. Snapshots hand off to the render side
// through publishFrame and are never mutated after that.
type ConnectionSession struct {
	cfg       FieldConfig
	transport Transport

	limiter *rate.Limiter

	mu          sync.Mutex
	state       SessionState
	serverAddr  string
	playerName  string
	color       int
	lastErr     error
	connectedAt time.Time
	tickHz      int
	lastSeq     uint32
	haveSeq     bool
	lastSnap    *TickSnapshot
	userClosed  bool

	esp atomic.Bool

	rxBytes       atomic.Int64
	ticksAccepted atomic.Int64
	ticksDropped  atomic.Int64
	missingFields atomic.Int64

	capture *tickCapture

	actionSeq atomic.Uint32
}

// newSession builds a session around an immutable field contract. The
// contract is passed in here rather than read from ambient state so a
// test can hand the machine any declared set it likes.
func newSession(cfg FieldConfig, tr Transport) *ConnectionSession {
	return &ConnectionSession{
		cfg:       cfg,
		transport: tr,
		state:     StateDisconnected,
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

func (s *ConnectionSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ConnectionSession) setState(next SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		logDebug("session %v -> %v", prev, next)
	}
}

// ESPEnabled reports whether composited output is merged into the
// displayed frame. The flag gates composition only; the pipeline keeps
// running either way so toggling is zero-latency.
func (s *ConnectionSession) ESPEnabled() bool  { return s.esp.Load() }
func (s *ConnectionSession) SetESP(on bool)    { s.esp.Store(on) }
func (s *ConnectionSession) ToggleESP() bool   { return !s.esp.Swap(!s.esp.Load()) }

// LastError returns the error that moved the session out of streaming.
func (s *ConnectionSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastSnapshot returns the most recent decoded tick, retained through
// the post-error grace window.
func (s *ConnectionSession) LastSnapshot() *TickSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap
}

// Connect runs one full session lifecycle: dial, handshake, stream,
// teardown. It blocks until the stream ends and is meant to run on its
// own goroutine.
func (s *ConnectionSession) Connect(ctx context.Context, addr, name string, color int, password string) error {
	if st := s.State(); st != StateDisconnected {
		return fmt.Errorf("connect while %v", st)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.serverAddr = addr
	s.playerName = name
	s.color = color
	s.lastErr = nil
	s.userClosed = false
	s.haveSeq = false
	s.mu.Unlock()

	s.setState(StateConnecting)
	if err := s.transport.Connect(ctx, addr); err != nil {
		cerr := &ConnectError{Op: "connect " + addr, Err: err}
		s.failConnect(cerr)
		return cerr
	}

	s.setState(StateHandshaking)
	w, err := s.handshake(name, color, password)
	if err != nil {
		s.transport.Disconnect()
		var mismatch *ProtocolMismatchError
		if errors.As(err, &mismatch) {
			s.enterError(err)
			return err
		}
		cerr := &ConnectError{Op: "handshake", Err: err}
		s.failConnect(cerr)
		return cerr
	}

	s.mu.Lock()
	s.connectedAt = time.Now()
	s.tickHz = w.tickHz
	s.mu.Unlock()
	s.setState(StateStreaming)
	logDebug("joined %v as %q, slot %d of %d, %d Hz", addr, name, w.selfSlot, w.maxPlayers, w.tickHz)

	decoder := newTickDecoder(s.cfg, newSlotTable(w))
	return s.stream(ctx, decoder)
}

// handshake performs hello -> (challenge/join) -> welcome and checks
// the negotiated variable set against the declared contract.
func (s *ConnectionSession) handshake(name string, color int, password string) (welcomeInfo, error) {
	if err := s.transport.Send(buildHello(name, color, s.cfg)); err != nil {
		return welcomeInfo{}, fmt.Errorf("send hello: %w", err)
	}
	m, err := s.transport.Receive()
	if err != nil {
		return welcomeInfo{}, fmt.Errorf("read welcome: %w", err)
	}
	if msgTag(m) == kMsgChallenge {
		challenge, err := parseChallenge(m)
		if err != nil {
			return welcomeInfo{}, err
		}
		join, err := buildJoin(password, challenge)
		if err != nil {
			return welcomeInfo{}, fmt.Errorf("answer challenge: %w", err)
		}
		if err := s.transport.Send(join); err != nil {
			return welcomeInfo{}, fmt.Errorf("send join: %w", err)
		}
		if m, err = s.transport.Receive(); err != nil {
			return welcomeInfo{}, fmt.Errorf("read welcome: %w", err)
		}
	}
	w, err := parseWelcome(m)
	if err != nil {
		return welcomeInfo{}, err
	}
	if !s.cfg.matches(w.vars) {
		return welcomeInfo{}, &ProtocolMismatchError{Declared: s.cfg.Vars(), Negotiated: w.vars}
	}
	return w, nil
}

// stream consumes one RawTickBuffer per tick until the transport fails,
// the server says goodbye, or the user disconnects.
func (s *ConnectionSession) stream(ctx context.Context, decoder *tickDecoder) error {
	for {
		m, err := s.transport.Receive()
		if err != nil {
			s.mu.Lock()
			closed := s.userClosed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				s.teardown()
				return nil
			}
			s.enterError(&ConnectError{Op: "stream", Err: err})
			return err
		}
		s.rxBytes.Add(int64(len(m) + 2))

		switch msgTag(m) {
		case kMsgTick:
			s.handleTick(m, decoder)
		case kMsgBye:
			logDebug("server closed the session")
			s.transport.Disconnect()
			s.teardown()
			return nil
		default:
			logDebug("ignoring tag %d", msgTag(m))
		}
	}
}

func (s *ConnectionSession) handleTick(m []byte, decoder *tickDecoder) {
	rtSeq, ok := s.acceptSeq(m)
	if !ok {
		return
	}

	s.mu.Lock()
	prev := s.lastSnap
	s.mu.Unlock()

	snap, err := decoder.Decode(m, prev)
	if err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) && derr.MissingField() {
			s.missingFields.Add(int64(len(derr.Fields)))
			logDebug("tick %d: %v", rtSeq, derr)
		} else {
			// Malformed tick: drop it and keep streaming. The next
			// valid tick resumes normal output.
			s.ticksDropped.Add(1)
			logError("drop tick %d: %v", rtSeq, err)
			return
		}
	}

	if s.capture != nil {
		if err := s.capture.WriteTick(m); err != nil {
			logError("capture tick: %v", err)
		}
	}

	s.mu.Lock()
	s.lastSnap = &snap
	s.mu.Unlock()
	s.ticksAccepted.Add(1)

	ents := projectSnapshot(&snap, snap.Self, cameraParams())
	publishFrame(overlayFrame{seq: snap.Seq, when: snap.When, snap: &snap, ents: ents})
	noteTick()
}

// acceptSeq enforces monotonic tick sequence numbers. Out-of-order or
// duplicate ticks are dropped and logged, never fatal.
func (s *ConnectionSession) acceptSeq(m []byte) (uint32, bool) {
	if len(m) < 6 {
		s.ticksDropped.Add(1)
		return 0, false
	}
	seq := uint32(m[2])<<24 | uint32(m[3])<<16 | uint32(m[4])<<8 | uint32(m[5])
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveSeq && seq <= s.lastSeq {
		s.ticksDropped.Add(1)
		logDebug("drop non-monotonic tick %d (last %d)", seq, s.lastSeq)
		return seq, false
	}
	s.lastSeq = seq
	s.haveSeq = true
	return seq, true
}

// SendAction ships the current input vector to the server. Only valid
// while streaming; otherwise it is silently a no-op.
func (s *ConnectionSession) SendAction(av ActionVector) {
	if s.State() != StateStreaming {
		return
	}
	if err := s.transport.Send(buildAction(s.actionSeq.Add(1), av)); err != nil {
		logError("send action: %v", err)
	}
}

// Disconnect is the user-initiated teardown. Closing the transport
// unblocks the pending receive immediately instead of waiting out a
// timeout.
func (s *ConnectionSession) Disconnect() {
	s.mu.Lock()
	s.userClosed = true
	s.mu.Unlock()
	s.transport.Send([]byte{0, kMsgBye})
	s.transport.Disconnect()
}

func (s *ConnectionSession) teardown() {
	s.mu.Lock()
	s.lastSnap = nil
	s.haveSeq = false
	s.mu.Unlock()
	s.setState(StateDisconnected)
}

func (s *ConnectionSession) failConnect(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logError("%v", err)
	s.setState(StateDisconnected)
}

// enterError parks the session in StateError for the cool-down, keeping
// the last snapshot so the overlay can show a last-seen state through
// the grace window, then drops to StateDisconnected.
func (s *ConnectionSession) enterError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logError("session error: %v", err)
	s.setState(StateError)
	time.AfterFunc(errorCooldown, func() {
		if s.State() == StateError {
			s.teardown()
		}
	})
}

// sessionStatus is a point-in-time copy for the HUD.
type sessionStatus struct {
	State      SessionState
	Addr       string
	Name       string
	Uptime     time.Duration
	TickHz     int
	RxBytes    int64
	Accepted   int64
	Dropped    int64
	Missing    int64
	LastErr    error
	LastSnapAt time.Time
}

func (s *ConnectionSession) Status() sessionStatus {
	s.mu.Lock()
	st := sessionStatus{
		State:   s.state,
		Addr:    s.serverAddr,
		Name:    s.playerName,
		TickHz:  s.tickHz,
		LastErr: s.lastErr,
	}
	if !s.connectedAt.IsZero() && (s.state == StateStreaming || s.state == StateError) {
		st.Uptime = time.Since(s.connectedAt)
	}
	if s.lastSnap != nil {
		st.LastSnapAt = s.lastSnap.When
	}
	s.mu.Unlock()
	st.RxBytes = s.rxBytes.Load()
	st.Accepted = s.ticksAccepted.Load()
	st.Dropped = s.ticksDropped.Load()
	st.Missing = s.missingFields.Load()
	return st
}
