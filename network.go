package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"
)

const protocolVersion = 3

// Message tags. Every message is length-prefixed and starts with a tag.
const (
	kMsgHello     = 1
	kMsgChallenge = 2
	kMsgJoin      = 3
	kMsgWelcome   = 4
	kMsgTick      = 5
	kMsgAction    = 6
	kMsgBye       = 7
)

// Welcome result codes.
const (
	kJoinOK           = 0
	kJoinFull         = -1
	kJoinBadPassword  = -2
	kJoinNameTaken    = -3
	kJoinWrongVersion = -4
)

var joinErrorNames = map[int16]string{
	kJoinFull:         "server full",
	kJoinBadPassword:  "bad password",
	kJoinNameTaken:    "name already taken",
	kJoinWrongVersion: "protocol version rejected",
}

// Transport carries length-prefixed messages to and from the match
// server. Disconnect must unblock a pending Receive immediately.
type Transport interface {
	Connect(ctx context.Context, address string) error
	Send(payload []byte) error
	Receive() ([]byte, error)
	Disconnect() error
}

// tcpTransport is the production transport: one TCP connection with
// 2-byte big-endian length framing, the same framing the tick stream
// uses end to end.
type tcpTransport struct {
	mu   sync.Mutex
	conn net.Conn
}

func newTCPTransport() *tcpTransport { return &tcpTransport{} }

func (t *tcpTransport) Connect(ctx context.Context, address string) error {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *tcpTransport) Send(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return sendMessage(conn, payload)
}

func (t *tcpTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	return readMessage(conn)
}

// Disconnect closes the connection, which unblocks any pending read
// without waiting on a deadline.
func (t *tcpTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// sendMessage writes a length-prefixed message to the connection.
func sendMessage(conn net.Conn, payload []byte) error {
	if len(payload) > math.MaxUint16 {
		return fmt.Errorf("message too large: %d", len(payload))
	}
	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(len(payload)))
	if err := writeAll(conn, size[:]); err != nil {
		return err
	}
	if err := writeAll(conn, payload); err != nil {
		return err
	}
	if len(payload) >= 2 {
		logDebug("send tag %d len %d", binary.BigEndian.Uint16(payload[:2]), len(payload))
	}
	hexDump("send", payload)
	return nil
}

// readMessage reads a single length-prefixed message from the connection.
func readMessage(conn net.Conn) ([]byte, error) {
	var sizeBuf [2]byte
	if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	sz := binary.BigEndian.Uint16(sizeBuf[:])
	buf := make([]byte, sz)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	if len(buf) < 2 {
		return nil, fmt.Errorf("short message")
	}
	logDebug("recv tag %d len %d", binary.BigEndian.Uint16(buf[:2]), len(buf))
	hexDump("recv", buf)
	return buf, nil
}

// writeAll writes the entirety of data to conn, returning an error if
// the write fails or is short.
func writeAll(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

func msgTag(m []byte) uint16 {
	if len(m) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(m[:2])
}

// buildHello assembles the client's opening message: protocol version,
// identity, and the declared variable and button sets the session
// expects the server to confirm.
func buildHello(name string, color int, cfg FieldConfig) []byte {
	nameBytes := encodeLatin1(name)
	vars := cfg.Vars()
	buttons := cfg.Buttons()
	buf := make([]byte, 0, 8+len(nameBytes)+1+2+2*len(vars)+2+2*len(buttons))
	buf = be16(buf, kMsgHello)
	buf = be16(buf, protocolVersion)
	buf = append(buf, byte(color))
	buf = append(buf, nameBytes...)
	buf = append(buf, 0)
	buf = be16(buf, uint16(len(vars)))
	for _, id := range vars {
		buf = be16(buf, uint16(id))
	}
	buf = be16(buf, uint16(len(buttons)))
	for _, b := range buttons {
		buf = be16(buf, uint16(b))
	}
	return buf
}

// buildJoin answers the server's challenge with the join password.
func buildJoin(password string, challenge []byte) ([]byte, error) {
	answer, err := answerChallenge(password, challenge)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 2+len(answer))
	buf = be16(buf, kMsgJoin)
	return append(buf, answer...), nil
}

func parseChallenge(m []byte) ([]byte, error) {
	if msgTag(m) != kMsgChallenge {
		return nil, fmt.Errorf("unexpected tag %d", msgTag(m))
	}
	if len(m) != 2+16 {
		return nil, fmt.Errorf("short challenge message")
	}
	return append([]byte(nil), m[2:]...), nil
}

// slotEntry maps one fixed data-encoding slot to a participant.
type slotEntry struct {
	entityID uint16
	name     string
}

// welcomeInfo is the negotiated session contract from the server.
type welcomeInfo struct {
	selfSlot   int
	maxPlayers int
	tickHz     int
	vars       []FieldID
	slots      []slotEntry
}

// parseWelcome validates the server's welcome and extracts the
// negotiated variable set and the slot-to-entity table.
func parseWelcome(m []byte) (welcomeInfo, error) {
	var w welcomeInfo
	if msgTag(m) != kMsgWelcome {
		return w, fmt.Errorf("unexpected tag %d", msgTag(m))
	}
	if len(m) < 9 {
		return w, fmt.Errorf("short welcome message")
	}
	result := int16(binary.BigEndian.Uint16(m[2:4]))
	if result != kJoinOK {
		if name, ok := joinErrorNames[result]; ok {
			return w, fmt.Errorf("join refused: %s (%d)", name, result)
		}
		return w, fmt.Errorf("join refused: %d", result)
	}
	w.selfSlot = int(m[4])
	w.maxPlayers = int(m[5])
	w.tickHz = int(m[6])
	if w.maxPlayers < 1 || w.selfSlot >= w.maxPlayers {
		return w, fmt.Errorf("bad slot assignment %d/%d", w.selfSlot, w.maxPlayers)
	}
	if w.tickHz < 1 {
		w.tickHz = 35
	}
	p := 7
	varCount := int(binary.BigEndian.Uint16(m[p : p+2]))
	p += 2
	if p+2*varCount > len(m) {
		return w, fmt.Errorf("truncated variable set")
	}
	for i := 0; i < varCount; i++ {
		w.vars = append(w.vars, FieldID(binary.BigEndian.Uint16(m[p:p+2])))
		p += 2
	}
	for i := 0; i < w.maxPlayers; i++ {
		if p+2 > len(m) {
			return w, fmt.Errorf("truncated slot table")
		}
		id := binary.BigEndian.Uint16(m[p : p+2])
		p += 2
		idx := bytes.IndexByte(m[p:], 0)
		if idx < 0 {
			return w, fmt.Errorf("unterminated slot name")
		}
		w.slots = append(w.slots, slotEntry{entityID: id, name: decodeLatin1(m[p : p+idx])})
		p += idx + 1
	}
	return w, nil
}

// ActionVector is one tick's worth of player input: pressed buttons
// plus the analog turn and look deltas.
type ActionVector struct {
	Buttons   uint32 // bit n set when ButtonID n is held
	TurnDelta float64
	LookDelta float64
}

func (a *ActionVector) press(b ButtonID) { a.Buttons |= 1 << uint(b) }

func (a ActionVector) held(b ButtonID) bool { return a.Buttons&(1<<uint(b)) != 0 }

func buildAction(seq uint32, av ActionVector) []byte {
	buf := make([]byte, 26)
	binary.BigEndian.PutUint16(buf[0:2], kMsgAction)
	binary.BigEndian.PutUint32(buf[2:6], seq)
	binary.BigEndian.PutUint32(buf[6:10], av.Buttons)
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(av.TurnDelta))
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(av.LookDelta))
	return buf
}

func be16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}
