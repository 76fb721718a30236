package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the framed byte-stream a Peer sends/receives over: one binary
// websocket message per frame, first byte = message code, remainder =
// payload.
type Transport interface {
	WriteFrame(code Code, payload []byte) error
	ReadFrame() (Code, []byte, error)
	Close() error
}

// requestTimeout bounds how long a single frame read or write may block. A
// peer that neither sends a frame nor accepts one within this window is
// treated as unresponsive: ReadFrame/WriteFrame return a timeout error, which
// the caller (Manager.ServePeer) turns into a disconnect. Distinct from
// syncmgr's stall timer, which tracks sync-state progress rather than
// individual request/response pairs.
const requestTimeout = 30 * time.Second

// wsTransport implements Transport over a gorilla/websocket connection.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an already-established websocket connection.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

var errEmptyFrame = errors.New("p2p: empty frame")

func (t *wsTransport) WriteFrame(code Code, payload []byte) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(code)
	copy(frame[1:], payload)
	if err := t.conn.SetWriteDeadline(time.Now().Add(requestTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) ReadFrame() (Code, []byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(requestTimeout)); err != nil {
		return 0, nil, err
	}
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	if kind != websocket.BinaryMessage {
		return 0, nil, fmt.Errorf("p2p: unexpected websocket message type %d", kind)
	}
	if len(data) == 0 {
		return 0, nil, errEmptyFrame
	}
	return Code(data[0]), data[1:], nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// --- small fixed-width helpers shared by message encoders ------------------

func putUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func getUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errors.New("p2p: truncated uint64")
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func getUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errors.New("p2p: truncated uint32")
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}
