// Package ipc connects remote peers to live matches over a framed socket
// protocol. Players send inputs and receive wire-encoded states mirrored so
// that they always see themselves on the left; spectators only receive.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"volley-duel/internal/archive"
	"volley-duel/internal/game"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/volley-duel.sock"

	// DefaultTCPPort is used where Unix sockets are unavailable
	DefaultTCPPort = "127.0.0.1:7311"

	// Message types
	MsgTypeHello byte = 0x01
	MsgTypeInput byte = 0x02
	MsgTypeState byte = 0x03
	MsgTypePing  byte = 0x04
	MsgTypePong  byte = 0x05
	MsgTypeError byte = 0x06

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 2

	// Connection settings
	MaxMessageSize = 64 * 1024
	WriteTimeout   = 50 * time.Millisecond
	ReadTimeout    = 100 * time.Millisecond
	HelloTimeout   = 2 * time.Second
	PeerTimeout    = 5 * time.Second
	PingInterval   = time.Second
	ReconnectDelay = 500 * time.Millisecond
	MaxReconnects  = 20
)

var (
	ErrVersionMismatch = errors.New("ipc: protocol version mismatch")
	ErrMessageTooLarge = errors.New("ipc: message too large")
)

// HelloMessage opens every connection. Side is the side the peer plays;
// spectators watch without sending input.
type HelloMessage struct {
	MatchID   string
	Name      string
	Side      game.PlayerSide
	Spectator bool
}

func (m *HelloMessage) Serialize(a archive.Archive) {
	a.String(&m.MatchID)
	a.String(&m.Name)
	side := int32(m.Side)
	archive.Int32(a, &side)
	m.Side = game.PlayerSide(side)
	a.Bool(&m.Spectator)
}

// InputMessage carries the held input of a player, in the peer's own view.
type InputMessage struct {
	Input game.PlayerInput
}

func (m *InputMessage) Serialize(a archive.Archive) {
	m.Input.Serialize(a)
}

// StateMessage carries one wire-encoded match state.
type StateMessage struct {
	Sequence uint32
	Step     uint32
	Paused   bool
	Wire     []byte
}

func (m *StateMessage) Serialize(a archive.Archive) {
	a.Uint32(&m.Sequence)
	a.Uint32(&m.Step)
	a.Bool(&m.Paused)
	archive.Blob(a, &m.Wire)
}

// ErrorMessage tells a peer why it is being disconnected.
type ErrorMessage struct {
	Reason string
}

func (m *ErrorMessage) Serialize(a archive.Archive) {
	a.String(&m.Reason)
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

// WriteMessage writes a framed message to the connection. body may be nil
// for messages without payload.
func WriteMessage(w io.Writer, msgType byte, body archive.Serializable) error {
	var buf []byte
	if body != nil {
		bw := archive.NewBitWriter()
		if err := archive.Encode(bw, body); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		buf = bw.Data()
	}

	if len(buf) > MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(buf), MaxMessageSize)
	}

	frame := make([]byte, HeaderSize+len(buf))
	binary.LittleEndian.PutUint16(frame[0:2], ProtocolVersion)
	frame[2] = msgType
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(buf)))
	copy(frame[HeaderSize:], buf)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads a framed message from the connection
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}

	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, header.Version, ProtocolVersion)
	}

	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}

	return header.Type, body, nil
}

// Decode fills m from a message body.
func Decode(data []byte, m archive.Serializable) error {
	if err := archive.Decode(archive.NewBitReader(data), m); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// CleanupSocket removes the socket file if it exists. TCP addresses have
// nothing to clean up.
func CleanupSocket(path string) error {
	if IsTCPAddress(path) {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}

// Connect connects to the IPC socket with retries
func Connect(path string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < MaxReconnects; i++ {
		conn, err := ConnectPlatform(path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(ReconnectDelay)
	}
	return nil, fmt.Errorf("connect failed after %d attempts: %w", MaxReconnects, lastErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
