package ipc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"volley-duel/internal/archive"
	"volley-duel/internal/game"
)

// ErrRejected wraps the reason a server gave for refusing a peer.
var ErrRejected = errors.New("ipc: rejected by server")

// RemoteState is a decoded state frame.
type RemoteState struct {
	Sequence uint32
	Step     uint32
	Paused   bool
	State    game.DuelMatchState
}

// Subscriber is the client end: it joins a match, keeps the latest state and
// sends inputs. It reconnects until stopped.
type Subscriber struct {
	socketPath string
	hello      HelloMessage
	dial       func() (net.Conn, error)

	conn    net.Conn
	connMu  sync.Mutex
	writeMu sync.Mutex

	// Latest state (lock-free access)
	latest atomic.Value // *RemoteState

	// Stats
	statesReceived int64 // atomic
	reconnects     int64 // atomic
	errors         int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Callbacks
	onState      func(*RemoteState)
	onConnect    func()
	onDisconnect func()
	onRejected   func(reason string)
}

// NewSubscriber creates a subscriber that introduces itself with hello.
func NewSubscriber(socketPath string, hello HelloMessage) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	s := &Subscriber{
		socketPath: socketPath,
		hello:      hello,
		stopCh:     make(chan struct{}),
	}
	s.dial = func() (net.Conn, error) { return ConnectPlatform(s.socketPath) }
	return s
}

// OnState sets a callback for every received state
func (s *Subscriber) OnState(fn func(*RemoteState)) { s.onState = fn }

// OnConnect sets a callback for when a connection is established
func (s *Subscriber) OnConnect(fn func()) { s.onConnect = fn }

// OnDisconnect sets a callback for when the connection is lost
func (s *Subscriber) OnDisconnect(fn func()) { s.onDisconnect = fn }

// OnRejected sets a callback for a server refusal. The subscriber stops
// reconnecting after a refusal.
func (s *Subscriber) OnRejected(fn func(reason string)) { s.onRejected = fn }

// Start begins connecting in the background
func (s *Subscriber) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 IPC Subscriber started, connecting to %s", GetPlatformAddress(s.socketPath))
	return nil
}

// Stop closes the connection and waits for the background loop
func (s *Subscriber) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 IPC Subscriber stopped")
}

// Latest returns the most recent state, or nil before the first one
func (s *Subscriber) Latest() *RemoteState {
	if val := s.latest.Load(); val != nil {
		return val.(*RemoteState)
	}
	return nil
}

// GetStats returns subscriber statistics
func (s *Subscriber) GetStats() (received int64, reconnects int64, errors int64) {
	return atomic.LoadInt64(&s.statesReceived),
		atomic.LoadInt64(&s.reconnects),
		atomic.LoadInt64(&s.errors)
}

// IsConnected returns whether the subscriber is connected
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// SendInput sends the held input of this peer, in its own view.
func (s *Subscriber) SendInput(in game.PlayerInput) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return errors.New("ipc: not connected")
	}
	return s.write(conn, MsgTypeInput, &InputMessage{Input: in})
}

func (s *Subscriber) write(conn net.Conn, msgType byte, body archive.Serializable) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return WriteMessage(conn, msgType, body)
}

// connectionLoop maintains the connection to the server
func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.running) == 1 {
		conn, err := s.dial()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		rejected := s.serve(conn)
		if rejected {
			return
		}

		atomic.AddInt64(&s.reconnects, 1)

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

// serve runs one connection. It reports whether the server refused us.
func (s *Subscriber) serve(conn net.Conn) (rejected bool) {
	if err := s.write(conn, MsgTypeHello, &s.hello); err != nil {
		log.Printf("⚠️ IPC hello failed: %v", err)
		conn.Close()
		return false
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	log.Printf("✅ Joined match %s at %s", s.hello.MatchID, GetPlatformAddress(s.socketPath))

	if s.onConnect != nil {
		s.onConnect()
	}

	err := s.readLoop(conn)

	s.connMu.Lock()
	s.conn = nil
	s.connMu.Unlock()
	conn.Close()

	if s.onDisconnect != nil {
		s.onDisconnect()
	}
	if errors.Is(err, ErrRejected) {
		log.Printf("⛔ %v", err)
		if s.onRejected != nil {
			s.onRejected(err.Error())
		}
		return true
	}
	return false
}

// readLoop reads messages until the connection fails
func (s *Subscriber) readLoop(conn net.Conn) error {
	for atomic.LoadInt32(&s.running) == 1 {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Println("🔌 Server closed connection")
				return err
			}
			if isTimeout(err) {
				continue
			}
			log.Printf("⚠️ IPC read error: %v", err)
			atomic.AddInt64(&s.errors, 1)
			return err
		}

		switch msgType {
		case MsgTypeState:
			s.handleState(data)

		case MsgTypePing:
			s.write(conn, MsgTypePong, nil)

		case MsgTypeError:
			var msg ErrorMessage
			if err := Decode(data, &msg); err != nil {
				msg.Reason = err.Error()
			}
			return fmt.Errorf("%w: %s", ErrRejected, msg.Reason)
		}
	}
	return nil
}

// handleState decodes a state frame. The wire state is already mirrored by
// the server for right-side players.
func (s *Subscriber) handleState(data []byte) {
	var msg StateMessage
	if err := Decode(data, &msg); err != nil {
		log.Printf("⚠️ Failed to decode state frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}
	state, err := game.DecodeWire(msg.Wire, false)
	if err != nil {
		log.Printf("⚠️ Failed to decode state: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	rs := &RemoteState{Sequence: msg.Sequence, Step: msg.Step, Paused: msg.Paused, State: state}
	s.latest.Store(rs)
	atomic.AddInt64(&s.statesReceived, 1)

	if s.onState != nil {
		s.onState(rs)
	}
}
