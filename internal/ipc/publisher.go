package ipc

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"volley-duel/internal/game"
	"volley-duel/internal/match"
)

// Match is the part of a live match a peer talks to. match.Handle
// implements it; every call fails once the match is removed.
type Match interface {
	Snapshot() (match.MatchSnapshot, error)
	SubmitInput(side game.PlayerSide, in game.PlayerInput) error
	Pause() error
}

// LookupFunc resolves the match named in a hello.
type LookupFunc func(id string) (Match, error)

// Publisher serves remote peers on a Unix socket (TCP localhost on Windows).
type Publisher struct {
	socketPath string
	listener   net.Listener
	lookup     LookupFunc

	// Connected peers
	peers   map[net.Conn]*peer
	peersMu sync.Mutex

	sendInterval time.Duration
	peerTimeout  time.Duration

	// Stats
	peerCount   int32 // atomic
	statesSent  int64 // atomic
	inputsRecvd int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type peer struct {
	conn  net.Conn
	hello HelloMessage
	match Match
}

// NewPublisher creates a publisher. tickRate sets how often states are sent.
func NewPublisher(socketPath string, tickRate int, lookup LookupFunc) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if tickRate <= 0 {
		tickRate = match.DefaultTickRate
	}

	return &Publisher{
		socketPath:   socketPath,
		lookup:       lookup,
		peers:        make(map[net.Conn]*peer),
		sendInterval: time.Second / time.Duration(tickRate),
		peerTimeout:  PeerTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start listens and begins accepting peers
func (p *Publisher) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		atomic.StoreInt32(&p.running, 0)
		return err
	}
	p.listener = listener

	p.wg.Add(1)
	go p.acceptLoop()

	log.Printf("📡 IPC Publisher started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop disconnects every peer and removes the socket
func (p *Publisher) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}

	close(p.stopCh)

	if p.listener != nil {
		p.listener.Close()
	}

	p.peersMu.Lock()
	for conn := range p.peers {
		conn.Close()
	}
	p.peersMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 IPC Publisher stopped")
}

// GetStats returns publisher statistics
func (p *Publisher) GetStats() (peers int, sent int64, inputs int64) {
	return int(atomic.LoadInt32(&p.peerCount)),
		atomic.LoadInt64(&p.statesSent),
		atomic.LoadInt64(&p.inputsRecvd)
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for atomic.LoadInt32(&p.running) == 1 {
		conn, err := p.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&p.running) == 0 {
				return
			}
			log.Printf("⚠️ IPC accept error: %v", err)
			continue
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.ServeConn(conn)
		}()
	}
}

// ServeConn runs the protocol on one connection until it ends. The
// connection is closed on return.
func (p *Publisher) ServeConn(conn net.Conn) {
	defer conn.Close()

	pr, err := p.handshake(conn)
	if err != nil {
		log.Printf("⚠️ IPC handshake from %s failed: %v", conn.RemoteAddr(), err)
		conn.SetWriteDeadline(time.Now().Add(HelloTimeout))
		WriteMessage(conn, MsgTypeError, &ErrorMessage{Reason: err.Error()})
		return
	}

	p.addPeer(pr)
	defer p.removePeer(pr)

	done := make(chan struct{})
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		p.writeLoop(pr, done)
	}()

	p.readLoop(pr)
	close(done)
	writerWg.Wait()
}

func (p *Publisher) handshake(conn net.Conn) (*peer, error) {
	conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	msgType, data, err := ReadMessage(conn)
	if err != nil {
		return nil, err
	}
	if msgType != MsgTypeHello {
		return nil, fmt.Errorf("expected hello, got message type %#x", msgType)
	}
	var hello HelloMessage
	if err := Decode(data, &hello); err != nil {
		return nil, err
	}
	if !hello.Spectator && hello.Side != game.LeftPlayer && hello.Side != game.RightPlayer {
		return nil, fmt.Errorf("player must pick a side, got %v", hello.Side)
	}
	if p.lookup == nil {
		return nil, errors.New("no matches are served")
	}
	m, err := p.lookup(hello.MatchID)
	if err != nil {
		return nil, err
	}
	return &peer{conn: conn, hello: hello, match: m}, nil
}

func (p *Publisher) addPeer(pr *peer) {
	p.peersMu.Lock()
	p.peers[pr.conn] = pr
	p.peersMu.Unlock()

	count := atomic.AddInt32(&p.peerCount, 1)
	role := pr.hello.Side.String()
	if pr.hello.Spectator {
		role = "spectator"
	}
	log.Printf("✅ Peer %q joined match %s as %s (total: %d)", pr.hello.Name, pr.hello.MatchID, role, count)
}

func (p *Publisher) removePeer(pr *peer) {
	p.peersMu.Lock()
	delete(p.peers, pr.conn)
	p.peersMu.Unlock()

	count := atomic.AddInt32(&p.peerCount, -1)
	log.Printf("🔌 Peer %q left match %s (remaining: %d)", pr.hello.Name, pr.hello.MatchID, count)
}

// swapped reports whether the peer sees the field mirrored.
func (pr *peer) swapped() bool {
	return !pr.hello.Spectator && pr.hello.Side == game.RightPlayer
}

// readLoop applies inputs until the peer goes away. A silent or lost player pauses
// its match.
func (p *Publisher) readLoop(pr *peer) {
	for {
		pr.conn.SetReadDeadline(time.Now().Add(p.peerTimeout))
		msgType, data, err := ReadMessage(pr.conn)
		if err != nil {
			if atomic.LoadInt32(&p.running) == 1 && !pr.hello.Spectator {
				if isTimeout(err) {
					log.Printf("⏱️ Peer %q timed out, pausing match %s", pr.hello.Name, pr.hello.MatchID)
				} else {
					log.Printf("🔌 Peer %q lost (%v), pausing match %s", pr.hello.Name, err, pr.hello.MatchID)
				}
				pausePeerMatch(pr)
			}
			return
		}

		switch msgType {
		case MsgTypeInput:
			if pr.hello.Spectator {
				continue
			}
			var msg InputMessage
			if err := Decode(data, &msg); err != nil {
				log.Printf("⚠️ Bad input from %q: %v", pr.hello.Name, err)
				continue
			}
			in := msg.Input
			if pr.swapped() {
				in = in.SwapSides()
			}
			if err := pr.match.SubmitInput(pr.hello.Side, in); err != nil && !errors.Is(err, match.ErrInputRateLimited) {
				log.Printf("⚠️ Input from %q rejected: %v", pr.hello.Name, err)
				return
			}
			atomic.AddInt64(&p.inputsRecvd, 1)

		default:
			// Pongs and anything else only prove liveness
		}
	}
}

func pausePeerMatch(pr *peer) {
	if err := pr.match.Pause(); err != nil {
		log.Printf("⚠️ Could not pause match %s: %v", pr.hello.MatchID, err)
	}
}

// writeLoop sends every new snapshot and a periodic ping.
func (p *Publisher) writeLoop(pr *peer, done <-chan struct{}) {
	ticker := time.NewTicker(p.sendInterval)
	defer ticker.Stop()
	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	var lastSeq uint64
	for {
		select {
		case <-done:
			return
		case <-p.stopCh:
			return

		case <-ping.C:
			pr.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := WriteMessage(pr.conn, MsgTypePing, nil); err != nil {
				pr.conn.Close()
				return
			}

		case <-ticker.C:
			snap, err := pr.match.Snapshot()
			if err != nil {
				pr.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
				WriteMessage(pr.conn, MsgTypeError, &ErrorMessage{Reason: err.Error()})
				pr.conn.Close()
				return
			}
			if snap.Sequence == lastSeq {
				continue
			}
			lastSeq = snap.Sequence
			msg := &StateMessage{
				Sequence: uint32(snap.Sequence),
				Step:     uint32(snap.Step),
				Paused:   snap.Paused,
				Wire:     game.EncodeWire(snap.State, pr.swapped()),
			}
			pr.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := WriteMessage(pr.conn, MsgTypeState, msg); err != nil {
				pr.conn.Close()
				return
			}
			atomic.AddInt64(&p.statesSent, 1)
		}
	}
}
