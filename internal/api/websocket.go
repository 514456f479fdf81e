package api

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"volley-duel/internal/game"
	"volley-duel/internal/match"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultFeedRate is how many frames per second a client receives at most.
	DefaultFeedRate = 30

	wsWriteWait  = time.Second
	wsPongWait   = 10 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 512
)

// Frame types of the spectator feed.
const (
	FrameState = "state"
	FrameEnd   = "end"
	FrameInput = "input" // client to server
)

// FeedFrame is the msgpack envelope sent to websocket clients. State holds
// the wire encoding of the match, mirrored for a right-side player.
type FeedFrame struct {
	Type     string      `msgpack:"t"`
	Sequence uint64      `msgpack:"seq"`
	Step     uint64      `msgpack:"step,omitempty"`
	Paused   bool        `msgpack:"paused,omitempty"`
	State    []byte      `msgpack:"state,omitempty"`
	Events   []FeedEvent `msgpack:"events,omitempty"`
	Reason   string      `msgpack:"reason,omitempty"`
}

// FeedEvent is one match event inside a FeedFrame, seen from the receiver.
type FeedEvent struct {
	Type      string  `msgpack:"type"`
	Side      int8    `msgpack:"side"`
	Intensity float32 `msgpack:"intensity,omitempty"`
}

// InputFrame is what a player client sends: its held input in its own view.
type InputFrame struct {
	Type  string `msgpack:"t"`
	Left  bool   `msgpack:"left"`
	Right bool   `msgpack:"right"`
	Up    bool   `msgpack:"up"`
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn    *websocket.Conn
	ip      string
	matchID string
	side    game.PlayerSide // NoPlayer for spectators
}

func (c *wsClient) swapped() bool { return c.side == game.RightPlayer }

// WebSocketHub serves the per-match spectator feed with DoS protection.
type WebSocketHub struct {
	matches  MatchRegistry
	origins  *OriginPolicy
	upgrader websocket.Upgrader
	interval time.Duration

	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	closing bool

	// Connection limiting per IP
	wsLimiter  *wsSlots
	trustProxy bool
}

// HubConfig configures a WebSocketHub.
type HubConfig struct {
	FeedRate    int      // frames per second; 0 means DefaultFeedRate
	CORSOrigins []string // nil means DefaultOrigins
	TrustProxy  bool
}

// NewWebSocketHub creates a hub with connection limiting
func NewWebSocketHub(matches MatchRegistry, cfg HubConfig) *WebSocketHub {
	if cfg.FeedRate <= 0 {
		cfg.FeedRate = DefaultFeedRate
	}
	h := &WebSocketHub{
		matches:    matches,
		origins:    NewOriginPolicy(cfg.CORSOrigins),
		interval:   time.Second / time.Duration(cfg.FeedRate),
		clients:    make(map[*wsClient]struct{}),
		wsLimiter:  newWSSlots(MaxWSConnectionsPerIP),
		trustProxy: cfg.TrustProxy,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordRejected("origin")
			return false
		},
	}
	return h
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHub) register(c *wsClient) bool {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("📱 Client %s watching match %s as %s (%d total)", c.ip, c.matchID, c.side, count)
	UpdateFeedClients(count)
	return true
}

func (h *WebSocketHub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.wsLimiter.Release(c.ip)
	c.conn.Close()
	log.Printf("📱 Client disconnected (%d remaining)", count)
	UpdateFeedClients(count)
}

// Close disconnects every client and refuses new ones.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	h.closing = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		h.unregister(c)
	}
}

// HandleMatch upgrades GET /ws/matches/{id}. ?side=left|right joins as a
// player: the feed is mirrored for the right side, input frames are
// accepted, and a lost connection pauses the match.
func (h *WebSocketHub) HandleMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	side := game.NoPlayer
	if raw := r.URL.Query().Get("side"); raw != "" && raw != "spectator" {
		parsed, ok := game.ParseSide(raw)
		if !ok {
			writeError(w, "invalid side", http.StatusBadRequest)
			return
		}
		side = parsed
	}
	if _, err := h.matches.Get(id); err != nil {
		writeMatchError(w, err)
		return
	}

	ip := GetClientIP(r, h.trustProxy)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Acquire(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	c := &wsClient{conn: conn, ip: ip, matchID: id, side: side}
	if !h.register(c) {
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	handle := h.matches.Handle(id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c, handle)
	}()
	go func() {
		h.readPump(c, handle)
		h.unregister(c)
		<-done
	}()
}

// readPump handles pongs and player input until the connection fails.
func (h *WebSocketHub) readPump(c *wsClient, handle match.Handle) {
	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.side != game.NoPlayer && !h.isClosing() {
				log.Printf("🔌 Player %s of match %s lost (%v), pausing", c.side, c.matchID, err)
				if perr := handle.Pause(); perr != nil && !errors.Is(perr, match.ErrMatchNotFound) {
					log.Printf("⚠️ Could not pause match %s: %v", c.matchID, perr)
				}
			}
			return
		}
		if msgType != websocket.BinaryMessage || c.side == game.NoPlayer {
			continue
		}

		var frame InputFrame
		if err := msgpack.Unmarshal(data, &frame); err != nil || frame.Type != FrameInput {
			continue
		}
		in := game.PlayerInput{Left: frame.Left, Right: frame.Right, Up: frame.Up}
		if c.swapped() {
			in = in.SwapSides()
		}
		if err := handle.SubmitInput(c.side, in); err != nil && !errors.Is(err, match.ErrInputRateLimited) {
			return
		}
	}
}

func (h *WebSocketHub) isClosing() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closing
}

// writePump sends a frame whenever the match state changed and pings the
// client. It ends the feed with an "end" frame once the match is gone.
func (h *WebSocketHub) writePump(c *wsClient, handle match.Handle) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var lastSeq, lastHash uint64
	for {
		select {
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.conn.Close()
				return
			}

		case <-ticker.C:
			snap, err := handle.Snapshot()
			if err != nil {
				h.send(c, &FeedFrame{Type: FrameEnd, Sequence: lastSeq, Reason: "match removed"})
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match removed"),
					time.Now().Add(wsWriteWait))
				c.conn.Close()
				return
			}
			if snap.Sequence == lastSeq {
				continue
			}
			lastSeq = snap.Sequence

			frame := buildFeedFrame(snap, c.swapped())
			hash := frameHash(frame)
			if hash == lastHash && len(frame.Events) == 0 {
				RecordFeedFrame(true)
				continue
			}
			lastHash = hash

			if err := h.send(c, frame); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (h *WebSocketHub) send(c *wsClient, frame *FeedFrame) error {
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	RecordFeedFrame(false)
	return nil
}

// buildFeedFrame converts a snapshot for one receiver.
func buildFeedFrame(snap match.MatchSnapshot, swap bool) *FeedFrame {
	frame := &FeedFrame{
		Type:     FrameState,
		Sequence: snap.Sequence,
		Step:     snap.Step,
		Paused:   snap.Paused,
		State:    game.EncodeWire(snap.State, swap),
	}
	for _, e := range snap.Events {
		side := e.Side
		if swap && side != game.NoPlayer {
			side = side.Opponent()
		}
		frame.Events = append(frame.Events, FeedEvent{Type: e.Type.String(), Side: int8(side), Intensity: e.Intensity})
	}
	if snap.Winner != game.NoPlayer {
		frame.Type = FrameEnd
		frame.Reason = "winner"
	}
	return frame
}

// frameHash identifies what a receiver would see, ignoring sequence and step.
func frameHash(f *FeedFrame) uint64 {
	d := xxhash.New()
	d.Write(f.State)
	if f.Paused {
		d.Write([]byte{1})
	} else {
		d.Write([]byte{0})
	}
	d.WriteString(f.Type)
	return d.Sum64()
}
