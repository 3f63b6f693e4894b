// Package feed streams ledger decisions to dashboards over WebSocket.
//
// Every entry, exit and manual override that reaches the ledger is published
// to the Hub as a Decision; each connected client receives it as one JSON
// text frame. Publishing never blocks the request path: a client whose send
// buffer is full is disconnected and must reconnect.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Decision kinds.
const (
	KindEntry      = "entry"
	KindExit       = "exit"
	KindManualExit = "manual_exit"
)

// Decision is one ledger decision as seen by dashboards.
type Decision struct {
	Kind    string    `json:"kind"`
	Outcome string    `json:"outcome"`
	Plate   string    `json:"plate,omitempty"`
	Gate    string    `json:"gate,omitempty"`
	Source  string    `json:"source,omitempty"`
	EventID int64     `json:"event_id,omitempty"`
	FeePLN  *int64    `json:"fee_pln,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher accepts decisions. *Hub implements it.
type Publisher interface {
	Publish(d Decision)
}

// Options tunes a Hub. Zero values select the defaults.
type Options struct {
	SendBuffer   int                        // frames queued per client (32)
	WriteTimeout time.Duration              // per frame (10s)
	PingInterval time.Duration              // keepalive (30s)
	CheckOrigin  func(r *http.Request) bool // nil allows any origin
}

// Hub fans decisions out to connected WebSocket clients. Safe for concurrent use.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub returns a Hub ready to serve.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Hub{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: check},
		clients:  make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues d for every client. Slow clients are dropped.
func (h *Hub) Publish(d Decision) {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	msg, err := json.Marshal(d)
	if err != nil {
		log.Error().Err(err).Msg("feed: marshal decision")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Msg("feed: client too slow, disconnecting")
		h.remove(c)
	}
}

// ServeWS upgrades the request and streams decisions until the client goes
// away or the hub is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Debug().Err(err).Msg("feed: upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.opts.SendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Debug().Int("clients", h.Clients()).Msg("feed: client connected")

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.Unlock()
	for _, c := range all {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.once.Do(func() { close(c.send) })
	}
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.opts.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.opts.PingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("feed: read")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Decision) {}
