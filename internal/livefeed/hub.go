// Package livefeed streams pipeline events to websocket subscribers: the
// control-room dashboard connects to /ws/alerts and receives every routed
// alert, shock event, and tamper finding as it happens.
package livefeed

import (
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cetp/sentinel/internal/events"
	"github.com/cetp/sentinel/internal/metrics"
)

const (
	pongWait   = 60 * time.Second // time allowed to read the next pong
	pingPeriod = 30 * time.Second // ping interval, must be < pongWait
	writeWait  = 10 * time.Second // time allowed to write a message
	maxMsgSize = 4096             // inbound frames are control-only
	sendBuffer = 256              // per-client outbound channel buffer
)

// Origin validation: when SENTINEL_ALLOWED_ORIGINS is set, only the listed
// origins may connect; otherwise all origins are accepted (LAN deployment).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     buildCheckOrigin(),
}

func buildCheckOrigin() func(r *http.Request) bool {
	allowedRaw := os.Getenv("SENTINEL_ALLOWED_ORIGINS")
	if allowedRaw == "" {
		return func(r *http.Request) bool { return true }
	}

	allowed := make(map[string]bool)
	for _, origin := range strings.Split(allowedRaw, ",") {
		allowed[strings.TrimSpace(origin)] = true
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

// client is one connected dashboard. All writes go through the Send channel
// into writePump, the only goroutine that touches the connection for writes.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Hub fans events out from the bus to every connected client. A client
// whose buffer is full misses that event; the feed is best-effort and the
// JSONL logs remain the durable record.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	bus     *events.EventBus
	logger  *log.Logger
}

func NewHub(bus *events.EventBus) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		bus:     bus,
		logger:  log.New(log.Writer(), "[LIVEFEED] ", log.LstdFlags),
	}
}

// Run subscribes to all bus events and broadcasts them until the bus
// channel closes. Call it as a goroutine.
func (h *Hub) Run() {
	ch := h.bus.Subscribe()
	for ev := range ch {
		payload, err := ev.JSON()
		if err != nil {
			continue
		}
		h.broadcast(payload)
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Client too slow, drop this event for it.
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.Prom().LivefeedSubscribers.Set(float64(n))

	h.logger.Printf("client connected (%s), %d subscriber(s)", r.RemoteAddr, n)

	// Two goroutines with clear ownership: writePump owns all writes
	// (data, ping, close), readPump owns all reads.
	go c.writePump()
	go c.readPump()
}

// close shuts the client down exactly once.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)

		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		n := len(c.hub.clients)
		c.hub.mu.Unlock()
		metrics.Prom().LivefeedSubscribers.Set(float64(n))

		c.conn.Close()
		c.hub.logger.Printf("client disconnected, %d subscriber(s)", n)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain queued messages while we hold the write slot.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump services pongs and discards anything else; the feed is one-way.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("read error: %v", err)
			}
			return
		}
	}
}
