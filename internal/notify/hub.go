package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Connection struct {
	conn       Conn
	MerchantID string
	LastSeen   time.Time
}

// Hub tracks live merchant sessions. A merchant may hold several.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	upgrader    websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) Add(merchantID string, conn Conn) *Connection {
	c := &Connection{conn: conn, MerchantID: merchantID, LastSeen: time.Now()}
	h.mu.Lock()
	if _, ok := h.connections[merchantID]; !ok {
		h.connections[merchantID] = make(map[*Connection]struct{})
	}
	h.connections[merchantID][c] = struct{}{}
	total := len(h.connections[merchantID])
	h.mu.Unlock()

	log.Debug().Str("merchant_id", merchantID).Int("sessions", total).Msg("ws connected")
	return c
}

func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	if conns, ok := h.connections[c.MerchantID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.connections, c.MerchantID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	log.Debug().Str("merchant_id", c.MerchantID).Msg("ws disconnected")
}

// Send writes msg to every session of the merchant and returns how many
// received it. Failed sessions are dropped.
func (h *Hub) Send(merchantID string, msg interface{}) int {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections[merchantID]))
	for c := range h.connections[merchantID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []*Connection
	for _, c := range conns {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Warn().Err(err).Str("merchant_id", merchantID).Msg("ws send failed")
			dead = append(dead, c)
			continue
		}
		delivered++
	}
	for _, c := range dead {
		h.Remove(c)
	}
	return delivered
}

func (h *Hub) Sessions(merchantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[merchantID])
}

// Serve upgrades the request and holds the session until the client goes away.
// onOpen runs once the session is registered, e.g. to push a balance snapshot.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, merchantID string, onOpen func(c *Connection)) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := h.Add(merchantID, ws)
	defer h.Remove(c)

	if onOpen != nil {
		onOpen(c)
	}
	ws.SetReadLimit(4096)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		c.LastSeen = time.Now()
	}
}

// Write sends directly to one session.
func (c *Connection) Write(msg interface{}) error {
	return c.conn.WriteJSON(msg)
}
