package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Messages queued per client before it is dropped
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// message is one websocket text message.
type message struct {
	Type    string    `json:"type"`
	Frame   string    `json:"frame,omitempty"`
	Time    time.Time `json:"time"`
	Reading *reading  `json:"reading,omitempty"`
}

type reading struct {
	Zone  string `json:"zone"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func newReading(r engine.Reading) *reading {
	return &reading{Zone: r.Zone, Field: r.Field.String(), Value: r.Value}
}

type client struct {
	conn *websocket.Conn
	send chan message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// hub fans monitor messages out to websocket clients.
type hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast never blocks; a client whose queue is full is dropped.
func (h *hub) broadcast(msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("Dropping slow websocket client",
				zap.String("remote_addr", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan message, sendBuffer)}

	s.mu.RLock()
	monitoring := s.monitoring
	s.mu.RUnlock()
	if monitoring {
		c.send <- message{Type: "monitoring", Time: time.Now()}
	}

	s.hub.add(c)
	logging.LogConnection(s.log, conn.RemoteAddr().String(), logging.EventConnected)

	go s.readPump(c)
	s.writePump(c)
}

// readPump drains control frames and detects disconnects.
func (s *Server) readPump(c *client) {
	defer s.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.log.Debug("Websocket read ended", zap.Error(err))
			logging.LogConnection(s.log, c.conn.RemoteAddr().String(), logging.EventDisconnected)
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				s.log.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
