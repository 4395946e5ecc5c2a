package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flarepoly/game-engine/internal/metrics"
	"github.com/flarepoly/game-engine/internal/model"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// WSMessage is the envelope pushed to WebSocket clients.
type WSMessage struct {
	Type  string         `json:"type"`
	State model.Snapshot `json:"state"`
}

// WSHub pushes every committed snapshot to connected clients. New clients
// receive the current snapshot immediately so they never wait for the next
// commit to render.
type WSHub struct {
	current func() model.Snapshot
	log     *slog.Logger

	mu         sync.Mutex
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

// NewWSHub creates a hub. current supplies the snapshot sent on connect.
func NewWSHub(current func() model.Snapshot, log *slog.Logger) *WSHub {
	return &WSHub{
		current:    current,
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.log.Info("ws client connected", "total", n)
			if msg, err := encode(h.current()); err == nil {
				h.send(conn, msg)
			}

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			h.mu.Lock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.Unlock()
			for _, conn := range conns {
				h.send(conn, msg)
			}
		}
	}
}

func (h *WSHub) send(conn *websocket.Conn, msg []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.drop(conn)
	}
}

func (h *WSHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		metrics.WebSocketClients.Set(float64(n))
	}
}

func encode(s model.Snapshot) ([]byte, error) {
	return json.Marshal(WSMessage{Type: "snapshot", State: s})
}

// Publish queues s for every client. It never blocks the engine: if the
// buffer is full the snapshot is dropped, and clients catch up on the next
// one since each message carries the full state.
func (h *WSHub) Publish(s model.Snapshot) {
	data, err := encode(s)
	if err != nil {
		h.log.Error("ws encode failed", "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("ws broadcast buffer full, snapshot dropped", "version", s.Version)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades GET /api/v1/ws. Clients only listen; anything they send
// is discarded.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.Lock()
			_, ok := h.clients[conn]
			h.mu.Unlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}
