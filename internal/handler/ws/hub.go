package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	applogger "SignalFusion/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Hub streams finished decisions to websocket subscribers.
type Hub struct {
	log      *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	pair string // empty means every pair
	send chan []byte
}

var _ domrepo.DecisionPublisher = (*Hub)(nil)

func NewHub(l *applogger.Logger) *Hub {
	return &Hub{
		log:      l,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  map[*client]struct{}{},
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", h.Serve)
}

// Serve upgrades the request; ?pair= narrows the stream to one pair.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &client{conn: conn, pair: c.QueryParam("pair"), send: make(chan []byte, sendBuffer)}
	if !h.add(cl) {
		_ = conn.Close()
		return nil
	}
	h.log.Debug("ws subscriber joined", applogger.String("pair", cl.pair))

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// PublishDecision fans d out. Slow subscribers lose messages rather than block the engine.
func (h *Hub) PublishDecision(_ context.Context, d models.FusedDecision) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if cl.pair != "" && cl.pair != d.Pair {
			continue
		}
		select {
		case cl.send <- b:
		default:
			h.log.Warn("ws subscriber too slow, dropping decision", applogger.String("decision_id", d.ID))
		}
	}
	return nil
}

// Subscribers is the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
	return nil
}

func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// readLoop only watches for close and pong frames.
func (h *Hub) readLoop(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
