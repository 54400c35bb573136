// internal/app/system/stream/stream.go
//
// Package stream pushes collection snapshots and notifications to
// websocket clients so a UI can mirror the tracking store live.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeCollection   = "collection"
	TypeNotification = "notification"
)

const (
	defaultBuffer = 64
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

// Event is the JSON message sent to clients.
type Event struct {
	Type         string               `json:"type"`
	Collection   models.Collection    `json:"collection"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

type client struct {
	id   string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans events out to connected clients. Publishing never blocks; a
// client whose buffer is full misses the event.
type Hub struct {
	logger   *zap.Logger
	snapshot func() models.Collection
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped uint64
}

// NewHub creates a hub. snapshot supplies the collection sent to each
// client as soon as it connects; it may be nil.
func NewHub(logger *zap.Logger, snapshot func() models.Collection) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// AllowAnyOrigin disables the same-origin check on upgrades.
func (h *Hub) AllowAnyOrigin() {
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
}

// PublishCollection sends a collection snapshot to every client. Its
// signature matches tracking.Store.OnChange.
func (h *Hub) PublishCollection(c models.Collection) {
	if c == nil {
		c = models.Collection{}
	}
	h.publish(Event{Type: TypeCollection, Collection: c})
}

// PublishNotification sends n to every client. Its signature matches
// notify.Hub.Subscribe.
func (h *Hub) PublishNotification(n notify.Notification) {
	h.publish(Event{Type: TypeNotification, Notification: &n})
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) add() *client {
	c := &client{id: uuid.NewString(), ch: make(chan Event, defaultBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// ServeHTTP upgrades the request and streams events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	c := h.add()
	defer h.remove(c)
	log := h.logger.With(zap.String("client_id", c.id))
	log.Debug("event stream client connected", zap.String("remote_addr", r.RemoteAddr))
	defer log.Debug("event stream client disconnected")

	if h.snapshot != nil {
		if err := writeJSON(conn, Event{Type: TypeCollection, Collection: h.snapshot()}); err != nil {
			return
		}
	}

	// Reader: clients send nothing meaningful; reading keeps pong and
	// close frames flowing.
	go func() {
		defer c.close()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case ev := <-c.ch:
			if err := writeJSON(conn, ev); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
