// internal/app/system/notify/notify.go
//
// Package notify delivers user-facing notifications. Every notification is
// logged; a Hub also keeps the most recent ones and fans them out to
// subscribers such as the websocket event stream.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notification is one message for the user.
type Notification struct {
	ID    string    `json:"id"`
	Level Level     `json:"level"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Notifier accepts notifications.
type Notifier interface {
	Notify(Notification)
}

// Success builds a success notification.
func Success(title, text string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Text: text}
}

// Error builds an error notification.
func Error(title, text string) Notification {
	return Notification{Level: LevelError, Title: title, Text: text}
}

// Info builds an informational notification.
func Info(title, text string) Notification {
	return Notification{Level: LevelInfo, Title: title, Text: text}
}

// recentLimit is how many notifications Recent keeps.
const recentLimit = 20

// Hub logs notifications and fans them out to subscribers.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]func(Notification)
	next   int
	recent []Notification
}

// NewHub creates a hub that logs through logger.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, subs: map[int]func(Notification){}}
}

// Notify stamps n with an id and time, logs it, and delivers it to every
// subscriber. Subscribers run in the caller's goroutine and must not block.
func (h *Hub) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("level", string(n.Level)),
		zap.String("title", n.Title),
		zap.String("text", n.Text),
	}
	switch n.Level {
	case LevelError:
		h.logger.Warn("notification", fields...)
	default:
		h.logger.Info("notification", fields...)
	}

	h.mu.Lock()
	h.recent = append(h.recent, n)
	if len(h.recent) > recentLimit {
		h.recent = h.recent[len(h.recent)-recentLimit:]
	}
	fns := make([]func(Notification), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Notification)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Recent returns the latest notifications, oldest first.
func (h *Hub) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.recent))
	copy(out, h.recent)
	return out
}
