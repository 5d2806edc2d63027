// Package events carries status notifications from the core components to the
// view layer: a pub/sub hub plus a short ring buffer of recent notices for
// late joiners.
package events

import (
	"sync"
	"time"
)

// Level mirrors the status levels the view layer renders.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one status notification.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// recentCap bounds the ring buffer, matching the debug panel's ten lines.
const recentCap = 10

// Hub fans notices out to subscribers and keeps the most recent ones for
// late joiners. Publishing never blocks: a subscriber that cannot keep up
// loses notices rather than stalling the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Notice]struct{}
	recent []Notice
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Notice]struct{}),
		now:  time.Now,
	}
}

// Publish emits a notice at the given level.
func (h *Hub) Publish(level Level, message string) {
	n := Notice{Level: level, Message: message, At: h.now().UTC()}

	h.mu.Lock()
	h.recent = append(h.recent, n)
	if len(h.recent) > recentCap {
		h.recent = h.recent[len(h.recent)-recentCap:]
	}
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release it.
func (h *Hub) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, 32)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns the buffered notices, oldest first.
func (h *Hub) Recent() []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Notice, len(h.recent))
	copy(out, h.recent)
	return out
}
