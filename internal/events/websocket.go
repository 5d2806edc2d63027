package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pi-trace/registry/pkg/logger"
)

const wsWriteTimeout = 10 * time.Second

// Feed serves the hub's notices over a WebSocket connection.
type Feed struct {
	hub      *Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewFeed creates a WebSocket feed for the hub.
func NewFeed(hub *Hub, log *logger.Logger) *Feed {
	return &Feed{
		hub: hub,
		log: log.Named("events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway fronts a single local view layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and streams notices until the client
// disconnects. Recent notices are replayed first.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for _, n := range f.hub.Recent() {
		if err := f.write(conn, n); err != nil {
			return
		}
	}

	ch, cancel := f.hub.Subscribe()
	defer cancel()

	// Reader goroutine detects client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := f.write(conn, n); err != nil {
				return
			}
		}
	}
}

func (f *Feed) write(conn *websocket.Conn, n Notice) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(n)
}
