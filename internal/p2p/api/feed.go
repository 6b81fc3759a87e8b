package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"betops/internal/common/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard sits behind the ops gateway.
		return true
	},
}

// Feed fans match lifecycle events out to connected dashboard clients.
// It plugs into the event subscriber on the consuming side and serves
// the websocket endpoint on the other.
type Feed struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewFeed creates an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and holds it open until the client
// drops. Clients only listen; inbound frames beyond pongs are discarded.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	f.add(conn)
	defer f.remove(conn)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Handle broadcasts an event to every connected client. Plugged into the
// event subscriber; always acks.
func (f *Feed) Handle(ctx context.Context, event *events.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for conn := range f.conns {
		if err := conn.WriteJSON(event); err != nil {
			f.logger.Warn("websocket send failed, dropping client", "error", err)
			go f.remove(conn)
		}
	}
	return nil
}

// Heartbeat pings clients at the given interval until ctx is cancelled.
func (f *Feed) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.RLock()
			for conn := range f.conns {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			}
			f.mu.RUnlock()
		}
	}
}

func (f *Feed) add(conn *websocket.Conn) {
	f.mu.Lock()
	f.conns[conn] = struct{}{}
	total := len(f.conns)
	f.mu.Unlock()
	f.logger.Info("dashboard client connected", "clients", total)
}

func (f *Feed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.conns[conn]
	if ok {
		delete(f.conns, conn)
		_ = conn.Close()
	}
	total := len(f.conns)
	f.mu.Unlock()

	if ok {
		f.logger.Info("dashboard client disconnected", "clients", total)
	}
}
