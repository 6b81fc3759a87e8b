package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"betops/internal/common/events"
)

func waitForClients(t *testing.T, feed *Feed, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		feed.mu.RLock()
		n := len(feed.conns)
		feed.mu.RUnlock()
		if n == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, still %d", want, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedBroadcast(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewFeed(logger)

	srv := httptest.NewServer(http.HandlerFunc(feed.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	defer conn.Close()

	waitForClients(t, feed, 1)

	evt, err := events.NewEvent(events.EventMatchCreated, "p2p_match", "m1", map[string]string{"rail": "venmo"})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}
	if err := feed.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if got.Type != events.EventMatchCreated || got.AggregateID != "m1" {
		t.Errorf("wrong event delivered: %s %s", got.Type, got.AggregateID)
	}
}

func TestFeedClientDisconnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewFeed(logger)

	srv := httptest.NewServer(http.HandlerFunc(feed.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	waitForClients(t, feed, 1)

	conn.Close()
	waitForClients(t, feed, 0)

	// Broadcasting to an empty room still acks.
	evt, err := events.NewEvent(events.EventMatchCompleted, "p2p_match", "m2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := feed.Handle(context.Background(), evt); err != nil {
		t.Errorf("empty broadcast should not fail: %v", err)
	}
}
