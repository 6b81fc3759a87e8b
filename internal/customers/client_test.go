package customers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{BaseURL: baseURL, APIKey: "test-key", Timeout: 2 * time.Second}, logger)
}

func TestClientExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("wrong auth header: %q", got)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/customers/alice"):
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/customers/mallory"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "alice")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("alice should exist")
	}

	exists, err = client.Exists(ctx, "mallory")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("mallory should not exist")
	}

	if _, err := client.Exists(ctx, "outage"); err == nil {
		t.Error("server error should surface")
	} else if !strings.Contains(err.Error(), "status=500") {
		t.Errorf("error should carry the status, got %v", err)
	}
}

func TestClientExistsUnreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	if _, err := client.Exists(context.Background(), "alice"); err == nil {
		t.Error("unreachable platform should error")
	}
}
