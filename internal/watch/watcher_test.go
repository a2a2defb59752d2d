package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type recordingInvalidator struct {
	mu        sync.Mutex
	addresses []string
	notify    chan string
}

func (r *recordingInvalidator) InvalidateWallet(_ context.Context, address string) int {
	r.mu.Lock()
	r.addresses = append(r.addresses, address)
	r.mu.Unlock()
	select {
	case r.notify <- address:
	default:
	}
	return 1
}

func TestWatcher_InvalidatesOnFeedMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		msgs := []string{
			`{"address":"0xaaaa1111","tokenType":"BTC","txRef":"tx1"}`,
			`not json`,
			`{"address":"0xbbbb2222","tokenType":"ETH","txRef":"tx2"}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	target := &recordingInvalidator{notify: make(chan string, 8)}
	w := New(Config{
		WSURL:             "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInterval: 10 * time.Millisecond,
	}, target, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	seen := make(map[string]bool)
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case addr := <-target.notify:
			seen[addr] = true
		case <-deadline:
			t.Fatalf("timed out, invalidated so far: %v", seen)
		}
	}

	if !seen["0xaaaa1111"] || !seen["0xbbbb2222"] {
		t.Errorf("invalidated = %v, want both addresses", seen)
	}
}
