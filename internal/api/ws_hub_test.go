package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server, pool string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if pool != "" {
		url += "?pool=" + pool
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *WSHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		got := len(h.clients)
		h.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWSHub_FiltersByPool(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	onlyA := dialHub(t, srv, "pool-a")
	onlyB := dialHub(t, srv, "pool-b")
	all := dialHub(t, srv, "")
	waitForClients(t, hub, 3)

	hub.Broadcast(WSMessage{Type: "deposit", PoolID: "pool-a", Phase: "deposit"})
	hub.Broadcast(WSMessage{Type: "transfer", PoolID: "pool-b", Phase: "transfer"})

	if msg := readMessage(t, onlyA); msg.PoolID != "pool-a" || msg.Type != "deposit" {
		t.Errorf("pool-a subscriber got %+v", msg)
	}
	if msg := readMessage(t, onlyB); msg.PoolID != "pool-b" || msg.Type != "transfer" {
		t.Errorf("pool-b subscriber got %+v", msg)
	}
	first, second := readMessage(t, all), readMessage(t, all)
	if first.PoolID != "pool-a" || second.PoolID != "pool-b" {
		t.Errorf("unfiltered subscriber got %s then %s", first.PoolID, second.PoolID)
	}
}

func TestWSHub_RunClosesClientsOnShutdown(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv, "")
	waitForClients(t, hub, 1)
	cancel()

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}

	// Broadcasting after shutdown never blocks.
	for i := 0; i < 300; i++ {
		hub.Broadcast(WSMessage{Type: "noop"})
	}
}
