package xrecord

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thfi/scriptcast/pkg/config"
)

func TestHubBroadcastsToConnectedSubscriber(t *testing.T) {
	cfg := config.DefaultConfig()
	hub := NewHub(cfg)

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the connection.
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}

	hub.Broadcast([]byte(`<timestep delay="0.100"><text>x</text></timestep>`))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading message: %v", err)
	}
	if string(data) != `<timestep delay="0.100"><text>x</text></timestep>` {
		t.Errorf("got %q", data)
	}
}

func TestHubWriteIsIoWriterCompatible(t *testing.T) {
	cfg := config.DefaultConfig()
	hub := NewHub(cfg)

	n, err := hub.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if n != 5 {
		t.Errorf("Write returned n=%d, want 5", n)
	}
}

func TestHubBroadcastWithNoSubscribersDoesNotBlock(t *testing.T) {
	cfg := config.DefaultConfig()
	hub := NewHub(cfg)
	hub.Broadcast([]byte("nobody is listening"))
}
