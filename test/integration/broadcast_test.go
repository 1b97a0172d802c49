package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/wscast/internal/server"
	"github.com/Tyrowin/wscast/test/testhelpers"
)

// TestBroadcastReachesAllClients verifies that a single broadcast delivers
// exactly one text frame to every connected client.
func TestBroadcastReachesAllClients(t *testing.T) {
	port := testhelpers.FreePort(t)
	srv := server.NewBroadcastServer(port, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	first, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Failed to connect first client: %v", err)
	}
	defer first.Close()

	second, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Failed to connect second client: %v", err)
	}
	defer second.Close()

	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return srv.ClientCount() == 2
	}, "both clients to register")

	srv.Broadcast("hello")

	msg, err := testhelpers.ReceiveText(first, 2*time.Second)
	if err != nil {
		t.Fatalf("First client did not receive the broadcast: %v", err)
	}
	if msg != "hello" {
		t.Errorf("First client received %q, expected %q", msg, "hello")
	}

	msg, err = testhelpers.ReceiveText(second, 2*time.Second)
	if err != nil {
		t.Fatalf("Second client did not receive the broadcast: %v", err)
	}
	if msg != "hello" {
		t.Errorf("Second client received %q, expected %q", msg, "hello")
	}

	// Exactly one frame each.
	testhelpers.ExpectNoMessage(t, first, 200*time.Millisecond)
	testhelpers.ExpectNoMessage(t, second, 200*time.Millisecond)
}

// TestBroadcastOrdering verifies frames from one publisher arrive in
// submission order.
func TestBroadcastOrdering(t *testing.T) {
	port := testhelpers.FreePort(t)
	srv := server.NewBroadcastServer(port, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	conn, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Failed to connect client: %v", err)
	}
	defer conn.Close()

	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return srv.ClientCount() == 1
	}, "client to register")

	messages := []string{"one", "two", "three", "four", "five"}
	for _, msg := range messages {
		srv.Broadcast(msg)
	}

	for _, want := range messages {
		got, err := testhelpers.ReceiveText(conn, 2*time.Second)
		if err != nil {
			t.Fatalf("Failed to receive %q: %v", want, err)
		}
		if got != want {
			t.Errorf("Received %q, expected %q", got, want)
		}
	}
}

// TestInboundFramesIgnored verifies client-sent frames are discarded and
// never echoed back to anyone.
func TestInboundFramesIgnored(t *testing.T) {
	port := testhelpers.FreePort(t)
	srv := server.NewBroadcastServer(port, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	sender, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Failed to connect sender: %v", err)
	}
	defer sender.Close()

	listener, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Failed to connect listener: %v", err)
	}
	defer listener.Close()

	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return srv.ClientCount() == 2
	}, "both clients to register")

	if err := sender.WriteMessage(websocket.TextMessage, []byte("chatter")); err != nil {
		t.Fatalf("Failed to send inbound frame: %v", err)
	}

	testhelpers.ExpectNoMessage(t, listener, 300*time.Millisecond)
}

// TestDisallowedOriginRejected verifies the configured origin allow-list
// gates browser upgrades while native clients stay unaffected.
func TestDisallowedOriginRejected(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"http://allowed.example"}

	port := testhelpers.FreePort(t)
	srv := server.NewBroadcastServer(port, cfg, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	if _, err := testhelpers.ConnectWebSocketWithOrigin(testhelpers.WSURL(port), "http://evil.example"); err == nil {
		t.Error("Expected a disallowed origin to be rejected")
	}

	allowed, err := testhelpers.ConnectWebSocketWithOrigin(testhelpers.WSURL(port), "http://allowed.example")
	if err != nil {
		t.Fatalf("Allowed origin was rejected: %v", err)
	}
	_ = allowed.Close()

	native, err := testhelpers.ConnectWebSocket(testhelpers.WSURL(port))
	if err != nil {
		t.Fatalf("Origin-less client was rejected: %v", err)
	}
	_ = native.Close()
}
