package unit

import (
	"net"
	"testing"
	"time"

	"github.com/Tyrowin/wscast/internal/server"
	"github.com/Tyrowin/wscast/test/testhelpers"
)

// TestStopAllOnEmptyPool verifies StopAll on a fresh pool is a safe no-op.
func TestStopAllOnEmptyPool(t *testing.T) {
	pool := server.NewPool(nil, nil)

	done := make(chan struct{})
	go func() {
		pool.StopAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopAll on an empty pool blocked")
	}

	if pool.Size() != 0 {
		t.Errorf("Expected empty registry, got %d entries", pool.Size())
	}
}

// TestEnsureServerBindFailure verifies that a port held by another listener
// yields a nil server and an error, and that nothing is registered.
func TestEnsureServerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to occupy a port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	pool := server.NewPool(nil, testhelpers.NewRecordingLogger())

	srv, err := pool.EnsureServer(port)
	if err == nil {
		t.Fatal("Expected EnsureServer to fail on an occupied port")
	}
	if srv != nil {
		t.Error("Expected a nil server on failure")
	}
	if pool.Size() != 0 {
		t.Errorf("Failed creation left %d registry entries", pool.Size())
	}
}

// TestEnsureServerRegistersEntry verifies a successful creation is
// recorded in the registry.
func TestEnsureServerRegistersEntry(t *testing.T) {
	pool := server.NewPool(nil, nil)
	defer pool.StopAll()

	port := testhelpers.FreePort(t)
	srv, err := pool.EnsureServer(port)
	if err != nil {
		t.Fatalf("EnsureServer failed: %v", err)
	}
	if srv == nil {
		t.Fatal("EnsureServer returned a nil server without error")
	}
	if srv.Port() != port {
		t.Errorf("Expected port %d, got %d", port, srv.Port())
	}
	if pool.Size() != 1 {
		t.Errorf("Expected 1 registry entry, got %d", pool.Size())
	}
}
