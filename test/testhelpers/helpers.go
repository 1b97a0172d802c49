// Package testhelpers provides shared utilities for testing the broadcast
// server: free-port allocation, WebSocket clients, receive helpers, and a
// recording logger.
package testhelpers

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FreePort asks the OS for an unused TCP port and returns it. The listener
// is closed before returning, so a small race window exists; tests that
// need a guaranteed conflict should hold their own listener instead.
func FreePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to allocate free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		t.Fatalf("Failed to release free port: %v", err)
	}
	return port
}

// WSURL builds the WebSocket URL for a broadcast server on the given port.
func WSURL(port int) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/", port)
}

// ConnectWebSocket opens a WebSocket connection to the specified URL
// without an Origin header, the way native clients connect.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ConnectWebSocketWithOrigin opens a WebSocket connection carrying the
// given Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", origin)
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReceiveText reads one text frame from the connection, failing after the
// given timeout.
func ReceiveText(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if msgType != websocket.TextMessage {
		return "", fmt.Errorf("expected text frame, got message type %d", msgType)
	}
	return string(data), nil
}

// ExpectNoMessage asserts that nothing arrives on the connection within
// the wait period.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Errorf("Expected no message, received %q", string(data))
	}
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", desc)
}

// RecordingLogger captures formatted log lines per level. It satisfies the
// server package's Logger interface.
type RecordingLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{entries: make(map[string][]string)}
}

func (l *RecordingLogger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level] = append(l.entries[level], fmt.Sprintf(format, args...))
}

func (l *RecordingLogger) Debugf(format string, args ...any) { l.record("debug", format, args...) }
func (l *RecordingLogger) Infof(format string, args ...any)  { l.record("info", format, args...) }
func (l *RecordingLogger) Warnf(format string, args ...any)  { l.record("warn", format, args...) }
func (l *RecordingLogger) Errorf(format string, args ...any) { l.record("error", format, args...) }

// Messages returns the lines recorded at the given level.
func (l *RecordingLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[level]...)
}
