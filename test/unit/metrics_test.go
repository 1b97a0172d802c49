package unit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/wscast/internal/server"
)

// TestNewMetricsRegisters verifies the metric families register against an
// injected registry without colliding.
func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := server.NewMetrics(reg, "wscast_test")

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if got := m.DroppedMessages(9001); got != 0 {
		t.Errorf("Expected zero drops for an unused port, got %v", got)
	}

	// Registering the same families twice must panic via MustRegister;
	// guard against silent duplicate registration.
	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()
	server.NewMetrics(reg, "wscast_test")
}

// TestNilMetricsSafe verifies uninstrumented servers tolerate a nil
// Metrics handle end to end.
func TestNilMetricsSafe(t *testing.T) {
	var m *server.Metrics
	if got := m.DroppedMessages(9001); got != 0 {
		t.Errorf("Expected zero drops from nil metrics, got %v", got)
	}

	srv := server.NewBroadcastServer(19010, nil, nil, server.WithMetrics(nil))
	srv.Broadcast("no metrics attached")
}
