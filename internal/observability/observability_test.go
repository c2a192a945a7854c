package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("coldsend", "test", &buf).WithSession("abc-123")

	log.SessionStarted("abc-123", true, true)
	log.PeerPresent(1)
	log.RecordSent(0, 42)
	log.LinkLost(errors.New("presence lost"), 3)
	log.TransferCompleted("abc-123", 10, 2, 1500*time.Millisecond)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("logged %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if fields["service"] != "coldsend" {
			t.Errorf("line %d service = %v", i, fields["service"])
		}
		if fields["session_id"] != "abc-123" {
			t.Errorf("line %d session_id = %v", i, fields["session_id"])
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	log := Nop().WithSession("x").WithDevice("/dev/null")
	log.Info("nothing")
	log.Error(errors.New("nope"), "still nothing")
}

func TestMetricsRegistriesIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordSent(10)
	a.RecordDropped("auth_failed")
	b.RecordReceived(20)
	b.SetLinkPresent(true)

	if a.Handler() == nil || b.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestInitTracingNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")

	shutdown, err := InitTracing(context.Background(), "coldsend", "test")
	if err != nil {
		t.Fatalf("InitTracing() failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("InitTracing() returned a nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown failed: %v", err)
	}
}
