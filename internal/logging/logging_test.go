package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	l, err := New("production", "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.SugaredLogger.Desugar().Core().Enabled(zap.InfoLevel) {
		t.Error("expected info to be disabled at warn level")
	}
}

func TestRedactsCredentials(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("calling provider", "api_key", "sk-123", "model", "gpt-4o-mini")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("expected api_key redacted, got %v", fields["api_key"])
	}
	if fields["model"] != "gpt-4o-mini" {
		t.Errorf("expected model kept, got %v", fields["model"])
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With("k", "v").Error("discarded")
	l.Sync()
}
