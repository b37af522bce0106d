package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	log, err := New("debug", "console")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}

	log, err = New("warn", "json")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if log.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn")
	}

	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
