package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	prod, err := New("production")
	if err != nil {
		t.Fatalf("New(production): %v", err)
	}
	if prod.Core().Enabled(zap.DebugLevel) {
		t.Error("production logger should not log debug")
	}
	dev, err := New("")
	if err != nil {
		t.Fatalf("New(\"\"): %v", err)
	}
	if !dev.Core().Enabled(zap.DebugLevel) {
		t.Error("development logger should log debug")
	}
}
