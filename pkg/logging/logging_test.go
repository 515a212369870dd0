package logging

import "testing"

func TestLevelFiltering(t *testing.T) {
	l := New("test")
	l.SetMinLevel(LevelWarn)
	// Debug/Info below minLevel are silently dropped; this only exercises
	// that calling them does not panic.
	l.Debug("ignored", nil)
	l.Info("ignored", nil)
	l.Warn("shown", map[string]string{"k": "v"})
	l.Error("shown", nil)
}

func TestNewDefaultsToDebug(t *testing.T) {
	l := New("test")
	if l.minLevel != LevelDebug {
		t.Fatalf("expected default min level debug, got %v", l.minLevel)
	}
}
