package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStopFileTriggersStop(t *testing.T) {
	dir := t.TempDir()
	stopFile := filepath.Join(dir, "stop")

	c := New(Config{StopFile: stopFile, PollInterval: 10 * time.Millisecond})
	var reason string
	done := make(chan struct{})
	c.OnStop(func(r string) { reason = r; close(done) })
	c.Start()
	defer c.Close()

	if err := os.WriteFile(stopFile, []byte("stop"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop file to trigger stop")
	}

	if !c.Stopped() {
		t.Error("expected Stopped() to be true")
	}
	if reason == "" {
		t.Error("expected a non-empty stop reason")
	}
}

func TestStoppedFalseWithoutStopCondition(t *testing.T) {
	c := New(Config{})
	c.Start()
	defer c.Close()

	time.Sleep(20 * time.Millisecond)
	if c.Stopped() {
		t.Error("expected Stopped() to remain false with no trigger")
	}
}
