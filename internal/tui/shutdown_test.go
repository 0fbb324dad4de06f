package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestShutdownManager_Order(t *testing.T) {
	var steps []string
	sm := NewShutdownManager()
	sm.StopServers = func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("servers should get a drain deadline")
		}
		steps = append(steps, "servers")
		return nil
	}
	sm.StopEngine = func() { steps = append(steps, "engine") }
	sm.Cleanup = func() error {
		steps = append(steps, "cleanup")
		return nil
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := strings.Join(steps, ","); got != "servers,engine,cleanup" {
		t.Errorf("steps = %s", got)
	}
}

func TestShutdownManager_ContinuesAfterErrors(t *testing.T) {
	cleaned := false
	sm := &ShutdownManager{
		DrainTimeout: time.Second,
		StopServers:  func(context.Context) error { return errors.New("port busy") },
		Cleanup: func() error {
			cleaned = true
			return errors.New("flush failed")
		},
	}

	err := sm.Shutdown()
	if !cleaned {
		t.Error("cleanup should run after a server error")
	}
	if err == nil || !strings.Contains(err.Error(), "port busy") || !strings.Contains(err.Error(), "flush failed") {
		t.Errorf("err = %v, want both step errors", err)
	}
}

func TestShutdownManager_NoSteps(t *testing.T) {
	if err := NewShutdownManager().Shutdown(); err != nil {
		t.Errorf("Shutdown with no steps: %v", err)
	}
}
