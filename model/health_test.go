package model

import (
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func withClock(r *Registry, cfg HealthConfig) *fakeClock {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	r.SetHealthConfig(cfg)
	r.health.now = clock.now
	return clock
}

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("qwen-plus") {
		t.Error("expected qwen-plus to be available initially")
	}
	if h := r.GetEndpointHealth("qwen-plus"); h != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("qwen-plus")

	h := r.GetEndpointHealth("qwen-plus")
	if h == nil {
		t.Fatal("expected health info after success")
	}
	if !h.Available || h.FailureCount != 0 || h.LastSuccess.IsZero() {
		t.Errorf("unexpected health after success: %+v", h)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	r := NewDefaultRegistry()
	clock := withClock(r, HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("qwen-plus")
	if !r.IsEndpointAvailable("qwen-plus") {
		t.Fatal("expected qwen-plus to be available after 1 failure")
	}

	r.MarkEndpointFailure("qwen-plus")
	if r.IsEndpointAvailable("qwen-plus") {
		t.Fatal("expected circuit to open after 2 failures")
	}

	h := r.GetEndpointHealth("qwen-plus")
	if h == nil || !h.CircuitOpen || h.FailureCount != 2 {
		t.Fatalf("unexpected health: %+v", h)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if !r.IsEndpointAvailable("qwen-plus") {
		t.Error("expected half-open availability after recovery timeout")
	}

	r.MarkEndpointSuccess("qwen-plus")
	h = r.GetEndpointHealth("qwen-plus")
	if h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected circuit closed after success, got %+v", h)
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()
	withClock(r, HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	chain := r.GetAvailableFallbackChain(CapabilityMatching)
	if len(chain) != 2 {
		t.Fatalf("expected 2 models, got %v", chain)
	}

	r.MarkEndpointFailure("qwen-plus")
	chain = r.GetAvailableFallbackChain(CapabilityMatching)
	if len(chain) != 1 || chain[0] != "qwen-turbo" {
		t.Errorf("expected [qwen-turbo], got %v", chain)
	}

	r.MarkEndpointFailure("qwen-turbo")
	chain = r.GetAvailableFallbackChain(CapabilityMatching)
	if len(chain) != 2 {
		t.Errorf("expected full chain when every endpoint is blocked, got %v", chain)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()
	withClock(r, HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("qwen-plus")
	if r.IsEndpointAvailable("qwen-plus") {
		t.Fatal("expected circuit open")
	}

	r.ResetEndpointHealth("qwen-plus")
	if !r.IsEndpointAvailable("qwen-plus") {
		t.Error("expected endpoint available after reset")
	}
	if r.GetEndpointHealth("qwen-plus") != nil {
		t.Error("expected health cleared after reset")
	}
}
