package detector

import (
	"testing"
	"time"
)

func TestDetectorStartsAvailable(t *testing.T) {
	d := New(DefaultConfig())
	if !d.IsAvailable() {
		t.Fatal("a fresh detector with no samples must start available")
	}
}

func TestDetectorStaysAvailableOnRegularArrivals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureInterval = time.Millisecond
	d := New(cfg)

	base := time.Now()
	for i := 0; i < 20; i++ {
		d.RecordArrival(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	if !d.IsAvailable() {
		t.Fatal("expected detector to remain available under a regular heartbeat cadence")
	}
}

func TestDetectorFlipsUnavailableAfterSustainedSilence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureInterval = 10 * time.Millisecond
	cfg.MinStdDeviation = time.Millisecond
	d := New(cfg)

	base := time.Now()
	for i := 0; i < 20; i++ {
		d.RecordArrival(base.Add(time.Duration(i) * 50 * time.Millisecond))
	}

	lastArrival := base.Add(19 * 50 * time.Millisecond)
	farFuture := lastArrival.Add(5 * time.Second)

	if d.Phi(farFuture) <= cfg.Threshold {
		t.Fatalf("expected phi to exceed threshold after a long silence, got %f", d.Phi(farFuture))
	}

	d.mu.Lock()
	d.evaluateLocked(farFuture)
	available := d.available
	d.mu.Unlock()

	if available {
		t.Fatal("expected detector to report unavailable after phi exceeded threshold for FailureInterval")
	}
}

func TestDetectorStateChangeCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureInterval = time.Nanosecond
	cfg.MinStdDeviation = time.Millisecond
	d := New(cfg)

	changes := make(chan bool, 4)
	d.OnStateChange(func(available bool) { changes <- available })

	base := time.Now()
	for i := 0; i < 20; i++ {
		d.RecordArrival(base.Add(time.Duration(i) * 50 * time.Millisecond))
	}

	d.mu.Lock()
	d.evaluateLocked(base.Add(19*50*time.Millisecond + 5*time.Second))
	d.mu.Unlock()

	select {
	case available := <-changes:
		if available {
			t.Fatal("expected a transition to unavailable")
		}
	case <-time.After(time.Second):
		t.Fatal("expected OnStateChange callback to fire")
	}
}
