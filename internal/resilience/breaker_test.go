package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for range 3 {
		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two more failures must not open the circuit after the reset.
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("circuit should still be closed: %v", err)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// Advance past the timeout: one probe is allowed.
	now = now.Add(31 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to pass: %v", err)
	}

	// Successful probe closes the circuit.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit: %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	now = now.Add(31 * time.Second)
	_ = b.Execute(func() error { return errBoom })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestBreakerSet_IndependentPerKey(t *testing.T) {
	s := NewBreakerSet(1, time.Minute)

	_ = s.For("endpoint-a").Execute(func() error { return errBoom })

	if err := s.For("endpoint-a").Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected endpoint-a open, got %v", err)
	}
	if err := s.For("endpoint-b").Execute(func() error { return nil }); err != nil {
		t.Fatalf("endpoint-b must be unaffected: %v", err)
	}

	if s.For("endpoint-a") != s.For("endpoint-a") {
		t.Error("For must return the same breaker for the same key")
	}
}
