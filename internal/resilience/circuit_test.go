package resilience

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestDomainBreakers_ClosedPassesThrough(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{})

	var calls int
	got, err := Execute(context.Background(), b, "a.go.jp", func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
	if b.State("a.go.jp") != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State("a.go.jp"))
	}
}

func TestDomainBreakers_OpensAfterThreshold(t *testing.T) {
	var tripped []string
	b := NewDomainBreakers(BreakerConfig{
		FailureThreshold: 2,
		OnTrip:           func(d string) { tripped = append(tripped, d) },
	})
	fail := func(_ context.Context) (int, error) { return 0, errors.New("boom") }

	for range 2 {
		_, _ = Execute(context.Background(), b, "bad.jp", fail)
	}
	if b.State("bad.jp") != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State("bad.jp"))
	}

	var calls int
	_, err := Execute(context.Background(), b, "bad.jp", func(_ context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("fn should not run while open")
	}
	if !b.Allow("good.jp") {
		t.Error("other domains must stay closed")
	}
	if !reflect.DeepEqual(tripped, []string{"bad.jp"}) {
		t.Errorf("OnTrip calls = %v", tripped)
	}

	// Further failures do not re-trip.
	b.Record("bad.jp", errors.New("again"))
	if len(tripped) != 1 {
		t.Errorf("OnTrip called %d times", len(tripped))
	}
}

func TestDomainBreakers_SuccessResets(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{FailureThreshold: 2})
	b.Record("x.jp", errors.New("1"))
	b.Record("x.jp", nil)
	b.Record("x.jp", errors.New("2"))
	if b.State("x.jp") != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", b.State("x.jp"))
	}
}

func TestDomainBreakers_CancellationDoesNotTrip(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{FailureThreshold: 1})
	b.Record("x.jp", context.Canceled)
	if !b.Allow("x.jp") {
		t.Error("context cancellation must not open the breaker")
	}
}

func TestDomainBreakers_ShouldTrip(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{FailureThreshold: 1, ShouldTrip: IsTransient})
	b.Record("x.jp", errors.New("parse failure"))
	if !b.Allow("x.jp") {
		t.Error("non-transient error must not trip")
	}
	b.Record("x.jp", NewTransientError(errors.New("503"), 503))
	if b.Allow("x.jp") {
		t.Error("transient error should trip")
	}
}

func TestDomainBreakers_Open(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{FailureThreshold: 1})
	b.Record("z.jp", errors.New("x"))
	b.Record("a.jp", errors.New("x"))
	b.Record("m.jp", nil)
	if got := b.Open(); !reflect.DeepEqual(got, []string{"a.jp", "z.jp"}) {
		t.Errorf("Open() = %v", got)
	}
}

func TestDomainBreakers_Concurrent(t *testing.T) {
	b := NewDomainBreakers(BreakerConfig{FailureThreshold: 50})
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				b.Record("c.jp", errors.New("x"))
				_ = b.Allow("c.jp")
			}
		}()
	}
	wg.Wait()
	if b.State("c.jp") != CircuitOpen {
		t.Errorf("expected open after 100 failures")
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitClosed.String() != "closed" || CircuitOpen.String() != "open" || CircuitState(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
