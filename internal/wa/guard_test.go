package wa

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardReturnsResult(t *testing.T) {
	g := NewGuard(time.Second)
	v, err := Run(context.Background(), g, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("Run = %d, %v; want 42, nil", v, err)
	}

	wantErr := errors.New("boom")
	if err := g.Do(context.Background(), func(context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Do err = %v, want %v", err, wantErr)
	}
}

func TestGuardTimeout(t *testing.T) {
	g := NewGuard(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	err := g.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGuardStaysHeldUntilTimedOutCallReturns(t *testing.T) {
	g := NewGuard(20 * time.Millisecond)
	release := make(chan struct{})

	if err := g.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first call err = %v, want ErrTimeout", err)
	}

	// The first call still runs, so the second cannot acquire within its budget.
	var ran atomic.Bool
	err := g.Do(context.Background(), func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second call err = %v, want ErrTimeout while guard held", err)
	}
	if ran.Load() {
		t.Error("second call ran while first was still in flight")
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for {
		err = g.Do(context.Background(), func(context.Context) error { return nil })
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("guard never released: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGuardSerializesCalls(t *testing.T) {
	g := NewGuard(time.Second)
	var inFlight, maxSeen atomic.Int32

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			errs <- g.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	for range 8 {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent calls = %d, want 1", maxSeen.Load())
	}
}

func TestGuardCanceledContext(t *testing.T) {
	g := NewGuard(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Hold the guard so acquisition has to observe the canceled context.
	g.sem <- struct{}{}
	defer func() { <-g.sem }()

	err := g.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
