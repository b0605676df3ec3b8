// v1
// internal/breaker/breaker_test.go
package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpensAfterMaxFailures(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, ResetTimeout: time.Hour}, nil)
	boom := errors.New("boom")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Execute(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want fast-fail", err)
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New("test", Config{MaxFailures: 1, ResetTimeout: time.Millisecond}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if err := b.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after probe", b.State())
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New("test", Config{MaxFailures: 1, ResetTimeout: time.Millisecond}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)
	_ = b.Execute(ctx, func(context.Context) error { return errors.New("still down") })
	if b.State() != Open {
		t.Fatalf("state = %v, want re-opened", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{MaxFailures: 2, ResetTimeout: time.Hour}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	_ = b.Execute(ctx, func(context.Context) error { return nil })
	_ = b.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed (count reset by success)", b.State())
	}
}
