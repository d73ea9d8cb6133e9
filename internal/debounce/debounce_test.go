package debounce

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type outcome struct {
	val string
	err error
}

func waitPending(t *testing.T, d *Debouncer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d", d.Pending(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDebounce_LaterCallSupersedes(t *testing.T) {
	d := New()
	var ranA, ranB atomic.Bool

	resA := make(chan outcome, 1)
	go func() {
		v, err := Debounce(context.Background(), d, "k", 200*time.Millisecond, func(context.Context) (string, error) {
			ranA.Store(true)
			return "A", nil
		})
		resA <- outcome{v, err}
	}()
	waitPending(t, d, 1)

	v, err := Debounce(context.Background(), d, "k", 20*time.Millisecond, func(context.Context) (string, error) {
		ranB.Store(true)
		return "B", nil
	})
	if err != nil || v != "B" {
		t.Fatalf("B = %q, %v", v, err)
	}

	a := <-resA
	if !errors.Is(a.err, ErrSuperseded) {
		t.Errorf("A err = %v, want ErrSuperseded", a.err)
	}
	if ranA.Load() {
		t.Error("superseded op A was invoked")
	}
	if !ranB.Load() {
		t.Error("op B was not invoked")
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
}

func TestDebounce_DifferentKeysIndependent(t *testing.T) {
	d := New()
	res := make(chan outcome, 2)
	for _, k := range []string{"a", "b"} {
		go func(k string) {
			v, err := Debounce(context.Background(), d, k, 10*time.Millisecond, func(context.Context) (string, error) {
				return k, nil
			})
			res <- outcome{v, err}
		}(k)
	}
	for i := 0; i < 2; i++ {
		if o := <-res; o.err != nil {
			t.Errorf("unexpected error: %v", o.err)
		}
	}
}

func TestDebounce_OperationErrorPropagates(t *testing.T) {
	d := New()
	boom := errors.New("provider unavailable")
	_, err := Debounce(context.Background(), d, "k", 0, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if IsCancellation(err) {
		t.Error("operation error reported as cancellation")
	}
}

func TestCancel_NoPendingIsNoop(t *testing.T) {
	d := New()
	d.Cancel("nothing")
	d.ClearAll()
	if d.Pending() != 0 {
		t.Errorf("pending = %d", d.Pending())
	}
}

func TestCancel_RejectsPending(t *testing.T) {
	d := New()
	var ran atomic.Bool
	res := make(chan outcome, 1)
	go func() {
		v, err := Debounce(context.Background(), d, "k", time.Second, func(context.Context) (string, error) {
			ran.Store(true)
			return "x", nil
		})
		res <- outcome{v, err}
	}()
	waitPending(t, d, 1)

	d.Cancel("k")
	o := <-res
	if !errors.Is(o.err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", o.err)
	}
	if ran.Load() {
		t.Error("cancelled op was invoked")
	}
}

func TestClearAll_RejectsEveryKey(t *testing.T) {
	d := New()
	res := make(chan outcome, 3)
	for _, k := range []string{"a", "b", "c"} {
		go func(k string) {
			v, err := Debounce(context.Background(), d, k, time.Second, func(context.Context) (string, error) {
				return k, nil
			})
			res <- outcome{v, err}
		}(k)
	}
	waitPending(t, d, 3)

	d.ClearAll()
	for i := 0; i < 3; i++ {
		if o := <-res; !errors.Is(o.err, ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", o.err)
		}
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
}

func TestDebounce_CallerContextCancelled(t *testing.T) {
	d := New()
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	res := make(chan outcome, 1)
	go func() {
		v, err := Debounce(ctx, d, "k", time.Second, func(context.Context) (string, error) {
			ran.Store(true)
			return "x", nil
		})
		res <- outcome{v, err}
	}()
	waitPending(t, d, 1)

	cancel()
	o := <-res
	if !errors.Is(o.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", o.err)
	}
	if ran.Load() {
		t.Error("op ran after caller cancelled")
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
}

func TestDebounce_InFlightSupersedeCancelsOperation(t *testing.T) {
	d := New()
	started := make(chan struct{})
	opErr := make(chan error, 1)
	res := make(chan outcome, 1)
	go func() {
		v, err := Debounce(context.Background(), d, "k", 0, func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			opErr <- context.Cause(ctx)
			return "late result", nil
		})
		res <- outcome{v, err}
	}()
	<-started

	v, err := Debounce(context.Background(), d, "k", 0, func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || v != "fresh" {
		t.Fatalf("second call = %q, %v", v, err)
	}

	o := <-res
	if !errors.Is(o.err, ErrSuperseded) || o.val != "" {
		t.Errorf("first call = %q, %v; want ErrSuperseded and no value", o.val, o.err)
	}
	if cause := <-opErr; !errors.Is(cause, ErrSuperseded) {
		t.Errorf("op context cause = %v, want ErrSuperseded", cause)
	}
}

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrSuperseded, true},
		{ErrCancelled, true},
		{errors.Join(errors.New("wrapped"), ErrCancelled), true},
		{context.Canceled, false},
		{errors.New("other"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsCancellation(tt.err); got != tt.want {
			t.Errorf("IsCancellation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestResolveDelay(t *testing.T) {
	tests := []struct {
		ms   int
		want time.Duration
	}{
		{-1, DefaultDelay},
		{0, 0},
		{150, 150 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ResolveDelay(tt.ms); got != tt.want {
			t.Errorf("ResolveDelay(%d) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}
