// Package debounce delays keyed operations until callers stop re-issuing them.
// Only the most recent call for a key runs; earlier callers are released with
// ErrSuperseded.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDelay is the quiet period used when a caller does not pick one.
const DefaultDelay = 300 * time.Millisecond

var (
	// ErrSuperseded is returned to a caller whose call was replaced by a newer
	// call for the same key.
	ErrSuperseded = errors.New("debounce: superseded by a newer request")

	// ErrCancelled is returned to a caller whose call was cancelled with Cancel or ClearAll.
	ErrCancelled = errors.New("debounce: request cancelled")
)

// IsCancellation reports whether err means the debounced call was dropped
// rather than failing on its own.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, ErrCancelled)
}

// ResolveDelay converts a millisecond setting to a delay. Negative values
// select DefaultDelay; zero runs the operation on the next timer tick.
func ResolveDelay(ms int) time.Duration {
	if ms < 0 {
		return DefaultDelay
	}
	return time.Duration(ms) * time.Millisecond
}

type call struct {
	timer  *time.Timer
	fire   chan struct{}
	cancel context.CancelCauseFunc
	err    error // set once the call is dropped
}

// Debouncer tracks one pending call per key. The zero value is not usable;
// create one with New.
type Debouncer struct {
	mu    sync.Mutex
	calls map[string]*call
}

// New creates an empty Debouncer.
func New() *Debouncer {
	return &Debouncer{calls: make(map[string]*call)}
}

// Debounce schedules op to run after delay unless another call for key
// arrives first. It blocks until op returns, the call is dropped, or ctx ends.
//
// If the call is superseded or cancelled after op has started, the context
// passed to op is cancelled and the caller receives the drop error even when
// op later returns a value.
func Debounce[T any](ctx context.Context, d *Debouncer, key string, delay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	opCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c := &call{fire: make(chan struct{}), cancel: cancel}
	d.mu.Lock()
	if prev, ok := d.calls[key]; ok {
		prev.drop(ErrSuperseded)
		log.Debug().Str("key", key).Msg("Debounced request superseded")
	}
	d.calls[key] = c
	c.timer = time.AfterFunc(delay, func() { close(c.fire) })
	d.mu.Unlock()

	select {
	case <-c.fire:
	case <-opCtx.Done():
		d.mu.Lock()
		err := c.err
		d.forgetLocked(key, c)
		d.mu.Unlock()
		if err != nil {
			return zero, err
		}
		return zero, ctx.Err()
	}

	d.mu.Lock()
	if err := c.err; err != nil {
		d.mu.Unlock()
		return zero, err
	}
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		d.mu.Lock()
		d.forgetLocked(key, c)
		d.mu.Unlock()
		return zero, err
	}

	v, err := op(opCtx)

	d.mu.Lock()
	dropped := c.err
	d.forgetLocked(key, c)
	d.mu.Unlock()
	if dropped != nil {
		return zero, dropped
	}
	return v, err
}

// Cancel drops the pending call for key. It is a no-op when nothing is pending.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.calls[key]; ok {
		c.drop(ErrCancelled)
		delete(d.calls, key)
	}
}

// ClearAll drops every pending call.
func (d *Debouncer) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, c := range d.calls {
		c.drop(ErrCancelled)
		delete(d.calls, key)
	}
}

// Pending returns the number of keys with a waiting or running call.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// forgetLocked stops c's timer and removes it if it is still the current call for key.
func (d *Debouncer) forgetLocked(key string, c *call) {
	c.timer.Stop()
	if d.calls[key] == c {
		delete(d.calls, key)
	}
}

// drop must be called with the owning Debouncer's lock held.
func (c *call) drop(err error) {
	if c.err != nil {
		return
	}
	c.err = err
	c.timer.Stop()
	c.cancel(err)
}
