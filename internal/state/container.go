// Package state holds an observable application state value. Every change is
// published to subscribers as a Transition, so history recording and
// persistence can be attached without wrapping the container.
package state

import (
	"sync"
)

// Transition describes one state change.
type Transition[S any] struct {
	Action      string
	Description string
	Metadata    map[string]any
	Prev        S
	Next        S
}

// Subscriber observes transitions.
type Subscriber[S any] interface {
	OnTransition(Transition[S])
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc[S any] func(Transition[S])

// OnTransition calls f(t).
func (f SubscriberFunc[S]) OnTransition(t Transition[S]) { f(t) }

type subscription[S any] struct {
	id  uint64
	sub Subscriber[S]
}

// Container holds the current value of S. Updates are serialised and
// subscribers are notified synchronously in subscription order before Update
// returns. Subscribers must not call Update or Set on the same container.
type Container[S any] struct {
	updateMu sync.Mutex // serialises Update/Set and notification
	mu       sync.RWMutex
	value    S
	subs     []subscription[S]
	nextID   uint64
}

// New creates a container holding initial.
func New[S any](initial S) *Container[S] {
	return &Container[S]{value: initial}
}

// Get returns the current value.
func (c *Container[S]) Get() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Update replaces the value with fn(current) and notifies subscribers.
func (c *Container[S]) Update(action, description string, fn func(S) S) {
	c.apply(Transition[S]{Action: action, Description: description}, fn)
}

// UpdateWithMetadata is Update with metadata attached to the transition.
func (c *Container[S]) UpdateWithMetadata(action, description string, meta map[string]any, fn func(S) S) {
	c.apply(Transition[S]{Action: action, Description: description, Metadata: meta}, fn)
}

// Set replaces the value with next and notifies subscribers.
func (c *Container[S]) Set(action string, next S) {
	c.apply(Transition[S]{Action: action}, func(S) S { return next })
}

// Subscribe registers sub and returns a function that removes it.
func (c *Container[S]) Subscribe(sub Subscriber[S]) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription[S]{id: id, sub: sub})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Container[S]) apply(t Transition[S], fn func(S) S) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	t.Prev = c.value
	t.Next = fn(c.value)
	c.value = t.Next
	subs := make([]Subscriber[S], len(c.subs))
	for i, s := range c.subs {
		subs[i] = s.sub
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.OnTransition(t)
	}
}
