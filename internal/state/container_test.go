package state

import (
	"reflect"
	"sync"
	"testing"
)

type counter struct {
	N    int
	Tags []string
}

func TestContainer_UpdateNotifiesInOrder(t *testing.T) {
	c := New(counter{})
	var order []string
	var got []Transition[counter]

	c.Subscribe(SubscriberFunc[counter](func(tr Transition[counter]) {
		order = append(order, "first")
		got = append(got, tr)
	}))
	c.Subscribe(SubscriberFunc[counter](func(Transition[counter]) {
		order = append(order, "second")
	}))

	c.Update("inc", "increment", func(s counter) counter {
		s.N++
		return s
	})

	if c.Get().N != 1 {
		t.Errorf("value = %d, want 1", c.Get().N)
	}
	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("order = %v", order)
	}
	if len(got) != 1 || got[0].Action != "inc" || got[0].Description != "increment" ||
		got[0].Prev.N != 0 || got[0].Next.N != 1 {
		t.Errorf("transition = %+v", got)
	}
}

func TestContainer_SetAndMetadata(t *testing.T) {
	c := New(counter{N: 3})
	var last Transition[counter]
	c.Subscribe(SubscriberFunc[counter](func(tr Transition[counter]) { last = tr }))

	c.Set("reset", counter{})
	if last.Action != "reset" || last.Prev.N != 3 || last.Next.N != 0 {
		t.Errorf("transition = %+v", last)
	}

	c.UpdateWithMetadata("tag", "", map[string]any{"by": "test"}, func(s counter) counter {
		s.Tags = append(s.Tags, "x")
		return s
	})
	if last.Metadata["by"] != "test" {
		t.Errorf("metadata = %v", last.Metadata)
	}
}

func TestContainer_Unsubscribe(t *testing.T) {
	c := New(0)
	calls := 0
	unsubscribe := c.Subscribe(SubscriberFunc[int](func(Transition[int]) { calls++ }))
	c.Set("a", 1)
	unsubscribe()
	unsubscribe()
	c.Set("b", 2)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestContainer_ConcurrentUpdates(t *testing.T) {
	c := New(0)
	var mu sync.Mutex
	seen := 0
	c.Subscribe(SubscriberFunc[int](func(tr Transition[int]) {
		mu.Lock()
		defer mu.Unlock()
		if tr.Next != tr.Prev+1 {
			t.Errorf("non-sequential transition %d -> %d", tr.Prev, tr.Next)
		}
		seen++
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Update("inc", "", func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	if c.Get() != 50 || seen != 50 {
		t.Errorf("value = %d, seen = %d", c.Get(), seen)
	}
}
