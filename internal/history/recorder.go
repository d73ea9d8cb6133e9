package history

import "github.com/fpang/genai-kitchen/internal/state"

// Recorder turns container transitions into history entries.
type Recorder[S any] struct {
	store *Store[S]
}

// NewRecorder returns a subscriber that records into store.
func NewRecorder[S any](store *Store[S]) *Recorder[S] {
	return &Recorder[S]{store: store}
}

// OnTransition implements state.Subscriber.
func (r *Recorder[S]) OnTransition(t state.Transition[S]) {
	r.store.AddEntry(t.Action, t.Description, t.Prev, t.Next, t.Metadata)
}

// UndoInto steps the store back and restores the undone entry's previous
// state into c under ActionUndo.
func UndoInto[S any](s *Store[S], c *state.Container[S]) bool {
	e, ok := s.UndoEntry()
	if !ok {
		return false
	}
	c.Set(ActionUndo, e.Previous)
	return true
}

// RedoInto steps the store forward and restores the redone entry's next
// state into c under ActionRedo.
func RedoInto[S any](s *Store[S], c *state.Container[S]) bool {
	e, ok := s.RedoEntry()
	if !ok {
		return false
	}
	c.Set(ActionRedo, e.Next)
	return true
}
