// Package history keeps a bounded, linear log of application state changes
// with an undo/redo cursor. The store only records; callers apply an entry's
// Previous or Next state back to their own state container.
package history

import (
	"cmp"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxSize is the number of entries retained.
const DefaultMaxSize = 100

// Reserved actions used when an entry is applied back to state. They are
// never recorded.
const (
	ActionUndo = "history/undo"
	ActionRedo = "history/redo"
)

const exportVersion = 1

// Entry is one recorded state change.
type Entry[S any] struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	Description string         `json:"description,omitempty"`
	Previous    S              `json:"previous"`
	Next        S              `json:"next"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ActionCount is the number of times an action was recorded.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Stats summarises store usage.
type Stats struct {
	TotalEntries         int           `json:"totalEntries"`
	CurrentIndex         int           `json:"currentIndex"`
	TopActions           []ActionCount `json:"topActions"`
	UndoCount            int           `json:"undoCount"`
	AverageUndosPerEntry float64       `json:"averageUndosPerEntry"`
}

// Store is a bounded undo/redo log. It is safe for concurrent use.
type Store[S any] struct {
	mu           sync.Mutex
	entries      []Entry[S]
	index        int // last applied entry, -1 when none
	maxSize      int
	enabled      bool
	excluded     map[string]bool
	actionCounts map[string]int
	undoCount    int
	now          func() time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	maxSize  int
	excluded []string
	now      func() time.Time
}

// WithMaxSize bounds the number of retained entries (minimum 1).
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = max(n, 1) }
}

// WithExcluded lists actions that are never recorded.
func WithExcluded(actions ...string) Option {
	return func(o *options) { o.excluded = append(o.excluded, actions...) }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an empty, enabled store.
func New[S any](opts ...Option) *Store[S] {
	o := options{maxSize: DefaultMaxSize, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store[S]{
		index:        -1,
		maxSize:      o.maxSize,
		enabled:      true,
		excluded:     map[string]bool{ActionUndo: true, ActionRedo: true},
		actionCounts: make(map[string]int),
		now:          o.now,
	}
	for _, a := range o.excluded {
		s.excluded[a] = true
	}
	return s
}

// AddEntry records a change. Entries after the cursor are discarded and the
// oldest entry is dropped once the store is full. Excluded actions and
// changes made while disabled are ignored.
func (s *Store[S]) AddEntry(action, description string, prev, next S, meta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.excluded[action] {
		return
	}

	s.entries = append(s.entries[:s.index+1], Entry[S]{
		ID:          uuid.NewString(),
		Action:      action,
		Description: description,
		Previous:    prev,
		Next:        next,
		Timestamp:   s.now(),
		Metadata:    meta,
	})
	s.trimLocked()
	s.index = len(s.entries) - 1
	s.actionCounts[action]++
}

// Undo moves the cursor back one entry.
func (s *Store[S]) Undo() bool {
	_, ok := s.UndoEntry()
	return ok
}

// UndoEntry moves the cursor back and returns the entry that was undone.
// Callers restore its Previous state.
func (s *Store[S]) UndoEntry() (Entry[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return Entry[S]{}, false
	}
	e := s.entries[s.index]
	s.index--
	s.undoCount++
	return e, true
}

// Redo moves the cursor forward one entry.
func (s *Store[S]) Redo() bool {
	_, ok := s.RedoEntry()
	return ok
}

// RedoEntry moves the cursor forward and returns the entry that was redone.
// Callers restore its Next state.
func (s *Store[S]) RedoEntry() (Entry[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.entries)-1 {
		return Entry[S]{}, false
	}
	s.index++
	return s.entries[s.index], true
}

// Current returns the entry at the cursor.
func (s *Store[S]) Current() (Entry[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return Entry[S]{}, false
	}
	return s.entries[s.index], true
}

// GoToIndex moves the cursor to i. -1 means before the first entry.
func (s *Store[S]) GoToIndex(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < -1 || i >= len(s.entries) {
		return false
	}
	s.index = i
	return true
}

// GoToEntry moves the cursor to the entry with the given ID.
func (s *Store[S]) GoToEntry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.index = i
			return true
		}
	}
	return false
}

// CanUndo reports whether Undo would succeed.
func (s *Store[S]) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index >= 0
}

// CanRedo reports whether Redo would succeed.
func (s *Store[S]) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index < len(s.entries)-1
}

// Index returns the cursor position.
func (s *Store[S]) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Entries returns a copy of the log, oldest first.
func (s *Store[S]) Entries() []Entry[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Enabled reports whether new entries are recorded.
func (s *Store[S]) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled turns recording on or off.
func (s *Store[S]) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// SetMaxSize changes the capacity, dropping the oldest entries if needed.
func (s *Store[S]) SetMaxSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSize = max(n, 1)
	s.trimLocked()
}

// Clear removes all entries and resets the counters.
func (s *Store[S]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.index = -1
	s.undoCount = 0
	clear(s.actionCounts)
}

// Stats reports totals and the topN most recorded actions.
func (s *Store[S]) Stats(topN int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make([]ActionCount, 0, len(s.actionCounts))
	for a, n := range s.actionCounts {
		counts = append(counts, ActionCount{Action: a, Count: n})
	}
	slices.SortFunc(counts, func(a, b ActionCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Action, b.Action)
	})
	if topN >= 0 && len(counts) > topN {
		counts = counts[:topN]
	}

	st := Stats{
		TotalEntries: len(s.entries),
		CurrentIndex: s.index,
		TopActions:   counts,
		UndoCount:    s.undoCount,
	}
	if len(s.entries) > 0 {
		st.AverageUndosPerEntry = float64(s.undoCount) / float64(len(s.entries))
	}
	return st
}

type exportDoc[S any] struct {
	Version      int            `json:"version"`
	Entries      []Entry[S]     `json:"entries"`
	CurrentIndex int            `json:"currentIndex"`
	ActionCounts map[string]int `json:"actionCounts"`
	UndoCount    int            `json:"undoCount"`
	ExportedAt   time.Time      `json:"exportedAt"`
}

// Export serialises the log, cursor and counters as JSON.
func (s *Store[S]) Export() ([]byte, error) {
	s.mu.Lock()
	doc := exportDoc[S]{
		Version:      exportVersion,
		Entries:      slices.Clone(s.entries),
		CurrentIndex: s.index,
		ActionCounts: maps.Clone(s.actionCounts),
		UndoCount:    s.undoCount,
		ExportedAt:   s.now(),
	}
	s.mu.Unlock()

	if doc.Entries == nil {
		doc.Entries = []Entry[S]{}
	}
	return json.Marshal(doc)
}

// Import replaces the store contents with an Export document. It returns
// false and leaves the store unchanged if data is malformed, the cursor is
// out of range or a counter is negative.
func (s *Store[S]) Import(data []byte) bool {
	var doc exportDoc[S]
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Debug().Err(err).Msg("Rejected history import")
		return false
	}
	if doc.Entries == nil || doc.CurrentIndex < -1 || doc.CurrentIndex >= len(doc.Entries) || doc.UndoCount < 0 {
		log.Debug().Int("currentIndex", doc.CurrentIndex).Int("entries", len(doc.Entries)).Msg("Rejected history import")
		return false
	}
	for action, n := range doc.ActionCounts {
		if n < 0 {
			log.Debug().Str("action", action).Int("count", n).Msg("Rejected history import")
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = doc.Entries
	s.index = doc.CurrentIndex
	s.undoCount = doc.UndoCount
	s.actionCounts = doc.ActionCounts
	if s.actionCounts == nil {
		s.actionCounts = make(map[string]int)
	}
	s.trimLocked()
	return true
}

// trimLocked drops the oldest entries above maxSize and shifts the cursor.
func (s *Store[S]) trimLocked() {
	drop := len(s.entries) - s.maxSize
	if drop <= 0 {
		return
	}
	s.entries = slices.Clone(s.entries[drop:])
	s.index = max(s.index-drop, -1)
	log.Debug().Int("dropped", drop).Int("maxSize", s.maxSize).Msg("Trimmed history")
}
