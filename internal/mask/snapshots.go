package mask

import "time"

// Snapshot is an immutable copy of the mask buffer.
type Snapshot struct {
	Pix   []byte
	Taken time.Time
}

// snapshotStack is a linear undo list. index points at the snapshot that
// matches the live buffer; entries after it are the redo tail.
type snapshotStack struct {
	items []Snapshot
	index int
	max   int
}

func (s *snapshotStack) push(snap Snapshot) {
	s.items = append(s.items[:s.index+1], snap)
	if over := len(s.items) - s.max; over > 0 {
		s.items = append([]Snapshot(nil), s.items[over:]...)
	}
	s.index = len(s.items) - 1
}

func (s *snapshotStack) undo() (Snapshot, bool) {
	if s.index <= 0 {
		return Snapshot{}, false
	}
	s.index--
	return s.items[s.index], true
}

func (s *snapshotStack) redo() (Snapshot, bool) {
	if s.index >= len(s.items)-1 {
		return Snapshot{}, false
	}
	s.index++
	return s.items[s.index], true
}
