package lens

// UndoEntry is one reversible user action. The concrete types are PointEntry,
// BatchEntry, SectorEntry and LimitEntry; each carries exactly what it needs to
// reverse itself.
type UndoEntry interface {
	Kind() string
	undoEntry()
}

// PointEntry records a single right-click removal
type PointEntry struct {
	Key PointKey
}

// BatchEntry records the deletion of an individual-scope selection
type BatchEntry struct {
	Keys []PointKey
}

// SectorEntry records the removal of whole sectors, expanded to individual keys
type SectorEntry struct {
	Keys []PointKey
}

// LimitEntry holds the configuration as it was before a settings save
type LimitEntry struct {
	Snapshot FilterConfig
}

func (PointEntry) Kind() string  { return "POINT" }
func (BatchEntry) Kind() string  { return "BATCH" }
func (SectorEntry) Kind() string { return "SECTOR" }
func (LimitEntry) Kind() string  { return "LIMIT" }

func (PointEntry) undoEntry()  {}
func (BatchEntry) undoEntry()  {}
func (SectorEntry) undoEntry() {}
func (LimitEntry) undoEntry()  {}

// UndoStack is a LIFO of undo entries. There is no redo: Pop discards the entry.
type UndoStack struct {
	entries []UndoEntry
}

// Push appends an entry
func (s *UndoStack) Push(e UndoEntry) {
	s.entries = append(s.entries, e)
}

// Pop removes and returns the newest entry
func (s *UndoStack) Pop() (UndoEntry, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries[len(s.entries)-1] = nil
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// Peek returns the newest entry without removing it
func (s *UndoStack) Peek() (UndoEntry, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1], true
}

// Len returns the number of entries
func (s *UndoStack) Len() int { return len(s.entries) }

// Kinds lists entry kinds oldest first
func (s *UndoStack) Kinds() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Kind()
	}
	return out
}

// Clear drops every entry
func (s *UndoStack) Clear() {
	s.entries = nil
}

// revertRemoval takes the keys an entry added back out of the manual set. Keys
// that are already gone are ignored.
func revertRemoval(manual KeySet, keys ...PointKey) {
	for _, k := range keys {
		manual.Remove(k)
	}
}
