package lens

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// Listener receives the summary after every committed mutation
type Listener func(Summary)

// StateTracker serializes access to a Session for the HTTP handlers and the file
// watcher. Each mutation runs to completion under the lock; listeners are called
// after the lock is released.
type StateTracker struct {
	mu        sync.RWMutex
	session   *Session
	listeners []Listener
	updated   time.Time
	cachePath string // path to the session snapshot file; empty disables persistence
}

// NewStateTracker creates a tracker around s
func NewStateTracker(s *Session) *StateTracker {
	return &StateTracker{session: s, updated: time.Now()}
}

// NewStateTrackerWithCache creates a tracker that persists the session to
// cachePath. If the file exists and was written for the same dataset, the
// snapshot is applied on creation.
func NewStateTrackerWithCache(s *Session, cachePath string) *StateTracker {
	st := NewStateTracker(s)
	st.cachePath = cachePath
	if cachePath != "" {
		if snap, err := LoadSnapshot(cachePath); err == nil {
			if err := s.Restore(snap); errors.Is(err, ErrSnapshotSource) {
				log.Printf("[SESSION] Skipping snapshot %s: it was saved for %q", cachePath, snap.Source)
			} else if err != nil {
				log.Printf("[SESSION] Ignoring snapshot %s: %v", cachePath, err)
			} else {
				log.Printf("[SESSION] Restored %d removals from %s", len(snap.Removed), cachePath)
			}
		}
	}
	return st
}

// Subscribe registers a listener for committed mutations
func (st *StateTracker) Subscribe(l Listener) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.listeners = append(st.listeners, l)
}

// Read runs fn with shared access to the session. fn must not mutate it.
func (st *StateTracker) Read(fn func(s *Session)) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fn(st.session)
}

// Do runs fn with exclusive access to the session without saving or notifying.
// It is meant for transient pointer state such as an in-progress drag.
func (st *StateTracker) Do(fn func(s *Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.session)
}

// Update runs fn with exclusive access to the session. When fn succeeds the
// snapshot is saved and listeners are notified with the new summary.
func (st *StateTracker) Update(fn func(s *Session) error) error {
	st.mu.Lock()
	if err := fn(st.session); err != nil {
		st.mu.Unlock()
		return err
	}
	st.updated = time.Now()
	summary := st.session.Summary()
	snap := st.session.Snapshot()
	listeners := append([]Listener(nil), st.listeners...)
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveSnapshot(snap, cachePath); err != nil {
			log.Printf("warning: failed to save session snapshot: %v", err)
		}
	}
	for _, l := range listeners {
		l(summary)
	}
	return nil
}

// SetTable installs a reloaded dataset
func (st *StateTracker) SetTable(t *Table) {
	_ = st.Update(func(s *Session) error {
		s.SetTable(t)
		return nil
	})
}

// Summary returns the current summary
func (st *StateTracker) Summary() Summary {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.session.Summary()
}

// HasData returns true once a dataset is loaded
func (st *StateTracker) HasData() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.session.Table() != nil
}

// LastUpdated returns the time of the last committed mutation
func (st *StateTracker) LastUpdated() time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.updated
}

// ErrSnapshotSource is returned by Restore when a snapshot belongs to another dataset
var ErrSnapshotSource = errors.New("snapshot was saved for a different dataset")

// Snapshot is the persisted part of a session
type Snapshot struct {
	Source  string       `json:"source"`
	Config  FilterConfig `json:"config"`
	Scope   string       `json:"scope"`
	Focus   string       `json:"focus,omitempty"`
	Removed []string     `json:"removed"`
	Bounds  *orb.Bound   `json:"bounds,omitempty"`
	SavedAt time.Time    `json:"savedAt"`
}

// Snapshot captures the dataset source, configuration, scope, focus, manual
// removals and viewport
func (s *Session) Snapshot() Snapshot {
	keys := s.manual.Sorted()
	removed := make([]string, len(keys))
	for i, k := range keys {
		removed[i] = k.String()
	}
	snap := Snapshot{
		Config:  s.config,
		Scope:   s.scope.String(),
		Focus:   s.focus,
		Removed: removed,
		SavedAt: time.Now(),
	}
	if s.table != nil {
		snap.Source = s.table.Source
	}
	if !s.viewport.Empty() {
		b := s.viewport.Bounds
		snap.Bounds = &b
	}
	return snap
}

// Restore applies a snapshot. The undo stack starts empty. A snapshot whose
// source differs from the loaded table's is rejected with ErrSnapshotSource and
// leaves the session unchanged.
func (s *Session) Restore(snap Snapshot) error {
	var source string
	if s.table != nil {
		source = s.table.Source
	}
	if snap.Source != source {
		return ErrSnapshotSource
	}
	if err := snap.Config.Validate(); err != nil {
		return err
	}
	manual := make(KeySet, len(snap.Removed))
	for _, raw := range snap.Removed {
		k, err := ParsePointKey(raw)
		if err != nil {
			return err
		}
		manual.Add(k)
	}
	s.config = snap.Config
	s.scope = ParseScope(snap.Scope)
	s.focus = snap.Focus
	s.manual = manual
	s.undo.Clear()
	s.selector.Clear()
	s.license = LicenseRemoved(s.table, s.config)
	s.Refresh()
	s.FitToData()
	if b := snap.Bounds; b != nil && b.Max.X() > b.Min.X() && b.Max.Y() > b.Min.Y() {
		s.viewport.Bounds = *b
	}
	return nil
}

// SaveSnapshot writes a session snapshot to disk as JSON.
func SaveSnapshot(snap Snapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a session snapshot from a JSON file on disk.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read session snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return snap, nil
}
