package lens

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockListener records summaries delivered to a StateTracker listener
type mockListener struct {
	mock.Mock
}

func (m *mockListener) OnSummary(s Summary) {
	m.Called(s)
}

func visibleIs(n int) interface{} {
	return mock.MatchedBy(func(s Summary) bool { return s.Visible == n })
}

// ---------------------------------------------------------------------------
// StateTracker
// ---------------------------------------------------------------------------

func TestNewStateTracker(t *testing.T) {
	st := NewStateTracker(newFixtureSession(t, basicCSV))
	assert.True(t, st.HasData())
	assert.Equal(t, 4, st.Summary().Visible)
	assert.WithinDuration(t, time.Now(), st.LastUpdated(), time.Minute)

	empty := NewStateTracker(NewSession(nil, DefaultFilterConfig(), ViewportConfig{}))
	assert.False(t, empty.HasData())
}

func TestStateTracker_UpdateNotifies(t *testing.T) {
	st := NewStateTracker(newFixtureSession(t, basicCSV))

	listener := &mockListener{}
	listener.On("OnSummary", visibleIs(3)).Once()
	st.Subscribe(listener.OnSummary)

	before := st.LastUpdated()
	time.Sleep(time.Millisecond)
	require.NoError(t, st.Update(func(s *Session) error {
		return s.SetChurnMode(ChurnExclude)
	}))
	assert.True(t, st.LastUpdated().After(before))

	// A failed update neither notifies nor bumps the timestamp
	stamp := st.LastUpdated()
	assert.Error(t, st.Update(func(s *Session) error {
		return s.SetChurnMode("never")
	}))
	assert.Equal(t, stamp, st.LastUpdated())

	listener.AssertExpectations(t)
	listener.AssertNumberOfCalls(t, "OnSummary", 1)
}

func TestStateTracker_DoIsSilent(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "session.json")
	st := NewStateTrackerWithCache(newFixtureSession(t, basicCSV), cache)

	listener := &mockListener{}
	st.Subscribe(listener.OnSummary)

	var dragging bool
	st.Do(func(s *Session) {
		dragging = s.Press(orb.Point{90, 8}, true, false)
	})
	assert.True(t, dragging)

	listener.AssertNotCalled(t, "OnSummary", mock.Anything)
	_, err := os.Stat(cache)
	assert.True(t, os.IsNotExist(err), "Do must not write a snapshot")

	st.Read(func(s *Session) {
		assert.Equal(t, SelectDragging, s.SelectState())
	})
}

func TestStateTracker_SetTable(t *testing.T) {
	st := NewStateTracker(NewSession(nil, DefaultFilterConfig(), ViewportConfig{}))
	listener := &mockListener{}
	listener.On("OnSummary", visibleIs(4)).Once()
	st.Subscribe(listener.OnSummary)

	st.SetTable(readFixture(t, basicCSV))
	assert.True(t, st.HasData())
	listener.AssertExpectations(t)
}

func TestStateTracker_ConcurrentAccess(t *testing.T) {
	st := NewStateTracker(newFixtureSession(t, basicCSV))
	modes := []ChurnMode{ChurnInclude, ChurnExclude, ChurnOnly}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = st.Update(func(s *Session) error {
				return s.SetChurnMode(modes[i%len(modes)])
			})
		}(i)
		go func() {
			defer wg.Done()
			st.Read(func(s *Session) { _ = len(s.View().Points) })
			_ = st.Summary()
		}()
	}
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func TestStateTracker_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "nested", "session.json")

	st := NewStateTrackerWithCache(newFixtureSession(t, basicCSV), cache)
	require.NoError(t, st.Update(func(s *Session) error {
		s.RightClick(orb.Point{100, 10})
		s.SetScope(Scope{Kind: ScopeSector, Sector: "Tech"})
		return s.SetChurnMode(ChurnExclude)
	}))

	snap, err := LoadSnapshot(cache)
	require.NoError(t, err)
	assert.Equal(t, "Tech", snap.Scope)
	assert.Equal(t, []string{"0|100|10"}, snap.Removed)

	// A fresh session over the same data picks the snapshot up
	restored := newFixtureSession(t, basicCSV)
	NewStateTrackerWithCache(restored, cache)
	assert.Equal(t, 1, restored.ManualRemoved().Len())
	assert.Equal(t, ChurnExclude, restored.Config().Churn)
	assert.Equal(t, "Tech", restored.Scope().String())
	assert.Equal(t, []string{"Dyno"}, customers(restored.View()))
	assert.Zero(t, restored.UndoDepth())
}

func TestStateTracker_SnapshotSource(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "session.json")

	saved := readFixture(t, basicCSV)
	saved.Source = "q1.csv"
	st := NewStateTrackerWithCache(NewSession(saved, DefaultFilterConfig(), ViewportConfig{}), cache)
	require.NoError(t, st.Update(func(s *Session) error {
		s.RightClick(orb.Point{100, 10})
		s.SetFocus("d")
		s.Pan(10, 1)
		return nil
	}))
	var want orb.Bound
	st.Read(func(s *Session) { want = s.Bounds() })

	snap, err := LoadSnapshot(cache)
	require.NoError(t, err)
	assert.Equal(t, "q1.csv", snap.Source)
	assert.Equal(t, "d", snap.Focus)
	require.NotNil(t, snap.Bounds)
	assert.Equal(t, want, *snap.Bounds)

	tests := []struct {
		name        string
		source      string
		wantRemoved int
		wantFocus   string
		wantBounds  bool
	}{
		{"same dataset", "q1.csv", 1, "d", true},
		{"other dataset", "q2.csv", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := readFixture(t, basicCSV)
			table.Source = tt.source
			s := NewSession(table, DefaultFilterConfig(), ViewportConfig{})
			fitted := s.Bounds()
			NewStateTrackerWithCache(s, cache)

			assert.Equal(t, tt.wantRemoved, s.ManualRemoved().Len())
			assert.Equal(t, tt.wantFocus, s.Focus())
			if tt.wantBounds {
				assert.Equal(t, want, s.Bounds())
			} else {
				assert.Equal(t, fitted, s.Bounds())
				assert.Len(t, s.View().Points, 4)
			}
		})
	}

	s := NewSession(readFixture(t, basicCSV), DefaultFilterConfig(), ViewportConfig{})
	assert.ErrorIs(t, s.Restore(snap), ErrSnapshotSource)
}

func TestSession_Restore(t *testing.T) {
	s := newFixtureSession(t, basicCSV)
	s.RightClick(orb.Point{100, 10})

	bad := s.Snapshot()
	bad.Config.Cohort = "9-9"
	assert.Error(t, s.Restore(bad))

	bad = s.Snapshot()
	bad.Removed = []string{"not a key"}
	assert.Error(t, s.Restore(bad))

	// Failed restores leave the session alone
	assert.Equal(t, 1, s.ManualRemoved().Len())
	assert.Equal(t, 1, s.UndoDepth())

	good := s.Snapshot()
	good.Removed = []string{AggregateKey("x").String()}
	require.NoError(t, s.Restore(good))
	assert.Zero(t, s.UndoDepth())
	assert.Len(t, s.View().Points, 4)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSnapshot(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadSnapshot(path)
	assert.Error(t, err)

	// A broken cache file is ignored on startup
	s := newFixtureSession(t, basicCSV)
	NewStateTrackerWithCache(s, path)
	assert.Len(t, s.View().Points, 4)
}
