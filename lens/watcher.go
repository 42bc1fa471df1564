package lens

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle
const DefaultReloadDelay = 300 * time.Millisecond

// Watcher reloads the dataset when its file changes on disk
type Watcher struct {
	path     string
	delay    time.Duration
	watcher  *fsnotify.Watcher
	onReload func(*Table)
}

// NewWatcher watches the directory holding path, so that editors which replace
// the file by rename are still noticed
func NewWatcher(path string, onReload func(*Table)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed creating file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		delay:    DefaultReloadDelay,
		watcher:  fw,
		onReload: onReload,
	}, nil
}

// Run processes events until ctx is done. Bursts of writes collapse into one
// reload; a file that fails to parse keeps the previous table in place.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[WATCH] Watcher error: %v", err)
		case <-fire:
			fire = nil
			t, err := LoadTable(w.path)
			if err != nil {
				log.Printf("[WATCH] Reload of %s failed, keeping previous data: %v", w.path, err)
				continue
			}
			log.Printf("[WATCH] Reloaded %s (%d rows)", w.path, t.Len())
			w.onReload(t)
		}
	}
}
