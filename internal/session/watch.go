package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches bursts of filesystem events into one re-discovery.
const debounceWindow = 250 * time.Millisecond

// Watch runs a recursive fsnotify watcher over the session's base directory
// and re-runs Search with the current pattern whenever files change, until
// ctx is cancelled. State mutation happens on this goroutine; mu is held
// around every re-search and its onSearch callback so callers that access
// the session from another goroutine can pass the same lock. A nil mu is
// allowed when the caller does no concurrent session access.
func Watch(ctx context.Context, s *Session, mu sync.Locker, onSearch func(error)) error {
	if mu == nil {
		mu = nopLocker{}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch every subdirectory; fsnotify is not recursive by itself.
	if err := filepath.WalkDir(s.BaseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			// New directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			mu.Lock()
			if s.SearchPattern == "" {
				mu.Unlock()
				continue
			}
			err := s.Search(s.SearchPattern)
			if onSearch != nil {
				onSearch(err)
			}
			mu.Unlock()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; keep watching.
		}
	}
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
