// Package watcher reports content changes to the run's input artifacts.
package watcher

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is an input file whose content differs from the last one seen.
type Change struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher monitors a fixed set of files for content changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	files     map[string]bool
	debounce  time.Duration

	// pending: path -> time of last write event
	pending map[string]time.Time
	// hashes: path -> content hash of the last reported (or initial) version
	hashes  map[string][32]byte
	stateMu sync.Mutex

	changes chan Change
	errors  chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for the given files. A file is reported once no write
// has touched it for the debounce interval.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	files := make(map[string]bool, len(paths))
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !files[a] {
			files[a] = true
			abs = append(abs, a)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		paths:     abs,
		files:     files,
		debounce:  debounce,
		pending:   make(map[string]time.Time),
		hashes:    make(map[string][32]byte),
		changes:   make(chan Change, 16),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Changes returns the channel of content changes.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start records the current content of every file and begins watching.
// Files that do not exist yet are reported once they are created.
func (w *Watcher) Start() error {
	dirs := make(map[string]bool)
	for _, path := range w.paths {
		dir := filepath.Dir(path)
		if !dirs[dir] {
			if err := w.fsWatcher.Add(dir); err != nil {
				return err
			}
			dirs[dir] = true
		}

		if hash, _, err := HashFile(path); err == nil {
			w.stateMu.Lock()
			w.hashes[path] = hash
			w.stateMu.Unlock()
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.changes)
	close(w.errors)
	return w.fsWatcher.Close()
}

// eventLoop handles fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// Only track writes and creates of watched files
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.files[path] {
				continue
			}

			w.stateMu.Lock()
			w.pending[path] = time.Now()
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// debounceLoop checks for stable files and reports changed content.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

type stableFile struct {
	path    string
	lastMod time.Time
}

// checkStableFiles hashes files that have not been written for the debounce
// interval. The lock is released during file I/O.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.debounce)

	var stable []stableFile
	w.stateMu.Lock()
	for path, lastMod := range w.pending {
		if lastMod.Before(threshold) {
			stable = append(stable, stableFile{path: path, lastMod: lastMod})
		}
	}
	w.stateMu.Unlock()

	for _, sf := range stable {
		hash, size, err := HashFile(sf.path)

		w.stateMu.Lock()
		if w.pending[sf.path] != sf.lastMod {
			// Written again while hashing; wait for it to settle
			w.stateMu.Unlock()
			continue
		}
		if err != nil {
			delete(w.pending, sf.path)
			w.stateMu.Unlock()
			select {
			case w.errors <- err:
			default:
			}
			continue
		}
		if prev, ok := w.hashes[sf.path]; ok && prev == hash {
			delete(w.pending, sf.path)
			w.stateMu.Unlock()
			continue
		}

		select {
		case w.changes <- Change{Path: sf.path, Hash: hash, Size: size, Timestamp: now}:
			delete(w.pending, sf.path)
			w.hashes[sf.path] = hash
		default:
			// Channel full, try again on the next tick
		}
		w.stateMu.Unlock()
	}
}

// HashFile computes the SHA-256 hash of a file using streaming.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the absolute paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return len(w.pending)
}
