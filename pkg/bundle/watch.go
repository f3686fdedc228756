package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StalenessWatcher tracks the content hash of each spec's tasks.md and
// reports whether it has changed since the last verification pass,
// generalizing the teacher's debounced fsnotify reindex trigger into a
// simple staleness flag the router's decision table can consult.
type StalenessWatcher struct {
	mgr     *Manager
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	lastVerified map[string]string // specID -> tasks.md hash at last verification
	stopCh      chan struct{}
}

// NewStalenessWatcher starts watching mgr's governed tree for tasks.md changes.
func NewStalenessWatcher(mgr *Manager) (*StalenessWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("bundle: creating watcher: %w", err)
	}
	specsRoot := filepath.Join(mgr.repoRoot, string(ScopeGoverned))
	if err := fw.Add(specsRoot); err != nil {
		// specs/ may not exist yet on a fresh checkout; that is not fatal.
		_ = err
	}

	w := &StalenessWatcher{mgr: mgr, watcher: fw, lastVerified: make(map[string]string), stopCh: make(chan struct{})}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *StalenessWatcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *StalenessWatcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Any event under specs/** may touch a tasks.md; staleness is
			// recomputed on demand by IsStale rather than eagerly here.
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// MarkVerified records the current tasks.md hash as the
// last-verified baseline for specID.
func (w *StalenessWatcher) MarkVerified(category, specID string) error {
	hash, err := w.tasksHash(category, specID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.lastVerified[specID] = hash
	w.mu.Unlock()
	return nil
}

// IsStale reports whether tasks.md has changed since the last
// MarkVerified call for specID (or has never been verified).
func (w *StalenessWatcher) IsStale(category, specID string) (bool, error) {
	hash, err := w.tasksHash(category, specID)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastVerified[specID]
	return !ok || last != hash, nil
}

func (w *StalenessWatcher) tasksHash(category, specID string) (string, error) {
	path := filepath.Join(w.mgr.BundlePath(category, specID), "tasks.md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("bundle: hashing %q: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
