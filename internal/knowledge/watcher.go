package knowledge

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vitalis/internal/logging"
)

// TableWatcher watches the knowledge tables file for edits and rebuilds the
// snapshot when it changes. Running workflows keep the snapshot they were
// handed; only subsequent runs see the reload.
type TableWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	tablesPath  string
	current     *Snapshot
	onReload    func(*Snapshot)
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewTableWatcher creates a watcher for the given tables file. The initial
// snapshot must already be loaded; onReload (optional) is invoked with every
// successfully rebuilt snapshot.
func NewTableWatcher(tablesPath string, initial *Snapshot, onReload func(*Snapshot)) (*TableWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &TableWatcher{
		watcher:     watcher,
		tablesPath:  tablesPath,
		current:     initial,
		onReload:    onReload,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine.
func (w *TableWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// fsnotify watches directories more reliably than single files
	// (editors replace files on save).
	if err := w.watcher.Add(filepath.Dir(w.tablesPath)); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

func (w *TableWatcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	// Trailing-edge debounce: every matching event resets the timer, and the
	// reload runs once the burst settles, so the final write of a rapid save
	// sequence is the one that gets loaded.
	debounce := time.NewTimer(w.debounceDur)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return
		case <-w.stopCh:
			debounce.Stop()
			return
		case <-debounce.C:
			pending = false
			w.reload()
		case event, ok := <-w.watcher.Events:
			if !ok {
				debounce.Stop()
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.tablesPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(w.debounceDur)
			pending = true
		case err, ok := <-w.watcher.Errors:
			if !ok {
				debounce.Stop()
				return
			}
			logging.KnowledgeWarn("TableWatcher: %v", err)
		}
	}
}

func (w *TableWatcher) reload() {
	snap, err := LoadSnapshotFile(w.tablesPath)
	if err != nil {
		// Keep serving the last good snapshot.
		logging.KnowledgeWarn("TableWatcher: reload failed, keeping previous snapshot: %v", err)
		return
	}

	w.mu.Lock()
	w.current = snap
	onReload := w.onReload
	w.mu.Unlock()

	logging.Knowledge("TableWatcher: reloaded %s", w.tablesPath)
	if onReload != nil {
		onReload(snap)
	}
}

// Snapshot returns the most recently loaded snapshot.
func (w *TableWatcher) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *TableWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}
