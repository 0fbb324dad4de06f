package survey

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nixlim/fieldwatch/internal/logging"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads a Catalog whenever its backing YAML file changes. Reload
// failures keep the previous catalog contents.
type Watcher struct {
	path    string
	catalog *Catalog
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	onReload func(n int)
}

// NewWatcher watches the directory containing path. The directory is watched
// rather than the file so editors that replace the file atomically still
// trigger reloads.
func NewWatcher(path string, catalog *Catalog) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:    path,
		catalog: catalog,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked with the survey count after each
// successful reload.
func (w *Watcher) OnReload(fn func(n int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	_ = w.watcher.Close()
	if running {
		<-w.done
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	target := filepath.Clean(w.path)
	var timer *time.Timer
	var timerC <-chan time.Time

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
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Str("path", w.path).Msg("catalog watcher error")

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	surveys, err := readCatalogFile(w.path)
	if err != nil {
		logging.Warn().Err(err).Str("path", w.path).Msg("catalog reload failed, keeping previous catalog")
		return
	}
	w.catalog.Replace(surveys)
	logging.Info().Int("surveys", len(surveys)).Str("path", w.path).Msg("catalog reloaded")

	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(len(surveys))
	}
}
