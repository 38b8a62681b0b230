package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a module directory. Bursts of events (an
// editor writing a temp file and renaming it) collapse into one callback
// after the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching dir. onChange runs on the watcher's own
// goroutine.
func NewWatcher(dir string, debounce time.Duration, logger *slog.Logger, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create module watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w := &Watcher{
		dir:      abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fsw,
		closeCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if relevant(ev) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("module watcher error", "dir", w.dir, "error", err)
		}
	}
}

// relevant filters out chmod-only events and editor swap files.
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	closed := w.closed
	w.timer = nil
	w.mu.Unlock()
	if closed {
		return
	}
	w.logger.Debug("module directory changed", "dir", w.dir)
	w.onChange()
}

// Close stops the watcher. Pending callbacks are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	return w.watcher.Close()
}
