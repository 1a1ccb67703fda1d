package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads a Provider when its file changes and reports the new packs.
type Watcher struct {
	mu       sync.Mutex
	provider *Provider
	watcher  *fsnotify.Watcher
	onChange func([]*models.Pack)
	debounce time.Duration
	pending  time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher calling onChange after each successful reload.
func (p *Provider) NewWatcher(onChange func([]*models.Pack)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		provider: p,
		watcher:  fw,
		onChange: onChange,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches the file's directory, since editors often replace the file
// rather than writing it in place. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.provider.Path())
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	slog.Info("Watcher.Start: watching packs file", "path", w.provider.Path())
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		slog.Error("Watcher.Stop: close failed", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	target := filepath.Clean(w.provider.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Watcher.run: watch error", "error", err)
		case <-ticker.C:
			w.reloadIfSettled()
		}
	}
}

func (w *Watcher) reloadIfSettled() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	packs, err := w.provider.Reload()
	if err != nil {
		slog.Warn("Watcher.reload: keeping previous packs", "path", w.provider.Path(), "error", err)
		return
	}
	if w.onChange != nil {
		w.onChange(packs)
	}
}
