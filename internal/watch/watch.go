// Package watch re-runs analysis whenever a watched source file
// changes, with debouncing so rapid saves trigger one run.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"manglint/internal/runner"
)

// Stats tracks watcher activity for debugging and tests.
type Stats struct {
	Events        int
	RunsTriggered int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher owns one analysis file set and re-runs it on change.
type Watcher struct {
	runner   *runner.Runner
	files    []string
	fileSet  map[string]bool
	debounce time.Duration
	onResult func(*runner.RunResult)
	log      *zap.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	pending time.Time
	stats   Stats
}

// New builds a watcher over the given files. onResult receives every
// completed run, including the initial one Start performs.
func New(r *runner.Runner, files []string, debounce time.Duration, onResult func(*runner.RunResult), log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err == nil {
			f = abs
		}
		fileSet[f] = true
	}
	return &Watcher{
		runner:   r,
		files:    files,
		fileSet:  fileSet,
		debounce: debounce,
		onResult: onResult,
		log:      log,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the initial analysis, registers directory watches and
// launches the event loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch parent directories: editors replace files on save, and a
	// directory watch survives the rename.
	dirs := map[string]bool{}
	for f := range w.fileSet {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.log.Warn("watch add failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	w.rerun(ctx)
	go w.loop(ctx)
	return nil
}

// Stop halts the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		w.log.Warn("watcher close", zap.Error(err))
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-tick.C:
			if w.debounceExpired() {
				w.rerun(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	name := ev.Name
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	if !w.fileSet[name] && !strings.HasSuffix(name, ".mg") {
		return
	}
	w.log.Debug("source changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = ev.Name
	w.stats.LastEventTime = time.Now()
	w.pending = time.Now()
	w.mu.Unlock()
}

// debounceExpired reports and clears a pending change that has settled
// past the debounce window.
func (w *Watcher) debounceExpired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}

func (w *Watcher) rerun(ctx context.Context) {
	res, err := w.runner.Run(ctx, w.files)
	if err != nil {
		w.log.Warn("analysis run failed", zap.Error(err))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.stats.RunsTriggered++
	w.mu.Unlock()
	if w.onResult != nil {
		w.onResult(res)
	}
}
