package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"manglint/internal/config"
	"manglint/internal/runner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu   sync.Mutex
	runs []*runner.RunResult
}

func (c *collector) add(res *runner.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, res)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherRunsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.mg")
	if err := os.WriteFile(path, []byte("seed(/a).\nuse(X) :- seed(X).\nsink(X) :- use(X).\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var c collector
	r := runner.New(config.DefaultAnalysisConfig(), nil)
	w, err := New(r, []string{path}, 100*time.Millisecond, c.add, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Initial run fires synchronously inside Start.
	if c.count() != 1 {
		t.Fatalf("initial runs = %d, want 1", c.count())
	}

	if err := os.WriteFile(path, []byte("seed(/a).\nseed(/b).\nuse(X) :- seed(X).\nsink(X) :- use(X).\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 5*time.Second, func() bool { return c.count() >= 2 }) {
		t.Fatalf("no re-run after change; stats: %+v", w.Stats())
	}

	stats := w.Stats()
	if stats.Events == 0 {
		t.Error("no events recorded")
	}
	if stats.RunsTriggered < 2 {
		t.Errorf("runs triggered = %d, want at least 2", stats.RunsTriggered)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "burst.mg")
	if err := os.WriteFile(path, []byte("a(/1).\nb(X) :- a(X).\nc(X) :- b(X).\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var c collector
	r := runner.New(config.DefaultAnalysisConfig(), nil)
	w, err := New(r, []string{path}, 250*time.Millisecond, c.add, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a(/1).\nb(X) :- a(X).\nc(X) :- b(X).\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	if !waitFor(t, 5*time.Second, func() bool { return c.count() >= 2 }) {
		t.Fatalf("burst produced no re-run; stats: %+v", w.Stats())
	}
	// Give any stragglers a moment, then confirm the burst collapsed.
	time.Sleep(600 * time.Millisecond)
	if got := c.count(); got > 3 {
		t.Errorf("burst of 5 writes triggered %d runs, want a debounced handful", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stop.mg")
	if err := os.WriteFile(path, []byte("x(/1).\ny(X) :- x(X).\nz(X) :- y(X).\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := runner.New(config.DefaultAnalysisConfig(), nil)
	w, err := New(r, []string{path}, 100*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}
