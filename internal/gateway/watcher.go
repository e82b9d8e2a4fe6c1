package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Watcher polls a directory on a cron schedule and ingests snapshot files
// that are new or modified since the last pass.
type Watcher struct {
	dir    string
	expr   string
	cron   *cron.Cron
	ingest func(ctx context.Context, path string) error

	mu   sync.Mutex
	seen map[string]time.Time // path → mod time at last ingest
}

func newWatcher(dir, expr string, ingest func(context.Context, string) error) *Watcher {
	return &Watcher{
		dir:    dir,
		expr:   expr,
		cron:   cron.New(),
		ingest: ingest,
		seen:   make(map[string]time.Time),
	}
}

// Dir returns the watched directory, or "" when disabled.
func (w *Watcher) Dir() string { return w.dir }

// Start registers the poll with cron. A watcher without a directory is a
// no-op.
func (w *Watcher) Start(ctx context.Context) error {
	if w.dir == "" {
		return nil
	}
	if w.expr == "" {
		w.expr = "@every 1m"
	}
	if _, err := w.cron.AddFunc(w.expr, func() {
		if _, err := w.Scan(ctx); err != nil {
			slog.Warn("watcher: scan failed", "dir", w.dir, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", w.expr, err)
	}
	w.cron.Start()
	slog.Info("watcher started", "dir", w.dir, "schedule", w.expr)
	return nil
}

// Stop halts the cron runner and waits for a running scan.
func (w *Watcher) Stop() { <-w.cron.Stop().Done() }

// Scan ingests every snapshot file changed since the previous scan and
// returns the paths it ingested. A failing file is logged and retried on the
// next pass.
func (w *Watcher) Scan(ctx context.Context) ([]string, error) {
	if w.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	w.mu.Lock()
	defer w.mu.Unlock()
	var done []string
	for _, e := range entries {
		if e.IsDir() || !isSnapshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if last, ok := w.seen[path]; ok && !info.ModTime().After(last) {
			continue
		}
		if err := w.ingest(ctx, path); err != nil {
			slog.Warn("watcher: ingest failed", "file", path, "error", err)
			continue
		}
		w.seen[path] = info.ModTime()
		done = append(done, path)
	}
	return done, nil
}

func isSnapshotFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
