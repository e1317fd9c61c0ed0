package reload

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/infodisplay/config"
)

type stamp struct {
	modTime time.Time
	size    int64
}

// Watcher remembers the configuration files of the running service and
// reports which of them were modified or removed since the last snapshot.
type Watcher struct {
	mu    sync.Mutex
	files map[string]stamp
}

// NewWatcher snapshots the sources of cfg plus any extra paths.
func NewWatcher(cfg *config.Config, extra ...string) *Watcher {
	w := &Watcher{}
	w.Update(cfg, extra...)
	return w
}

// Update replaces the tracked set. Missing files and directories are skipped.
func (w *Watcher) Update(cfg *config.Config, extra ...string) {
	if w == nil {
		return
	}
	paths := append(config.SourceFiles(cfg), extra...)
	files := make(map[string]stamp, len(paths))
	for _, path := range uniquePaths(paths) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files[path] = stamp{modTime: info.ModTime(), size: info.Size()}
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
}

// Files returns the tracked paths in sorted order.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for path := range w.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Check reports the files that changed since the last snapshot.
func (w *Watcher) Check() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var changed []string
	for path, prev := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed = append(changed, path)
			continue
		}
		if info.ModTime().After(prev.modTime) || info.Size() != prev.size {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// Poll calls fn with the changed files every interval until ctx is done.
func (w *Watcher) Poll(ctx context.Context, interval time.Duration, fn func(changed []string)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changed := w.Check(); len(changed) > 0 {
				fn(changed)
			}
		}
	}
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
