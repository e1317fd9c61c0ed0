package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/infodisplay/config"
)

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	got := uniquePaths([]string{"", "/tmp/a", "/tmp/b", "/tmp/a", "/tmp/c", "/tmp/b"})
	require.Equal(t, []string{"/tmp/a", "/tmp/b", "/tmp/c"}, got)
}

func TestWatcherTracksSourceAndExtras(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	override := filepath.Join(dir, "indicators.yaml")
	writeFile(t, cfgFile, "box: {}")
	writeFile(t, override, "lights: {}")

	w := NewWatcher(&config.Config{Source: cfgFile}, override, filepath.Join(dir, "missing.yaml"), dir)
	require.Equal(t, []string{cfgFile, override}, w.Files())
	require.Empty(t, w.Check())
}

func TestWatcherCheckDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.yaml")
	fileB := filepath.Join(dir, "b.yaml")
	writeFile(t, fileA, "first")
	writeFile(t, fileB, "second")

	w := NewWatcher(&config.Config{Source: fileA}, fileB)
	require.Empty(t, w.Check())

	writeFile(t, fileA, "first-UPDATED")
	require.NoError(t, os.Remove(fileB))
	require.Equal(t, []string{fileA, fileB}, w.Check())

	w.Update(&config.Config{Source: fileA})
	require.Empty(t, w.Check())
}

func TestWatcherPollReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "a")
	w := NewWatcher(&config.Config{Source: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan []string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Poll(ctx, 10*time.Millisecond, func(changed []string) {
			select {
			case got <- changed:
			default:
			}
		})
	}()

	writeFile(t, path, "a longer body")
	select {
	case changed := <-got:
		require.Equal(t, []string{path}, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
	cancel()
	<-done
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var w *Watcher
	w.Update(&config.Config{})
	require.Nil(t, w.Check())
	require.Nil(t, w.Files())
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
