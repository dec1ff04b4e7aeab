package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string, run RunFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := &Watcher{Path: path, Debounce: 50 * time.Millisecond, Run: run}
	go func() { done <- w.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestWatchRunsUpFrontAndOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	var runs atomic.Int32
	startWatcher(t, path, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("{}\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	// the burst is coalesced into one run
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestWatchPicksUpLateArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")

	var runs atomic.Int32
	startWatcher(t, path, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchIgnoresSiblingsAndSurvivesRunErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.jsonl")

	var runs atomic.Int32
	startWatcher(t, path, func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchRequiresRunFunc(t *testing.T) {
	w := &Watcher{Path: "capture.jsonl"}
	assert.Error(t, w.Watch(context.Background()))
}

func TestRelevant(t *testing.T) {
	target, err := filepath.Abs("capture.jsonl")
	require.NoError(t, err)

	assert.True(t, relevant(fsnotify.Event{Name: "capture.jsonl", Op: fsnotify.Write}, target))
	assert.True(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Create}, target))
	assert.False(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Chmod}, target))
	assert.False(t, relevant(fsnotify.Event{Name: "other.jsonl", Op: fsnotify.Write}, target))
}
