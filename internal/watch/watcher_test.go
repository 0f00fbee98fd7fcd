package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"awaitlint/internal/config"
	"awaitlint/internal/report"
	"awaitlint/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// syncBuffer guards writes from the watcher goroutine against test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func watchOptions(root string) runner.Options {
	cfg := config.Default()
	cfg.Workers = 2
	return runner.Options{Root: root, Config: cfg, Mode: report.DryRun}
}

func TestStartStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	w, err := New(watchOptions(root), &syncBuffer{}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, err := New(watchOptions(root), &syncBuffer{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestChangeTriggersRescan(t *testing.T) {
	root := t.TempDir()
	out := &syncBuffer{}
	w, err := New(watchOptions(root), out, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	src := `from typing import Protocol

class Store(Protocol):
    def save(self) -> bool:
        ...
`
	path := filepath.Join(root, "protocol_store.py")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "SyncIoNameShouldBeAsync")
	}, 5*time.Second, 50*time.Millisecond, "expected a rescan report after the write")
}

func TestNonMatchingFilesIgnored(t *testing.T) {
	root := t.TempDir()
	out := &syncBuffer{}
	w, err := New(watchOptions(root), out, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "helpers.py"), []byte("a = 1\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, out.String())
}

func TestWatchModeNeverFixes(t *testing.T) {
	root := t.TempDir()
	opts := watchOptions(root)
	opts.Mode = report.Apply // forced back to dry-run by New

	w, err := New(opts, &syncBuffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, report.DryRun, w.opts.Mode)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
