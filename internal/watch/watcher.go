// Package watch re-runs the dry-run pipeline whenever matching declaration
// files change. Watching never rewrites files; it exists for a fast edit
// feedback loop.
package watch

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"awaitlint/internal/report"
	"awaitlint/internal/runner"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher monitors the scan root and triggers a rescan on changes to
// matching files, debouncing rapid saves.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	opts     runner.Options
	out      io.Writer
	log      *zap.Logger
	debounce map[string]time.Time
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a Watcher writing reports to out. The runner options are
// forced to dry-run mode.
func New(opts runner.Options, out io.Writer, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts.Mode = report.DryRun
	return &Watcher{
		watcher:  fsw,
		opts:     opts,
		out:      out,
		log:      log,
		debounce: make(map[string]time.Time),
		interval: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching and returns immediately; events are handled in a
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirs(w.opts.Root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
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
	_ = w.watcher.Close()
}

// addDirs registers the root and every non-ignored subdirectory; fsnotify
// does not watch recursively on its own.
func (w *Watcher) addDirs(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		for _, ig := range w.opts.Config.IgnoreDirs {
			if d.Name() == ig {
				return filepath.SkipDir
			}
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
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
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirs(event.Name)
			return
		}
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	last, seen := w.debounce[event.Name]
	now := time.Now()
	if seen && now.Sub(last) < w.interval {
		w.mu.Unlock()
		return
	}
	w.debounce[event.Name] = now
	w.mu.Unlock()

	w.log.Info("change detected, rescanning", zap.String("file", event.Name))
	rep, err := runner.New(w.opts).Run(ctx)
	if err != nil {
		w.log.Error("rescan failed", zap.Error(err))
		return
	}
	_ = rep.WriteHuman(w.out)
}

func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".py") && !strings.HasSuffix(name, ".pyi") {
		return false
	}
	ok, err := filepath.Match(w.opts.Config.Pattern, name)
	return err == nil && ok
}
