package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 100 * time.Millisecond

// watch runs the program and restarts it whenever the binary changes. It
// returns when ctx is cancelled, with the result of the last run.
func (a *app) watch(ctx context.Context) error {
	path := filepath.Clean(a.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Watch the directory; editors and linkers replace the file.
	if err := watcher.Watch(filepath.Dir(path)); err != nil {
		return err
	}

	var (
		cancel  context.CancelFunc
		done    chan error
		last    error
		restart <-chan time.Time
	)
	start := func() {
		runCtx, c := context.WithCancel(ctx)
		cancel = c
		done = make(chan error, 1)
		go func(done chan<- error) { done <- a.runOnce(runCtx) }(done)
		a.logger.Info("program started", zap.String("path", path))
	}
	stopRun := func() {
		if cancel == nil {
			return
		}
		cancel()
		last = <-done
		cancel, done = nil, nil
	}
	defer stopRun()

	start()
	for {
		select {
		case <-ctx.Done():
			stopRun()
			return last
		case err := <-done:
			last = err
			cancel()
			cancel, done = nil, nil
			if err != nil {
				a.logger.Warn("program stopped", zap.Error(err))
			} else {
				a.logger.Info("program exited")
			}
			a.logger.Info("waiting for changes", zap.String("path", path))
		case ev := <-watcher.Event:
			if filepath.Clean(ev.Name) == path && !ev.IsAttrib() && !ev.IsDelete() {
				restart = time.After(watchDebounce)
			}
		case <-restart:
			restart = nil
			a.logger.Info("program changed, restarting")
			stopRun()
			start()
		case err := <-watcher.Error:
			a.logger.Warn("watcher", zap.Error(err))
		}
	}
}
