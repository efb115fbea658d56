package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileTrigger sends on C whenever the watched file (or its SQLite -wal
// sidecar) is written. Sends never block; bursts collapse into one.
type FileTrigger struct {
	C <-chan struct{}

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchFile starts watching path's directory for writes to path.
func WatchFile(path string, logger *zap.Logger) (*FileTrigger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	t := &FileTrigger{C: ch, fsw: fsw, done: make(chan struct{})}
	base := filepath.Base(path)

	go func() {
		defer close(t.done)
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", zap.Error(err))
			}
		}
	}()
	return t, nil
}

// Close stops watching.
func (t *FileTrigger) Close() error {
	err := t.fsw.Close()
	<-t.done
	return err
}
