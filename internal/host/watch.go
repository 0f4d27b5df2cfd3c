package host

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher reports .lua files written or created in the scripts directory.
type watcher struct {
	fs  *fsnotify.Watcher
	log *zap.Logger
}

func newWatcher(dir string, log *zap.Logger) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create script watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &watcher{fs: fs, log: log}, nil
}

// run forwards changed script names to reload until ctx is cancelled.
func (w *watcher) run(ctx context.Context, reload func(script string) bool) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if filepath.Ext(ev.Name) != ".lua" {
				continue
			}
			script := filepath.Base(ev.Name)
			if !reload(script) {
				w.log.Warn("reload queue full, change ignored", zap.String("script", script))
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("script watcher error", zap.Error(err))
		}
	}
}
