package session

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch tails the durable session file and invokes onChange with the freshly
// loaded session after every write, until ctx is cancelled. This lets a
// second process (e.g. `gamemaister status --follow`) observe a streaming
// turn live. Unreadable intermediate states are skipped.
func Watch(ctx context.Context, onChange func(Session)) error {
	path, err := StatePath()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: the persister replaces the file via
	// rename, which would drop a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	p := &diskPersister{path: path, log: slog.Default()}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if s, ok, err := p.Load(); err == nil && ok {
					onChange(s)
				}
			}
			if event.Has(fsnotify.Remove) {
				onChange(Session{}) // cleared elsewhere
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}
