package license

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce absorbs the write+rename burst the atomic token save emits.
const watchDebounce = 200 * time.Millisecond

// WatchTokenFile invokes onChange whenever the token file is rewritten or
// removed (for example by a concurrent check-in or a manual reset). The
// parent directory is watched rather than the file itself because atomic
// renames replace the inode. Returns after the context is done.
func WatchTokenFile(ctx context.Context, store *TokenStore, onChange func(), logger *slog.Logger) error {
	logger = logger.With(slog.String("component", "token_watcher"))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Base(store.Path())
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			logger.Debug("token file changed", slog.String("path", store.Path()))
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("token watcher error", slog.String("error", err.Error()))
		}
	}
}
