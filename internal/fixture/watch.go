package fixture

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the tree at path into s whenever the file is written, until
// ctx is done. Invalid edits are logged and the previous tree kept.
func Watch(ctx context.Context, s *Server, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			tree, err := LoadTree(path)
			if err != nil {
				s.logger.Warn("Ignoring invalid fixture edit", zap.String("path", path), zap.Error(err))
				continue
			}
			s.SetTree(tree)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Fixture watcher error", zap.Error(err))
		}
	}
}
