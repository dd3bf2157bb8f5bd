package devices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/smazurov/vidbuf/internal/logging"
)

var errWatcherClosed = errors.New("devices: watcher closed")

// WaitForDevice returns once path exists or ctx ends. It watches the
// nearest existing ancestor directory, so a node appearing under a
// directory udev has yet to create (such as /dev/v4l/by-id) is also seen.
func WaitForDevice(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if exists(path) {
		return nil
	}
	logger := logging.GetLogger("devices")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched, err := watchNearest(w, path)
	if err != nil {
		return err
	}
	logger.Info("Waiting for device", "path", path, "watching", watched)

	// The node may have appeared before the watch was installed.
	if exists(path) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if exists(path) {
				logger.Info("Device appeared", "path", path)
				return nil
			}
			if strings.HasPrefix(path, filepath.Clean(event.Name)+string(filepath.Separator)) {
				next, err := watchNearest(w, path)
				if err != nil {
					return err
				}
				logger.Debug("Descending watch", "watching", next)
				if exists(path) {
					logger.Info("Device appeared", "path", path)
					return nil
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			logger.Warn("Device watcher error", "path", path, "error", err)
		}
	}
}

// watchNearest adds the deepest existing directory above path.
func watchNearest(w *fsnotify.Watcher, path string) (string, error) {
	dir := filepath.Dir(path)
	for !isDir(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir, w.Add(dir)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
