// Package credentials loads hub tokens from disk and notices when they are
// rotated.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// ErrEmptyToken is returned when the token file holds only whitespace.
var ErrEmptyToken = errors.New("token file is empty")

// TokenFile is a file holding a single hub token.
type TokenFile struct {
	Fs     afero.Fs
	Path   string
	Logger *slog.Logger
}

func (f TokenFile) fs() afero.Fs {
	if f.Fs != nil {
		return f.Fs
	}
	return afero.NewOsFs()
}

func (f TokenFile) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Load reads the token, trimming surrounding whitespace.
func (f TokenFile) Load() (string, error) {
	data, err := afero.ReadFile(f.fs(), f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%s: %w", f.Path, ErrEmptyToken)
	}
	return token, nil
}

// Watch calls onChange with the new token whenever the file is rewritten or
// replaced with different content. The file's directory is watched so atomic
// renames are seen. Watch blocks until ctx is cancelled and needs the path to
// exist on the OS filesystem.
func (f TokenFile) Watch(ctx context.Context, onChange func(token string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger := f.logger().With("path", f.Path)
	current, _ := f.Load()
	logger.Debug("Watching token file")

	target := filepath.Clean(f.Path)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Token watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			token, err := f.Load()
			if err != nil {
				// Editors truncate before writing; wait for the next event.
				logger.Debug("Token file not readable yet", "error", err)
				continue
			}
			if token == current {
				continue
			}
			current = token
			logger.Info("Token file changed")
			onChange(token)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("File system watcher error", "error", err)
		}
	}
}
