package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhcgn/maildirwatch/watch"
)

// Discover builds a registry from the immediate subdirectories of roots.
func Discover(source watch.Source, logger *slog.Logger, roots []string) (*Registry, error) {
	r := New(source, logger)
	if err := r.Discover(roots...); err != nil {
		return nil, err
	}
	return r, nil
}

// Discover registers every maildir folder found directly below each root.
// Entries named cur, new or tmp and hidden entries are skipped.
func (r *Registry) Discover(roots ...string) error {
	for _, root := range roots {
		if err := r.discoverRoot(root); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) discoverRoot(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDiscovery, root, err)
	}

	for _, ent := range entries {
		name := ent.Name()
		if !ent.IsDir() || skipEntry(name) {
			continue
		}

		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: %s: %w", ErrDiscovery, path, err)
		}

		r.logger.Info("adding folder", "folder", name, "path", path)
		if _, err := r.Register(name, path); err != nil {
			if errors.Is(err, ErrAlreadyWatched) {
				r.logger.Warn("skipping folder", "folder", name, "err", err)
				continue
			}
			return fmt.Errorf("add folder %s: %w", name, err)
		}
	}
	return nil
}

func skipEntry(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "cur", "new", "tmp":
		return true
	}
	return false
}
