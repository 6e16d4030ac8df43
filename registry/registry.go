// Package registry owns the set of watched maildir folders and maps each
// watch handle back to the folder and subdirectory it was created for.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/emersion/go-maildir"

	"github.com/dhcgn/maildirwatch/model"
	"github.com/dhcgn/maildirwatch/watch"
)

var (
	// ErrDiscovery indicates a root path could not be listed.
	ErrDiscovery = errors.New("folder discovery failed")

	// ErrWatchSubscription indicates a subdirectory could not be watched for
	// a reason other than not existing.
	ErrWatchSubscription = errors.New("watch subscription failed")

	// ErrAlreadyWatched indicates a subdirectory is already owned by another folder.
	ErrAlreadyWatched = errors.New("directory already watched")
)

// Folder is a registered maildir folder.
type Folder struct {
	Name string
	Path string
	Cur  watch.Handle
	New  watch.Handle
}

// Dir returns the folder as a go-maildir directory.
func (f *Folder) Dir() maildir.Dir {
	return maildir.Dir(f.Path)
}

// Handle returns the watch handle of the given subdirectory.
func (f *Folder) Handle(sub model.Subdir) watch.Handle {
	if sub == model.New {
		return f.New
	}
	return f.Cur
}

// SubdirPath returns the path of the given subdirectory.
func (f *Folder) SubdirPath(sub model.Subdir) string {
	return filepath.Join(f.Path, sub.String())
}

type entry struct {
	folder *Folder
	subdir model.Subdir
}

// Registry is the folder set. It is written during startup discovery only and
// is not safe for concurrent mutation.
type Registry struct {
	source  watch.Source
	logger  *slog.Logger
	folders []*Folder
	handles map[watch.Handle]entry
}

// New creates an empty registry subscribing through source. A nil source
// registers folders without watching them.
func New(source watch.Source, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		source:  source,
		logger:  logger,
		handles: make(map[watch.Handle]entry),
	}
}

// Register subscribes to the cur and new subdirectories of path and adds the
// folder. A missing subdirectory leaves its handle absent.
func (r *Registry) Register(name, path string) (*Folder, error) {
	folder := &Folder{Name: name, Path: path, Cur: watch.NoHandle, New: watch.NoHandle}

	if r.source != nil {
		var added []watch.Handle
		rollback := func() {
			for _, h := range added {
				_ = r.source.Remove(h)
			}
		}

		for _, sub := range model.Subdirs {
			h, fresh, err := r.subscribe(folder.SubdirPath(sub))
			if err != nil {
				rollback()
				return nil, err
			}
			if fresh {
				added = append(added, h)
			}
			if sub == model.Cur {
				folder.Cur = h
			} else {
				folder.New = h
			}
		}
		if folder.Cur.Valid() && folder.Cur == folder.New {
			rollback()
			return nil, fmt.Errorf("%w: %s cur and new share a handle", ErrAlreadyWatched, path)
		}
	}

	for _, sub := range model.Subdirs {
		if h := folder.Handle(sub); h.Valid() {
			r.handles[h] = entry{folder: folder, subdir: sub}
		}
	}
	r.folders = append(r.folders, folder)
	return folder, nil
}

// subscribe reports whether the handle is new to this registry.
func (r *Registry) subscribe(path string) (watch.Handle, bool, error) {
	h, err := r.source.Add(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("subdirectory missing, not watched", "path", path)
			return watch.NoHandle, false, nil
		}
		return watch.NoHandle, false, fmt.Errorf("%w: %s: %w", ErrWatchSubscription, path, err)
	}
	if owner, ok := r.handles[h]; ok {
		return watch.NoHandle, false, fmt.Errorf("%w: %s by folder %s", ErrAlreadyWatched, path, owner.folder.Name)
	}
	return h, true, nil
}

// Resolve maps a watch handle back to its folder and subdirectory.
func (r *Registry) Resolve(h watch.Handle) (*Folder, model.Subdir, bool) {
	e, ok := r.handles[h]
	if !ok {
		return nil, model.Cur, false
	}
	return e.folder, e.subdir, true
}

// List returns the folders, most recently registered first.
func (r *Registry) List() []*Folder {
	out := make([]*Folder, len(r.folders))
	for i, f := range r.folders {
		out[len(r.folders)-1-i] = f
	}
	return out
}

// Len returns the number of registered folders.
func (r *Registry) Len() int {
	return len(r.folders)
}
