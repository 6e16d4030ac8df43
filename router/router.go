// Package router decides which change notifications are new mail.
package router

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dhcgn/maildirwatch/model"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/watch"
)

// ErrUnknownWatchHandle indicates a notification for a handle that was never
// registered. It points at broken bookkeeping and is fatal.
var ErrUnknownWatchHandle = errors.New("unknown watch handle")

// Kind is the routing decision.
type Kind int

const (
	Ignore Kind = iota
	Report
)

func (k Kind) String() string {
	if k == Report {
		return "report"
	}
	return "ignore"
}

// Action is the outcome of routing one record.
type Action struct {
	Kind   Kind
	Folder *registry.Folder
	Subdir model.Subdir
	Name   string
}

// Path returns <folder>/<subdir>/<name> for a Report action.
func (a Action) Path() string {
	if a.Folder == nil {
		return ""
	}
	return filepath.Join(a.Folder.Path, a.Subdir.String(), a.Name)
}

// Message converts a Report action into the message to print.
func (a Action) Message() model.Message {
	msg := model.Message{Subdir: a.Subdir, Name: a.Name, Path: a.Path()}
	if a.Folder != nil {
		msg.Folder = a.Folder.Name
	}
	return msg
}

// Resolver maps watch handles to folders.
type Resolver interface {
	Resolve(h watch.Handle) (*registry.Folder, model.Subdir, bool)
}

// Router turns records into actions. It never mutates the registry.
type Router struct {
	resolver Resolver
}

func New(resolver Resolver) *Router {
	return &Router{resolver: resolver}
}

// Route classifies one record. Directory changes are ignored before the handle
// is looked up; an unresolvable handle is an error; only entries moved into a
// watched directory with an unread name are reported.
func (r *Router) Route(rec watch.Record) (Action, error) {
	if rec.Flags.Has(watch.IsDir) {
		return Action{Kind: Ignore}, nil
	}

	folder, sub, ok := r.resolver.Resolve(rec.Handle)
	if !ok {
		return Action{Kind: Ignore}, fmt.Errorf("%w: %v (entry %q)", ErrUnknownWatchHandle, rec.Handle, rec.Name)
	}

	action := Action{Kind: Ignore, Folder: folder, Subdir: sub, Name: rec.Name}
	if !rec.Flags.Has(watch.MovedTo) {
		return action, nil
	}
	if model.Classify(rec.Name) != model.Unread {
		return action, nil
	}

	action.Kind = Report
	return action, nil
}
