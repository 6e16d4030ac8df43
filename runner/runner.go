package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/maildirwatch/control"
	"github.com/dhcgn/maildirwatch/filter"
	"github.com/dhcgn/maildirwatch/header"
	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/router"
	"github.com/dhcgn/maildirwatch/watch"
)

type StageFunc func(context.Context) error

// Options wires the engine components into a Runner.
type Options struct {
	Source     watch.Source
	Router     *router.Router
	Printer    *output.Printer
	Dispatcher *control.Dispatcher
	// Filter is optional.
	Filter *filter.Filter
	// Control is the command input, usually stdin. Optional.
	Control io.Reader
}

// Runner drives the event loop. Stages feed record batches and control
// commands into channels; Start consumes both on a single goroutine, so the
// registry, printer and dispatcher are never touched concurrently.
type Runner struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	records  chan []watch.Record
	commands chan byte

	workWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	reported int
	since    time.Time
}

func New(parent context.Context, opts Options, logger *slog.Logger) (*Runner, error) {
	if opts.Source == nil || opts.Router == nil || opts.Printer == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("runner: source, router, printer and dispatcher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Runner{
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		records:  make(chan []watch.Record, 32),
		commands: make(chan byte, 8),
	}

	r.AddStage("watch", func(ctx context.Context) error {
		return opts.Source.Stream(ctx, r.records)
	})
	if opts.Control != nil {
		// A blocked stdin read cannot be interrupted, so the control reader is
		// not waited for on shutdown.
		go func() {
			if err := control.Read(ctx, opts.Control, r.commands); err != nil {
				r.fail(fmt.Errorf("control stage: %w", err))
				return
			}
			logger.Debug("control channel closed")
		}()
	}
	return r, nil
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

// Reported returns the number of messages printed so far.
func (r *Runner) Reported() int {
	return r.reported
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start runs until the parent context is cancelled or a fatal error occurs.
// It returns nil on cancellation.
func (r *Runner) Start() error {
	r.since = time.Now()
	r.loop()

	r.cancel()
	r.workWG.Wait()

	err := r.firstErr()
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("watch failed", "duration", duration, "reported", r.reported, "err", err)
		return err
	}

	r.logger.Info("watch stopped", "duration", duration, "reported", r.reported)
	return nil
}

func (r *Runner) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case batch := <-r.records:
			if err := r.handleBatch(batch); err != nil {
				r.fail(err)
				return
			}
		case cmd := <-r.commands:
			if err := r.opts.Dispatcher.Dispatch(cmd); err != nil {
				r.fail(fmt.Errorf("control command %q: %w", cmd, err))
				return
			}
		}
	}
}

// handleBatch processes records strictly in delivery order.
func (r *Runner) handleBatch(batch []watch.Record) error {
	for _, rec := range batch {
		action, err := r.opts.Router.Route(rec)
		if err != nil {
			return err
		}
		if action.Kind != router.Report {
			r.logger.Debug("ignoring record", "handle", rec.Handle, "name", rec.Name, "flags", rec.Flags)
			continue
		}
		if err := r.report(action); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) report(action router.Action) error {
	msg := action.Message()

	want := r.opts.Printer.Want()
	if r.opts.Filter != nil {
		want |= r.opts.Filter.Want()
	}
	if want != header.None {
		res := header.Extract(msg.Path, want)
		msg.Subject, msg.HasSubject = res.Subject, res.HasSubject
		msg.From, msg.HasFrom = res.From, res.HasFrom
	}

	if r.opts.Filter != nil {
		ok, err := r.opts.Filter.Allows(msg)
		if err != nil {
			r.logger.Warn("filter failed, reporting message", "path", msg.Path, "err", err)
		} else if !ok {
			r.logger.Debug("filtered message", "folder", msg.Folder, "path", msg.Path)
			return nil
		}
	}

	if err := r.opts.Printer.Message(msg); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.reported++
	return nil
}

func (r *Runner) firstErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
