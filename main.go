package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/maildirwatch/cmd"
	"github.com/dhcgn/maildirwatch/config"
	"github.com/dhcgn/maildirwatch/control"
	"github.com/dhcgn/maildirwatch/filter"
	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/router"
	"github.com/dhcgn/maildirwatch/runner"
	"github.com/dhcgn/maildirwatch/watch"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "maildirwatch PATH...",
		Short:         "Report new unread messages arriving in maildir folders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, args)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting maildirwatch", "roots", cfg.Roots, "backend", cfg.Backend, "format", cfg.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("maildirwatch failed", "error", err)
				return err
			}
			return nil
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewStatsCommand(), cmd.NewDeliverCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	source, err := watch.Open(cfg.Backend)
	if err != nil {
		return fmt.Errorf("watch.Open: %w", err)
	}
	defer source.Close()

	reg, err := registry.Discover(source, logger, cfg.Roots)
	if err != nil {
		return err
	}
	logger.Info("watching folders", "count", reg.Len())

	f, err := filter.New(filter.Options{
		IncludeFolder: cfg.IncludeFolder,
		ExcludeFolder: cfg.ExcludeFolder,
		Condition:     cfg.Condition,
	})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}

	printer := output.New(os.Stdout, cfg.Format, cfg.Subject)

	r, err := runner.New(ctx, runner.Options{
		Source:     source,
		Router:     router.New(reg),
		Printer:    printer,
		Dispatcher: control.NewDispatcher(reg, printer, logger),
		Filter:     f,
		Control:    os.Stdin,
	}, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	if err := printer.Ready(); err != nil {
		return fmt.Errorf("print ready: %w", err)
	}

	return r.Start()
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("maildirwatch-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}
