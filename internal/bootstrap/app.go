// Package bootstrap owns the process lifecycle: signal handling and
// the supervision of long-running components.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"whale_watcher/internal/core"
)

// Runner is a component with a blocking Run that returns when its
// context is cancelled or it fails.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a bare function to the Runner interface.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// App supervises a set of runners under one signal-aware context. The
// first runner error, or SIGINT/SIGTERM, cancels all others.
type App struct {
	logger core.ILogger
}

func NewApp(logger core.ILogger) *App {
	return &App{logger: logger.WithField("component", "app")}
}

// Run blocks until every runner returned. A plain context.Canceled
// means a clean signal-driven shutdown and is not an error.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.logger.Info("Starting application", "runners", len(runners))

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped with error", "error", err)
		return err
	}

	a.logger.Info("Application shut down gracefully")
	return nil
}
