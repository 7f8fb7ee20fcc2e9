package observability

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// Shutdown runs every shutdown function concurrently, bounded by timeout.
// All functions run even if some fail; the first error is returned.
func Shutdown(ctx context.Context, logger *Logger, timeout time.Duration, funcs ...ShutdownFunc) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger = OrNop(logger)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var g errgroup.Group
	for i, fn := range funcs {
		i, fn := i, fn
		g.Go(func() error {
			if err := fn(ctx); err != nil {
				logger.WithError(err).Errorf("Shutdown function %d failed", i)
				return fmt.Errorf("shutdown function %d: %w", i, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			logger.Info("Graceful shutdown complete")
		}
		return err
	case <-ctx.Done():
		logger.Warn("Shutdown timeout reached, forcing shutdown")
		return fmt.Errorf("shutdown timeout reached: %w", ctx.Err())
	}
}
