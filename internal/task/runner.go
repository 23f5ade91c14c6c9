// SPDX-License-Identifier: Apache-2.0

// Package task runs fire-and-forget work off the request path. A detached
// task's outcome is observed only through logs and metrics; errors and panics
// are caught at the boundary and never reach the submitting handler.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/recoverkit/ingest-gateway/internal/metrics"
)

type Runner struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Go submits fn on its own goroutine. The submitting request does not wait
// for it and cannot observe its failure.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				metrics.IncDetachedTaskFailure(name)
				r.logger.Error("detached task panicked",
					"task", name,
					"panic", fmt.Sprintf("%v", rec),
				)
			}
		}()

		// Detached work outlives the request; it runs on the background
		// context, not the request's.
		if err := fn(context.Background()); err != nil {
			metrics.IncDetachedTaskFailure(name)
			r.logger.Warn("detached task failed", "task", name, "error", err)
		}
	}()
}

// Close waits for in-flight tasks, bounded by ctx.
func (r *Runner) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
