// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerRunsTask(t *testing.T) {
	r := NewRunner(discardLogger())

	var ran atomic.Bool
	r.Go("test", func(context.Context) error {
		ran.Store(true)
		return nil
	})

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ran.Load() {
		t.Fatal("expected task to run")
	}
}

func TestRunnerSwallowsErrorsAndPanics(t *testing.T) {
	r := NewRunner(discardLogger())

	r.Go("failing", func(context.Context) error {
		return errors.New("boom")
	})
	r.Go("panicking", func(context.Context) error {
		panic("boom")
	})

	// Close returning cleanly means neither outcome escaped.
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunnerCloseHonorsContext(t *testing.T) {
	r := NewRunner(discardLogger())

	release := make(chan struct{})
	defer close(release)
	r.Go("slow", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
