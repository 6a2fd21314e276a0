package usersync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAwaitReady_GivesUpAfterBudget(t *testing.T) {
	attempts := 0
	probe := func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	}

	ready := AwaitReady(context.Background(), probe, 3, time.Millisecond, discardLogger())
	if ready {
		t.Fatalf("expected AwaitReady to report not ready")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 probe attempts, got %d", attempts)
	}
}

func TestAwaitReady_SucceedsMidBudget(t *testing.T) {
	attempts := 0
	probe := func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("still starting")
		}
		return nil
	}

	ready := AwaitReady(context.Background(), probe, 12, time.Millisecond, discardLogger())
	if !ready {
		t.Fatalf("expected AwaitReady to report ready")
	}
	if attempts != 2 {
		t.Fatalf("expected probing to stop on first success, got %d attempts", attempts)
	}
}

func TestAwaitReady_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := func(context.Context) error {
		t.Fatal("probe must not run after cancellation")
		return nil
	}

	if AwaitReady(ctx, probe, 3, time.Hour, discardLogger()) {
		t.Fatalf("expected AwaitReady to bail out on cancelled context")
	}
}
