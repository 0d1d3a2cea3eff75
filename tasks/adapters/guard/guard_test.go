package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"teamtask/tasks/adapters/memory"
	"teamtask/tasks/core"
)

type brokenHistory struct {
	*memory.DB
	err   error
	calls int
}

func (b *brokenHistory) CreateEntry(context.Context, core.HistoryEntry) (core.HistoryEntry, error) {
	b.calls++
	return core.HistoryEntry{}, b.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerOpensOnStoreFailures(t *testing.T) {
	t.Parallel()

	next := &brokenHistory{DB: memory.New(), err: fmt.Errorf("%w: connection refused", core.ErrStore)}
	db := New(discard(), next, Settings{MaxFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := db.CreateEntry(ctx, core.HistoryEntry{}); !errors.Is(err, core.ErrStore) {
			t.Fatalf("call %d: expected ErrStore, got %v", i, err)
		}
	}
	if db.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", db.State())
	}

	_, err := db.CreateEntry(ctx, core.HistoryEntry{})
	if !errors.Is(err, core.ErrStore) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected fast failure wrapping ErrStore, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("open breaker must not reach the store, got %d calls", next.calls)
	}
}

func TestBreakerIgnoresValidationErrors(t *testing.T) {
	t.Parallel()

	next := &brokenHistory{DB: memory.New(), err: core.ErrEntryInvalidArgs}
	db := New(discard(), next, Settings{MaxFailures: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if _, err := db.CreateEntry(context.Background(), core.HistoryEntry{}); !errors.Is(err, core.ErrEntryInvalidArgs) {
			t.Fatalf("expected ErrEntryInvalidArgs, got %v", err)
		}
	}
	if db.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", db.State())
	}
}

func TestPassThrough(t *testing.T) {
	t.Parallel()

	db := New(discard(), memory.New(), Settings{OpenTimeout: time.Minute})
	ctx := context.Background()

	saved, err := db.CreateEntry(ctx, core.HistoryEntry{TaskID: "t1", Action: core.ActionCreated})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if _, err := db.GetEntry(ctx, saved.ID); err != nil {
		t.Fatalf("entry written through the breaker must be readable: %v", err)
	}
}
