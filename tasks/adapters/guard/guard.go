// Package guard protects history writes with a circuit breaker so a failing
// history store fails fast instead of stalling every task mutation.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"teamtask/tasks/core"
)

type Settings struct {
	// MaxFailures consecutive store failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DB decorates a core.DB; only CreateEntry goes through the breaker.
type DB struct {
	core.DB

	log *slog.Logger
	cb  *gobreaker.CircuitBreaker
}

func New(log *slog.Logger, next core.DB, st Settings) *DB {
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "history-store",
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		// validation and not-found errors say nothing about store health
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, core.ErrStore)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &DB{DB: next, log: log, cb: cb}
}

func (g *DB) CreateEntry(ctx context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.DB.CreateEntry(ctx, e)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return core.HistoryEntry{}, fmt.Errorf("%w: history store unavailable: %w", core.ErrStore, err)
		}
		return core.HistoryEntry{}, err
	}
	return res.(core.HistoryEntry), nil
}

func (g *DB) State() gobreaker.State {
	return g.cb.State()
}
