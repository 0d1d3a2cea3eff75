package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"teamtask/tasks/adapters/memory"
	"teamtask/tasks/core"
)

var errInjected = errors.New("injected failure")

// flakyDB is the in-memory store with switchable write failures.
type flakyDB struct {
	*memory.DB

	mu sync.Mutex
	// entryBudget is how many more history writes succeed; negative means unlimited.
	entryBudget int
	failDelete  bool
}

func newFlakyDB() *flakyDB {
	return &flakyDB{DB: memory.New(), entryBudget: -1}
}

func (db *flakyDB) allowEntries(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entryBudget = n
}

func (db *flakyDB) failTaskDeletes() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failDelete = true
}

func (db *flakyDB) CreateEntry(ctx context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	db.mu.Lock()
	if db.entryBudget == 0 {
		db.mu.Unlock()
		return core.HistoryEntry{}, fmt.Errorf("%w: %w", core.ErrStore, errInjected)
	}
	if db.entryBudget > 0 {
		db.entryBudget--
	}
	db.mu.Unlock()

	return db.DB.CreateEntry(ctx, e)
}

func (db *flakyDB) DeleteTask(ctx context.Context, id string) error {
	db.mu.Lock()
	fail := db.failDelete
	db.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: %w", core.ErrStore, errInjected)
	}
	return db.DB.DeleteTask(ctx, id)
}

// plainHasher keeps tests fast; bcrypt has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return errors.New("mismatch")
	}
	return nil
}
