// Package memory keeps users, tasks and history in process memory.
// It backs STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamtask/tasks/core"
)

type DB struct {
	mu sync.RWMutex

	users   map[string]core.User
	tasks   map[string]core.Task
	entries map[string]storedEntry

	seq int64
}

// storedEntry keeps insertion order to break createdAt ties.
type storedEntry struct {
	core.HistoryEntry
	seq int64
}

func New() *DB {
	return &DB{
		users:   make(map[string]core.User),
		tasks:   make(map[string]core.Task),
		entries: make(map[string]storedEntry),
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func cloneTask(t core.Task) core.Task {
	out := t
	out.AssignedTo = slices.Clone(t.AssignedTo)
	return out
}

func cloneEntry(e core.HistoryEntry) core.HistoryEntry {
	out := e
	out.OldValue = slices.Clone(e.OldValue)
	out.NewValue = slices.Clone(e.NewValue)
	return out
}

func (db *DB) Ping(context.Context) error {
	return nil
}

func (db *DB) Close() error {
	return nil
}

// Users

func (db *DB) CreateUser(_ context.Context, u core.User) (core.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.users {
		if existing.Username == u.Username {
			return core.User{}, core.ErrUserAlreadyExists
		}
	}

	u.ID = newID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	db.users[u.ID] = u
	return u, nil
}

func (db *DB) GetUser(_ context.Context, id string) (core.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (db *DB) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, core.ErrUserNotFound
}

func (db *DB) ListUsers(_ context.Context, f core.ListUsersFilter) ([]core.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]core.User, 0, len(db.users))
	for _, u := range db.users {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, u.ID) {
			continue
		}
		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// Tasks

func (db *DB) CreateTask(_ context.Context, t core.Task) (core.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now().UTC()
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = core.StatusTODO
	}

	db.tasks[t.ID] = cloneTask(t)
	return cloneTask(t), nil
}

func (db *DB) GetTask(_ context.Context, id string) (core.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tasks[id]
	if !ok {
		return core.Task{}, core.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (db *DB) ListTasks(_ context.Context, f core.ListTasksFilter) ([]core.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	title := strings.ToLower(f.Title)

	out := make([]core.Task, 0, len(db.tasks))
	for _, t := range db.tasks {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
			continue
		}
		if f.VisibleTo != nil && !t.VisibleTo(*f.VisibleTo) {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(t.Title), title) {
			continue
		}
		out = append(out, cloneTask(t))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return page(out, f.Limit, f.Offset), nil
}

func (db *DB) UpdateTask(_ context.Context, t core.Task) (core.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	current, ok := db.tasks[t.ID]
	if !ok {
		return core.Task{}, core.ErrTaskNotFound
	}

	t.CreatedAt = current.CreatedAt
	t.CreatedBy = current.CreatedBy
	t.UpdatedAt = time.Now().UTC()

	db.tasks[t.ID] = cloneTask(t)
	return cloneTask(t), nil
}

func (db *DB) DeleteTask(_ context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tasks[id]; !ok {
		return core.ErrTaskNotFound
	}
	delete(db.tasks, id)
	return nil
}

// History

func (db *DB) CreateEntry(_ context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	e.ID = newID()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	db.seq++
	db.entries[e.ID] = storedEntry{HistoryEntry: cloneEntry(e), seq: db.seq}
	return cloneEntry(e), nil
}

func (db *DB) GetEntry(_ context.Context, id string) (core.HistoryEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, ok := db.entries[id]
	if !ok {
		return core.HistoryEntry{}, core.ErrEntryNotFound
	}
	return cloneEntry(e.HistoryEntry), nil
}

func (db *DB) ListEntries(_ context.Context, f core.HistoryFilter) ([]core.HistoryEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if f.TaskIDs != nil && len(f.TaskIDs) == 0 {
		return []core.HistoryEntry{}, nil
	}

	matched := make([]storedEntry, 0, len(db.entries))
	for _, e := range db.entries {
		if f.TaskIDs != nil && !slices.Contains(f.TaskIDs, e.TaskID) {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.Start != nil && e.CreatedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.CreatedAt.After(*f.End) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]core.HistoryEntry, 0, len(matched))
	for _, e := range matched {
		out = append(out, cloneEntry(e.HistoryEntry))
	}
	return page(out, f.Limit, f.Offset), nil
}

func (db *DB) DeleteEntry(_ context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.entries[id]; !ok {
		return core.ErrEntryNotFound
	}
	delete(db.entries, id)
	return nil
}

func (db *DB) CountEntriesByAction(context.Context) ([]core.ActionCount, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	counts := make(map[core.Action]int64)
	for _, e := range db.entries {
		counts[e.Action]++
	}

	out := make([]core.ActionCount, 0, len(counts))
	for a, n := range counts {
		out = append(out, core.ActionCount{Action: a, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
