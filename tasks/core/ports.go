package core

import "context"

type Pinger interface {
	Ping(ctx context.Context) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, f ListUsersFilter) ([]User, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t Task) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, f ListTasksFilter) ([]Task, error)
	UpdateTask(ctx context.Context, t Task) (Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// HistoryStore is append-only apart from DeleteEntry, which is reserved
// for the administrative delete and for retracting a "deleted" entry
// whose task removal failed.
type HistoryStore interface {
	CreateEntry(ctx context.Context, e HistoryEntry) (HistoryEntry, error)
	GetEntry(ctx context.Context, id string) (HistoryEntry, error)
	ListEntries(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	CountEntriesByAction(ctx context.Context) ([]ActionCount, error)
}

type DB interface {
	Pinger
	UserStore
	TaskStore
	HistoryStore
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
