package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"teamtask/tasks/adapters/rest"
	"teamtask/tasks/core"
)

type Accounts interface {
	Register(ctx context.Context, username, password string, role core.Role) (core.User, error)
	Login(ctx context.Context, username, password string) (core.User, error)
	ListUsers(ctx context.Context, actor core.Actor) ([]core.User, error)
}

type Tasks interface {
	CreateTask(ctx context.Context, actor core.Actor, in core.NewTask) (core.Outcome, error)
	GetTask(ctx context.Context, actor core.Actor, id string) (core.Task, error)
	ListTasks(ctx context.Context, actor core.Actor, f core.ListTasksFilter) ([]core.Task, error)
	PatchTask(ctx context.Context, actor core.Actor, id string, p core.TaskPatch) (core.Outcome, error)
	DeleteTask(ctx context.Context, actor core.Actor, id string) error
}

type History interface {
	QueryHistory(ctx context.Context, actor core.Actor, q core.HistoryQuery) ([]core.HistoryView, error)
	TaskHistory(ctx context.Context, actor core.Actor, taskID string) (core.TaskSummary, []core.HistoryView, error)
	DeleteEntry(ctx context.Context, actor core.Actor, id string) error
	HistoryStats(ctx context.Context, actor core.Actor) (core.HistoryStats, error)
}

type TokenIssuer interface {
	rest.Authenticator
	Issue(u core.User) (string, error)
}

type Deps struct {
	Accounts Accounts
	Tasks    Tasks
	History  History
	Tokens   TokenIssuer
	Pingers  map[string]core.Pinger
}

// Register mounts every route on mux. The returned handler adds request ids
// and access logging on top of mux.
func Register(mux *http.ServeMux, log *slog.Logger, deps Deps, timeout time.Duration) http.Handler {
	authed := func(h http.Handler) http.Handler {
		return rest.Authenticate(log, deps.Tokens, h)
	}
	manager := func(h http.Handler) http.Handler {
		return authed(rest.RequireRole(log, core.RoleManager, h))
	}

	// ping
	mux.Handle("GET /api/ping", NewPingHandler(log, deps.Pingers, timeout))

	// auth
	mux.Handle("POST /api/auth/register", NewRegisterHandler(log, deps.Accounts, deps.Tokens, timeout))
	mux.Handle("POST /api/auth/login", NewLoginHandler(log, deps.Accounts, deps.Tokens, timeout))
	mux.Handle("GET /api/auth/users", manager(NewListUsersHandler(log, deps.Accounts, timeout)))

	// tasks
	mux.Handle("POST /api/tasks", manager(NewCreateTaskHandler(log, deps.Tasks, timeout)))
	mux.Handle("GET /api/tasks", authed(NewListTasksHandler(log, deps.Tasks, timeout)))
	mux.Handle("GET /api/tasks/search/{title}", authed(NewSearchTasksHandler(log, deps.Tasks, timeout)))
	mux.Handle("GET /api/tasks/{id}", authed(NewGetTaskHandler(log, deps.Tasks, timeout)))
	mux.Handle("PATCH /api/tasks/{id}", authed(NewPatchTaskHandler(log, deps.Tasks, timeout)))
	mux.Handle("PUT /api/tasks/{id}", authed(NewPatchTaskHandler(log, deps.Tasks, timeout)))
	mux.Handle("DELETE /api/tasks/{id}", manager(NewDeleteTaskHandler(log, deps.Tasks, timeout)))

	// history
	mux.Handle("GET /api/history", authed(NewQueryHistoryHandler(log, deps.History, timeout)))
	mux.Handle("GET /api/history/stats", manager(NewHistoryStatsHandler(log, deps.History, timeout)))
	mux.Handle("GET /api/history/task/{taskId}", authed(NewTaskHistoryHandler(log, deps.History, timeout)))
	mux.Handle("DELETE /api/history/{id}", manager(NewDeleteEntryHandler(log, deps.History, timeout)))

	return rest.AccessLog(log, mux)
}

func mustActor(r *http.Request) core.Actor {
	a, _ := rest.ActorFrom(r.Context())
	return a
}
