package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

type Service struct {
	log          *slog.Logger
	db           DB
	hasher       PasswordHasher
	recorder     *Recorder
	historyLimit int
	now          func() time.Time
}

type Option func(*Service)

// WithHistoryLimit caps how many entries a history query returns.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		s.historyLimit = clampLimit(n, DefaultHistoryLimit, MaxHistoryLimit)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(log *slog.Logger, db DB, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{
		log:          log,
		db:           db,
		hasher:       hasher,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = NewRecorder(log, db, s.now)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Outcome is the result of a task mutation. AuditErr is set when the
// mutation committed but its history could not be fully written; the task
// change stands and callers report it as a warning.
type Outcome struct {
	Task     Task
	History  []HistoryEntry
	AuditErr error
}

// Accounts

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

func (s *Service) Register(ctx context.Context, username, password string, role Role) (User, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return User{}, ErrUserInvalidArgs
	}
	if len(password) < minPasswordLen {
		return User{}, ErrUserInvalidArgs
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, ErrUserInvalidArgs
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	return s.db.CreateUser(ctx, User{Username: username, PasswordHash: hash, Role: role})
}

func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	u, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrBadCredentials
		}
		return User{}, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}
	return s.db.ListUsers(ctx, ListUsersFilter{})
}

// actorName resolves the display name recorded in history descriptions.
func (s *Service) actorName(ctx context.Context, actor Actor) string {
	u, err := s.db.GetUser(ctx, actor.ID)
	if err != nil {
		s.log.Debug("actor name unresolved", "user_id", actor.ID, "error", err)
		if actor.IsManager() {
			return "Manager"
		}
		return "User"
	}
	return u.Username
}

// assigneeLabeler renders assignees by their current usernames.
func (s *Service) assigneeLabeler(ctx context.Context) AssigneeLabeler {
	return func(t Task) string {
		if t.Type == TypeGeneral {
			return AllUsersMarker
		}
		users, err := s.db.ListUsers(ctx, ListUsersFilter{IDs: t.AssignedTo})
		if err != nil || len(users) == 0 {
			return defaultAssigneeLabel(t)
		}
		names := make([]string, 0, len(users))
		for _, u := range users {
			names = append(names, u.Username)
		}
		return strings.Join(names, ", ")
	}
}

// Tasks

type NewTask struct {
	Title          string
	Description    string
	Type           TaskType
	AssignedUserID string
}

type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
}

func (s *Service) CreateTask(ctx context.Context, actor Actor, in NewTask) (Outcome, error) {
	if !actor.IsManager() {
		return Outcome{}, ErrForbidden
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Outcome{}, ErrTaskInvalidArgs
	}
	if in.Type == "" {
		in.Type = TypeSpecific
	}

	var assigned []string
	switch in.Type {
	case TypeSpecific:
		if strings.TrimSpace(in.AssignedUserID) == "" {
			return Outcome{}, ErrTaskInvalidArgs
		}
		if _, err := s.db.GetUser(ctx, in.AssignedUserID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return Outcome{}, ErrTaskInvalidArgs
			}
			return Outcome{}, err
		}
		assigned = []string{in.AssignedUserID}
	case TypeGeneral:
		users, err := s.db.ListUsers(ctx, ListUsersFilter{})
		if err != nil {
			return Outcome{}, err
		}
		assigned = make([]string, 0, len(users))
		for _, u := range users {
			assigned = append(assigned, u.ID)
		}
	default:
		return Outcome{}, ErrTaskInvalidArgs
	}

	task, err := s.db.CreateTask(ctx, Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusTODO,
		Type:        in.Type,
		AssignedTo:  assigned,
		CreatedBy:   actor.ID,
	})
	if err != nil {
		return Outcome{}, err
	}

	name := s.actorName(ctx, actor)
	out := Outcome{Task: task}

	created, err := s.recorder.Record(ctx, lifecycleEvent(task.ID, actor.ID, name, ActionCreated))
	if err != nil {
		out.AuditErr = err
		return out, nil
	}
	out.History = append(out.History, created)

	if ev, ok := diffAssignment(Task{ID: task.ID}, task, actor.ID, name, s.assigneeLabeler(ctx)); ok {
		assignedEntry, err := s.recorder.Record(ctx, ev)
		if err != nil {
			out.AuditErr = err
			return out, nil
		}
		out.History = append(out.History, assignedEntry)
	}

	s.log.Info("task created", "task_id", task.ID, "type", task.Type, "actor", actor.ID)
	return out, nil
}

func (s *Service) GetTask(ctx context.Context, actor Actor, id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, ErrTaskInvalidArgs
	}
	t, err := s.db.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !actor.IsManager() && !t.VisibleTo(actor.ID) {
		return Task{}, ErrForbidden
	}
	return t, nil
}

func (s *Service) ListTasks(ctx context.Context, actor Actor, f ListTasksFilter) ([]Task, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, ErrTaskInvalidArgs
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, ErrTaskInvalidArgs
	}
	f.Limit = clampLimit(f.Limit, DefaultTaskLimit, MaxTaskLimit)
	f.Title = strings.TrimSpace(f.Title)

	if !actor.IsManager() {
		// assignee narrowing is a manager tool
		f.AssignedTo = nil
		f.VisibleTo = &actor.ID
	}
	return s.db.ListTasks(ctx, f)
}

func (s *Service) PatchTask(ctx context.Context, actor Actor, id string, p TaskPatch) (Outcome, error) {
	if strings.TrimSpace(id) == "" {
		return Outcome{}, ErrTaskInvalidArgs
	}
	if p.Title == nil && p.Description == nil && p.Status == nil {
		return Outcome{}, ErrTaskInvalidArgs
	}

	before, err := s.db.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, err // ErrTaskNotFound -> NotFound
	}
	if !actor.IsManager() && !before.IsAssignedTo(actor.ID) {
		return Outcome{}, ErrForbidden
	}

	cur := before
	cur.AssignedTo = append([]string(nil), before.AssignedTo...)

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Outcome{}, ErrTaskInvalidArgs
		}
		cur.Title = title
	}
	if p.Description != nil {
		cur.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return Outcome{}, ErrTaskInvalidArgs
		}
		cur.Status = *p.Status
	}

	after, err := s.db.UpdateTask(ctx, cur)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Task: after}
	name := s.actorName(ctx, actor)
	out.History, out.AuditErr = s.recorder.RecordAll(ctx, DiffTasks(before, after, actor.ID, name, s.assigneeLabeler(ctx)))
	return out, nil
}

// DeleteTask writes the "deleted" entry before removing the task. A failed
// entry aborts the deletion; a failed removal retracts the entry.
func (s *Service) DeleteTask(ctx context.Context, actor Actor, id string) error {
	if !actor.IsManager() {
		return ErrForbidden
	}
	if strings.TrimSpace(id) == "" {
		return ErrTaskInvalidArgs
	}

	task, err := s.db.GetTask(ctx, id)
	if err != nil {
		return err
	}

	entry, err := s.recorder.Record(ctx, lifecycleEvent(task.ID, actor.ID, s.actorName(ctx, actor), ActionDeleted))
	if err != nil {
		return err
	}

	if err := s.db.DeleteTask(ctx, task.ID); err != nil {
		_ = s.recorder.retract(ctx, entry.ID)
		return err
	}

	s.log.Info("task deleted", "task_id", task.ID, "actor", actor.ID)
	return nil
}
