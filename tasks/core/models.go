package core

import "time"

type Role string

const (
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleUser
}

type TaskStatus string

const (
	StatusTODO       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	return s == StatusTODO || s == StatusInProgress || s == StatusDone
}

type TaskType string

const (
	TypeSpecific TaskType = "specific"
	TypeGeneral  TaskType = "general"
)

func (t TaskType) Valid() bool {
	return t == TypeSpecific || t == TypeGeneral
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Task.AssignedTo holds the assignee ids captured when the task was created.
// For general tasks it is the set of every user that existed at that moment
// and does not grow when new users register.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Type        TaskType   `json:"type"`
	AssignedTo  []string   `json:"assigned_to"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t Task) IsAssignedTo(userID string) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether a non-manager user may see the task and its history.
func (t Task) VisibleTo(userID string) bool {
	return t.Type == TypeGeneral || t.IsAssignedTo(userID)
}

type TaskSummary struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
}

func (t Task) Summary() TaskSummary {
	return TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status}
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsManager() bool {
	return a.Role == RoleManager
}
