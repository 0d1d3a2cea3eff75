package core

import "time"

const (
	DefaultHistoryLimit = 200
	MaxHistoryLimit     = 200
	DefaultTaskLimit    = 50
	MaxTaskLimit        = 200
)

// ListTasksFilter narrows a task listing. VisibleTo keeps tasks assigned to
// the user or of type general. Title matches a case-insensitive substring.
// Limit <= 0 means no limit at the store level; the service clamps caller input.
type ListTasksFilter struct {
	IDs        []string    `json:"ids"`
	Status     *TaskStatus `json:"status"`
	AssignedTo *string     `json:"assigned_to"`
	VisibleTo  *string     `json:"visible_to"`
	Title      string      `json:"title"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

type ListUsersFilter struct {
	IDs []string
}

// HistoryFilter is what stores understand. TaskIDs == nil means no restriction,
// a non-nil empty slice matches nothing.
type HistoryFilter struct {
	TaskIDs []string
	Action  *Action
	Start   *time.Time
	End     *time.Time
	Limit   int
	Offset  int
}

// HistoryQuery is what callers of the history query service pass in.
type HistoryQuery struct {
	TaskID *string
	Action *Action
	Start  *time.Time
	End    *time.Time
	Limit  int
	Offset int
}

// clampLimit normalizes a page size into (0, max].
func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}
