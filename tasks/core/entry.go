package core

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionCreated       Action = "created"
	ActionStatusChanged Action = "status_changed"
	ActionUpdated       Action = "updated"
	ActionAssigned      Action = "assigned"
	ActionReassigned    Action = "reassigned"
	ActionDeleted       Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionStatusChanged, ActionUpdated, ActionAssigned, ActionReassigned, ActionDeleted:
		return true
	}
	return false
}

// Field names recorded on history entries.
const (
	FieldStatus      = "status"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldAssignedTo  = "assignedTo"
)

// AllUsersMarker is the assignee label recorded for general tasks.
const AllUsersMarker = "all users"

// HistoryEntry is one immutable record of a single observed change to a task.
// TaskID is a weak reference: the entry outlives the task it points to.
type HistoryEntry struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Action      Action    `json:"action"`
	Field       string    `json:"field,omitempty"`
	OldValue    Value     `json:"old_value,omitempty"`
	NewValue    Value     `json:"new_value,omitempty"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryView is an entry with display fields resolved at read time.
// Task is nil when the task has since been deleted.
type HistoryView struct {
	HistoryEntry
	Task     *TaskSummary `json:"task,omitempty"`
	Username string       `json:"username"`
}

type ActionCount struct {
	Action Action `json:"action" bson:"_id"`
	Count  int64  `json:"count" bson:"count"`
}

type HistoryStats struct {
	Total   int64         `json:"total"`
	Actions []ActionCount `json:"actions"`
}

// Value is an opaque history value holding encoded JSON: usually a string,
// possibly a structured document. A nil Value means "not recorded".
type Value json.RawMessage

func StringValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value(b)
}

// JSONValue encodes any JSON-compatible value.
func JSONValue(v any) (Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode history value: %w", err)
	}
	return Value(b), nil
}

func (v Value) IsZero() bool {
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// String returns the unquoted text for string values and the raw JSON otherwise.
func (v Value) String() string {
	if v.IsZero() {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*v = nil
		return nil
	}
	*v = append((*v)[:0], b...)
	return nil
}

// Value implements driver.Valuer so entries can be stored in jsonb columns.
func (v Value) Value() (driver.Value, error) {
	if v.IsZero() {
		return nil, nil
	}
	return string(v), nil
}

func (v *Value) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append(Value(nil), x...)
	case string:
		*v = Value(x)
	default:
		return fmt.Errorf("cannot scan %T into history value", src)
	}
	return nil
}
