package core

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Event is a pending history record produced by a task lifecycle change.
type Event struct {
	TaskID    string
	ActorID   string
	ActorName string
	Action    Action
	Field     string
	OldValue  Value
	NewValue  Value
}

func (e Event) validate() error {
	if e.TaskID == "" || e.ActorID == "" || !e.Action.Valid() {
		return ErrEntryInvalidArgs
	}

	switch e.Action {
	case ActionCreated, ActionDeleted:
		if e.Field != "" || !e.OldValue.IsZero() || !e.NewValue.IsZero() {
			return fmt.Errorf("%w: %s takes no field or values", ErrEntryInvalidArgs, e.Action)
		}
	case ActionAssigned:
		if e.Field == "" || e.NewValue.IsZero() {
			return fmt.Errorf("%w: %s requires field and new value", ErrEntryInvalidArgs, e.Action)
		}
	default:
		if e.Field == "" || e.OldValue == nil || e.NewValue == nil {
			return fmt.Errorf("%w: %s requires field, old and new value", ErrEntryInvalidArgs, e.Action)
		}
	}
	return nil
}

// Describe renders the human-readable sentence stored with an entry.
func Describe(action Action, field string, oldValue, newValue Value, actorName string) string {
	switch action {
	case ActionCreated:
		return actorName + " created the task"
	case ActionStatusChanged:
		return fmt.Sprintf("%s changed status from %s to %s", actorName, oldValue, newValue)
	case ActionAssigned:
		return fmt.Sprintf("%s assigned the task to %s", actorName, newValue)
	case ActionReassigned:
		return fmt.Sprintf("%s reassigned the task from %s to %s", actorName, oldValue, newValue)
	case ActionUpdated:
		switch field {
		case FieldTitle:
			return actorName + " edited the title"
		case FieldDescription:
			return actorName + " edited the description"
		}
		return actorName + " modified the task"
	case ActionDeleted:
		return actorName + " deleted the task"
	default:
		return actorName + " acted on the task"
	}
}

// Recorder is the only writer of history entries.
type Recorder struct {
	log   *slog.Logger
	store HistoryStore

	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewRecorder(log *slog.Logger, store HistoryStore, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{log: log, store: store, now: now}
}

// stamp returns strictly increasing millisecond timestamps so entries written
// in sequence by this process keep their order in every store.
func (r *Recorder) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now().UTC().Truncate(time.Millisecond)
	if !t.After(r.last) {
		t = r.last.Add(time.Millisecond)
	}
	r.last = t
	return t
}

// Record describes and persists one event. Store failures are returned to the
// caller, which decides what a missing entry means for its mutation.
func (r *Recorder) Record(ctx context.Context, ev Event) (HistoryEntry, error) {
	if err := ev.validate(); err != nil {
		return HistoryEntry{}, err
	}

	entry := HistoryEntry{
		TaskID:      ev.TaskID,
		Action:      ev.Action,
		Field:       ev.Field,
		OldValue:    ev.OldValue,
		NewValue:    ev.NewValue,
		Description: Describe(ev.Action, ev.Field, ev.OldValue, ev.NewValue, ev.ActorName),
		UserID:      ev.ActorID,
		CreatedAt:   r.stamp(),
	}

	saved, err := r.store.CreateEntry(ctx, entry)
	if err != nil {
		r.log.Warn("history entry not recorded", "task_id", ev.TaskID, "action", ev.Action, "error", err)
		return HistoryEntry{}, err
	}

	r.log.Debug("history entry recorded", "id", saved.ID, "task_id", saved.TaskID, "description", saved.Description)
	return saved, nil
}

// RecordAll consumes events in order and stops at the first failure.
// Entries written before the failure are kept.
func (r *Recorder) RecordAll(ctx context.Context, events iter.Seq[Event]) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for ev := range events {
		e, err := r.Record(ctx, ev)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Recorder) retract(ctx context.Context, id string) error {
	if err := r.store.DeleteEntry(ctx, id); err != nil {
		r.log.Error("failed to retract history entry", "id", id, "error", err)
		return err
	}
	return nil
}

// AssigneeLabeler renders the assignee set of a task for history values.
type AssigneeLabeler func(t Task) string

func defaultAssigneeLabel(t Task) string {
	if t.Type == TypeGeneral {
		return AllUsersMarker
	}
	return strings.Join(t.AssignedTo, ", ")
}

func lifecycleEvent(taskID, actorID, actorName string, action Action) Event {
	return Event{TaskID: taskID, ActorID: actorID, ActorName: actorName, Action: action}
}

func sameAssignment(before, after Task) bool {
	if before.Type != after.Type || len(before.AssignedTo) != len(after.AssignedTo) {
		return false
	}
	a := slices.Clone(before.AssignedTo)
	b := slices.Clone(after.AssignedTo)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// diffAssignment is shared by creation-time fan-out and DiffTasks so both
// paths record assignment with the same rule.
func diffAssignment(before, after Task, actorID, actorName string, label AssigneeLabeler) (Event, bool) {
	if len(after.AssignedTo) == 0 && after.Type != TypeGeneral {
		return Event{}, false
	}
	if sameAssignment(before, after) {
		return Event{}, false
	}
	if label == nil {
		label = defaultAssigneeLabel
	}

	ev := Event{
		TaskID:    after.ID,
		ActorID:   actorID,
		ActorName: actorName,
		Action:    ActionAssigned,
		Field:     FieldAssignedTo,
		NewValue:  StringValue(label(after)),
	}
	if len(before.AssignedTo) > 0 {
		ev.Action = ActionReassigned
		ev.OldValue = StringValue(label(before))
	}
	return ev, true
}

// DiffTasks compares two observed states of the same task and yields one
// event per changed field: status, title, description, then assignment.
// The sequence is computed lazily from the two snapshots.
func DiffTasks(before, after Task, actorID, actorName string, label AssigneeLabeler) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		changed := func(action Action, field, oldValue, newValue string) Event {
			return Event{
				TaskID:    after.ID,
				ActorID:   actorID,
				ActorName: actorName,
				Action:    action,
				Field:     field,
				OldValue:  StringValue(oldValue),
				NewValue:  StringValue(newValue),
			}
		}

		if before.Status != after.Status {
			if !yield(changed(ActionStatusChanged, FieldStatus, string(before.Status), string(after.Status))) {
				return
			}
		}
		if before.Title != after.Title {
			if !yield(changed(ActionUpdated, FieldTitle, before.Title, after.Title)) {
				return
			}
		}
		if before.Description != after.Description {
			if !yield(changed(ActionUpdated, FieldDescription, before.Description, after.Description)) {
				return
			}
		}
		if ev, ok := diffAssignment(before, after, actorID, actorName, label); ok {
			yield(ev)
		}
	}
}
