package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"
)

type stubHistory struct {
	entries []HistoryEntry
	failAt  int // 1-based call that fails; 0 never fails
	calls   int
}

func (s *stubHistory) CreateEntry(_ context.Context, e HistoryEntry) (HistoryEntry, error) {
	s.calls++
	if s.failAt != 0 && s.calls >= s.failAt {
		return HistoryEntry{}, ErrStore
	}
	e.ID = strconv.Itoa(s.calls)
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *stubHistory) GetEntry(context.Context, string) (HistoryEntry, error) {
	return HistoryEntry{}, ErrEntryNotFound
}

func (s *stubHistory) ListEntries(context.Context, HistoryFilter) ([]HistoryEntry, error) {
	return s.entries, nil
}

func (s *stubHistory) DeleteEntry(context.Context, string) error {
	return nil
}

func (s *stubHistory) CountEntriesByAction(context.Context) ([]ActionCount, error) {
	return nil, nil
}

func newTestRecorder(store HistoryStore, now func() time.Time) *Recorder {
	return NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), store, now)
}

func collect(seq func(func(Event) bool)) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action Action
		field  string
		from   Value
		to     Value
		want   string
	}{
		{ActionCreated, "", nil, nil, "ann created the task"},
		{ActionStatusChanged, FieldStatus, StringValue("todo"), StringValue("done"), "ann changed status from todo to done"},
		{ActionAssigned, FieldAssignedTo, nil, StringValue("bob"), "ann assigned the task to bob"},
		{ActionReassigned, FieldAssignedTo, StringValue("bob"), StringValue("eve"), "ann reassigned the task from bob to eve"},
		{ActionUpdated, FieldTitle, StringValue("a"), StringValue("b"), "ann edited the title"},
		{ActionUpdated, FieldDescription, StringValue(""), StringValue("b"), "ann edited the description"},
		{ActionUpdated, "priority", StringValue("low"), StringValue("high"), "ann modified the task"},
		{ActionDeleted, "", nil, nil, "ann deleted the task"},
	}

	for _, tt := range tests {
		if got := Describe(tt.action, tt.field, tt.from, tt.to, "ann"); got != tt.want {
			t.Fatalf("%s/%s: expected %q, got %q", tt.action, tt.field, tt.want, got)
		}
	}
}

func TestDiffTasks_Order(t *testing.T) {
	t.Parallel()

	before := Task{ID: "t1", Title: "a", Description: "x", Status: StatusTODO, Type: TypeSpecific, AssignedTo: []string{"u1"}}
	after := before
	after.Title = "b"
	after.Description = "y"
	after.Status = StatusDone
	after.AssignedTo = []string{"u2"}

	events := collect(DiffTasks(before, after, "m", "boss", nil))

	want := []struct {
		action Action
		field  string
	}{
		{ActionStatusChanged, FieldStatus},
		{ActionUpdated, FieldTitle},
		{ActionUpdated, FieldDescription},
		{ActionReassigned, FieldAssignedTo},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		if events[i].Action != w.action || events[i].Field != w.field {
			t.Fatalf("event %d: expected %s/%s, got %s/%s", i, w.action, w.field, events[i].Action, events[i].Field)
		}
		if events[i].TaskID != "t1" || events[i].ActorID != "m" {
			t.Fatalf("event %d: unexpected identity %+v", i, events[i])
		}
	}
	if events[3].OldValue.String() != "u1" || events[3].NewValue.String() != "u2" {
		t.Fatalf("unexpected reassignment values: %+v", events[3])
	}
}

func TestDiffTasks_NoChange(t *testing.T) {
	t.Parallel()

	task := Task{ID: "t1", Title: "a", Status: StatusTODO, Type: TypeSpecific, AssignedTo: []string{"u1", "u2"}}
	same := task
	same.AssignedTo = []string{"u2", "u1"}

	if events := collect(DiffTasks(task, same, "m", "boss", nil)); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestDiffTasks_StopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	before := Task{ID: "t1", Title: "a", Status: StatusTODO}
	after := Task{ID: "t1", Title: "b", Status: StatusDone}

	var seen int
	for range DiffTasks(before, after, "m", "boss", nil) {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected to stop after 1 event, got %d", seen)
	}
}

func TestDiffAssignment(t *testing.T) {
	t.Parallel()

	label := func(task Task) string {
		if task.Type == TypeGeneral {
			return AllUsersMarker
		}
		return "name-of-" + task.AssignedTo[0]
	}

	ev, ok := diffAssignment(Task{ID: "t1"}, Task{ID: "t1", Type: TypeSpecific, AssignedTo: []string{"u1"}}, "m", "boss", label)
	if !ok || ev.Action != ActionAssigned || !ev.OldValue.IsZero() || ev.NewValue.String() != "name-of-u1" {
		t.Fatalf("unexpected first assignment: %+v (ok=%v)", ev, ok)
	}

	ev, ok = diffAssignment(Task{ID: "t1"}, Task{ID: "t1", Type: TypeGeneral}, "m", "boss", label)
	if !ok || ev.NewValue.String() != AllUsersMarker {
		t.Fatalf("general task without users must still be assigned to all users: %+v", ev)
	}

	if _, ok := diffAssignment(Task{ID: "t1"}, Task{ID: "t1", Type: TypeSpecific}, "m", "boss", label); ok {
		t.Fatalf("no assignee must not produce an event")
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"created", Event{TaskID: "t", ActorID: "u", Action: ActionCreated}, true},
		{"created with field", Event{TaskID: "t", ActorID: "u", Action: ActionCreated, Field: FieldTitle}, false},
		{"missing task", Event{ActorID: "u", Action: ActionCreated}, false},
		{"unknown action", Event{TaskID: "t", ActorID: "u", Action: "archived"}, false},
		{"assigned", Event{TaskID: "t", ActorID: "u", Action: ActionAssigned, Field: FieldAssignedTo, NewValue: StringValue("x")}, true},
		{"assigned without value", Event{TaskID: "t", ActorID: "u", Action: ActionAssigned, Field: FieldAssignedTo}, false},
		{"updated from empty", Event{TaskID: "t", ActorID: "u", Action: ActionUpdated, Field: FieldDescription, OldValue: StringValue(""), NewValue: StringValue("x")}, true},
		{"updated without old", Event{TaskID: "t", ActorID: "u", Action: ActionUpdated, Field: FieldTitle, NewValue: StringValue("x")}, false},
	}

	for _, tt := range tests {
		err := tt.ev.validate()
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrEntryInvalidArgs) {
			t.Fatalf("%s: expected ErrEntryInvalidArgs, got %v", tt.name, err)
		}
	}
}

func TestRecorder_StampsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &stubHistory{}
	r := newTestRecorder(store, func() time.Time { return fixed })

	var prev time.Time
	for i := 0; i < 5; i++ {
		e, err := r.Record(context.Background(), Event{TaskID: "t", ActorID: "u", ActorName: "ann", Action: ActionCreated})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
		if i > 0 && !e.CreatedAt.After(prev) {
			t.Fatalf("timestamp %v is not after %v", e.CreatedAt, prev)
		}
		if e.Description != "ann created the task" {
			t.Fatalf("unexpected description %q", e.Description)
		}
		prev = e.CreatedAt
	}
}

func TestRecorder_RecordAllStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	store := &stubHistory{failAt: 2}
	r := newTestRecorder(store, time.Now)

	before := Task{ID: "t1", Title: "a", Status: StatusTODO}
	after := Task{ID: "t1", Title: "b", Description: "d", Status: StatusDone}

	saved, err := r.RecordAll(context.Background(), DiffTasks(before, after, "u", "ann", nil))
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(saved) != 1 || saved[0].Action != ActionStatusChanged {
		t.Fatalf("expected only the status entry to be kept, got %+v", saved)
	}
	if store.calls != 2 {
		t.Fatalf("expected recording to stop after the failing write, got %d calls", store.calls)
	}
}

func TestValue(t *testing.T) {
	t.Parallel()

	if v := StringValue("in_progress"); v.String() != "in_progress" || string(v) != `"in_progress"` {
		t.Fatalf("unexpected string value %s", v)
	}

	doc, err := JSONValue(map[string]int{"points": 3})
	if err != nil {
		t.Fatalf("JSONValue returned error: %v", err)
	}
	if doc.String() != `{"points":3}` {
		t.Fatalf("structured values must render as JSON, got %s", doc.String())
	}

	var empty Value
	if !empty.IsZero() || !Value("null").IsZero() || StringValue("").IsZero() {
		t.Fatalf("unexpected IsZero results")
	}

	var scanned Value
	if err := scanned.Scan([]byte(`"x"`)); err != nil || scanned.String() != "x" {
		t.Fatalf("unexpected scan result %q, %v", scanned, err)
	}
	if err := scanned.Scan(42); err == nil {
		t.Fatalf("expected error scanning an int")
	}
}
