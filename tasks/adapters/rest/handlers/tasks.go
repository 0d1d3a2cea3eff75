package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamtask/tasks/adapters/rest"
	"teamtask/tasks/core"
	"teamtask/tasks/pkg/res"
)

func parseStatus(s string) (core.TaskStatus, bool) {
	st := core.TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

func parseType(s string) (core.TaskType, bool) {
	if strings.TrimSpace(s) == "" {
		return core.TypeSpecific, true
	}
	tt := core.TaskType(strings.ToLower(strings.TrimSpace(s)))
	return tt, tt.Valid()
}

// mutationBody renders a committed mutation; a failed audit write becomes a warning.
func mutationBody(log *slog.Logger, r *http.Request, out core.Outcome, withHistory bool) map[string]any {
	body := map[string]any{"success": true, "data": out.Task}
	if withHistory {
		body["history"] = orEmpty(out.History)
	}
	if out.AuditErr != nil {
		log.Warn("task changed without complete history",
			"request_id", rest.RequestID(r.Context()), "task_id", out.Task.ID, "error", out.AuditErr)
		body["warning"] = "task saved but its history could not be fully recorded"
	}
	return body
}

func NewCreateTaskHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in rest.CreateTaskIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			rest.BadRequest(w, "invalid json")
			return
		}

		tt, ok := parseType(in.Type)
		if !ok {
			rest.BadRequest(w, "invalid type")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out, err := svc.CreateTask(ctx, mustActor(r), core.NewTask{
			Title:          in.Title,
			Description:    in.Description,
			Type:           tt,
			AssignedUserID: strings.TrimSpace(in.AssignedUserID),
		})
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, mutationBody(log, r, out, false), http.StatusCreated)
	}
}

func NewGetTaskHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			rest.BadRequest(w, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		t, err := svc.GetTask(ctx, mustActor(r), id)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": t}, http.StatusOK)
	}
}

func NewListTasksHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f core.ListTasksFilter

		if s := q.Get("status"); s != "" {
			st, ok := parseStatus(s)
			if !ok {
				rest.BadRequest(w, "invalid status")
				return
			}
			f.Status = &st
		}
		if v := strings.TrimSpace(q.Get("assignedUserId")); v != "" {
			f.AssignedTo = &v
		}
		f.Title = strings.TrimSpace(q.Get("title"))

		var ok bool
		if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if f.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		items, err := svc.ListTasks(ctx, mustActor(r), f)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": orEmpty(items), "count": len(items)}, http.StatusOK)
	}
}

// NewSearchTasksHandler answers 404 when no visible task title contains the term.
func NewSearchTasksHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := strings.TrimSpace(r.PathValue("title"))
		if title == "" {
			rest.BadRequest(w, "empty search term")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		items, err := svc.ListTasks(ctx, mustActor(r), core.ListTasksFilter{Title: title})
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		if len(items) == 0 {
			rest.WriteErr(w, log, core.ErrTaskNotFound)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": items, "count": len(items)}, http.StatusOK)
	}
}

func NewPatchTaskHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			rest.BadRequest(w, "invalid id")
			return
		}

		var in rest.PatchTaskIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			rest.BadRequest(w, "invalid json")
			return
		}

		p := core.TaskPatch{Title: in.Title, Description: in.Description}
		if in.Status != nil {
			st, ok := parseStatus(*in.Status)
			if !ok {
				rest.BadRequest(w, "invalid status")
				return
			}
			p.Status = &st
		}

		if p.Title == nil && p.Description == nil && p.Status == nil {
			rest.BadRequest(w, "no fields to update")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out, err := svc.PatchTask(ctx, mustActor(r), id, p)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, mutationBody(log, r, out, true), http.StatusOK)
	}
}

func NewDeleteTaskHandler(log *slog.Logger, svc Tasks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			rest.BadRequest(w, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := svc.DeleteTask(ctx, mustActor(r), id); err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true}, http.StatusOK)
	}
}

// intParam parses an optional non-negative integer query parameter.
func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		rest.BadRequest(w, "invalid "+name)
		return 0, false
	}
	return n, true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
