package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teamtask/tasks/adapters/rest"
	"teamtask/tasks/core"
	"teamtask/tasks/pkg/res"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, true
}

func NewQueryHistoryHandler(log *slog.Logger, svc History, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var hq core.HistoryQuery

		if v := strings.TrimSpace(q.Get("taskId")); v != "" {
			hq.TaskID = &v
		}
		if v := strings.TrimSpace(q.Get("action")); v != "" {
			a := core.Action(v)
			if !a.Valid() {
				rest.BadRequest(w, "invalid action")
				return
			}
			hq.Action = &a
		}
		if v := q.Get("startDate"); v != "" {
			t, ok := parseDate(v, false)
			if !ok {
				rest.BadRequest(w, "invalid startDate")
				return
			}
			hq.Start = &t
		}
		if v := q.Get("endDate"); v != "" {
			t, ok := parseDate(v, true)
			if !ok {
				rest.BadRequest(w, "invalid endDate")
				return
			}
			hq.End = &t
		}

		var ok bool
		if hq.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if hq.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		items, err := svc.QueryHistory(ctx, mustActor(r), hq)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": orEmpty(items), "count": len(items)}, http.StatusOK)
	}
}

func NewTaskHistoryHandler(log *slog.Logger, svc History, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("taskId"))
		if id == "" {
			rest.BadRequest(w, "invalid task id")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		task, items, err := svc.TaskHistory(ctx, mustActor(r), id)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{
			"success": true,
			"data":    orEmpty(items),
			"count":   len(items),
			"task":    task,
		}, http.StatusOK)
	}
}

func NewHistoryStatsHandler(log *slog.Logger, svc History, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		st, err := svc.HistoryStats(ctx, mustActor(r))
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": st}, http.StatusOK)
	}
}

func NewDeleteEntryHandler(log *slog.Logger, svc History, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			rest.BadRequest(w, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := svc.DeleteEntry(ctx, mustActor(r), id); err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true}, http.StatusOK)
	}
}
