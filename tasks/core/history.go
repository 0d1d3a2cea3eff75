package core

import (
	"context"
	"slices"
	"sort"
	"strings"
)

// QueryHistory returns entries visible to the actor, newest first.
//
// Managers see everything. Other users see entries of tasks assigned to them
// or of type general; an explicit task filter is intersected with that set
// rather than replacing it.
func (s *Service) QueryHistory(ctx context.Context, actor Actor, q HistoryQuery) ([]HistoryView, error) {
	if q.Action != nil && !q.Action.Valid() {
		return nil, ErrEntryInvalidArgs
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return nil, ErrEntryInvalidArgs
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, ErrEntryInvalidArgs
	}

	f := HistoryFilter{
		Action: q.Action,
		Start:  q.Start,
		End:    q.End,
		Limit:  clampLimit(q.Limit, s.historyLimit, s.historyLimit),
		Offset: q.Offset,
	}

	if q.TaskID != nil {
		f.TaskIDs = []string{strings.TrimSpace(*q.TaskID)}
	}

	if !actor.IsManager() {
		visible, err := s.visibleTaskIDs(ctx, actor)
		if err != nil {
			return nil, err
		}
		if f.TaskIDs == nil {
			f.TaskIDs = visible
		} else {
			f.TaskIDs = intersect(f.TaskIDs, visible)
		}
	}

	if f.TaskIDs != nil && len(f.TaskIDs) == 0 {
		return []HistoryView{}, nil
	}

	entries, err := s.db.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, entries)
}

// TaskHistory returns the summary of a task and all of its entries,
// newest first, after checking the actor may see the task.
func (s *Service) TaskHistory(ctx context.Context, actor Actor, taskID string) (TaskSummary, []HistoryView, error) {
	task, err := s.GetTask(ctx, actor, taskID)
	if err != nil {
		return TaskSummary{}, nil, err
	}

	entries, err := s.db.ListEntries(ctx, HistoryFilter{TaskIDs: []string{task.ID}})
	if err != nil {
		return TaskSummary{}, nil, err
	}

	views, err := s.resolve(ctx, entries)
	if err != nil {
		return TaskSummary{}, nil, err
	}
	return task.Summary(), views, nil
}

func (s *Service) DeleteEntry(ctx context.Context, actor Actor, id string) error {
	if !actor.IsManager() {
		return ErrForbidden
	}
	if strings.TrimSpace(id) == "" {
		return ErrEntryInvalidArgs
	}
	if err := s.db.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.log.Info("history entry deleted", "id", id, "actor", actor.ID)
	return nil
}

func (s *Service) HistoryStats(ctx context.Context, actor Actor) (HistoryStats, error) {
	if !actor.IsManager() {
		return HistoryStats{}, ErrForbidden
	}

	counts, err := s.db.CountEntriesByAction(ctx)
	if err != nil {
		return HistoryStats{}, err
	}

	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Action < counts[j].Action
	})

	st := HistoryStats{Actions: counts}
	for _, c := range counts {
		st.Total += c.Count
	}
	return st, nil
}

func (s *Service) visibleTaskIDs(ctx context.Context, actor Actor) ([]string, error) {
	tasks, err := s.db.ListTasks(ctx, ListTasksFilter{VisibleTo: &actor.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// resolve attaches current task titles/statuses and usernames, so renamed
// tasks and users show their present names on old entries.
func (s *Service) resolve(ctx context.Context, entries []HistoryEntry) ([]HistoryView, error) {
	out := make([]HistoryView, 0, len(entries))
	if len(entries) == 0 {
		return out, nil
	}

	var taskIDs, userIDs []string
	for _, e := range entries {
		taskIDs = append(taskIDs, e.TaskID)
		userIDs = append(userIDs, e.UserID)
	}
	taskIDs = unique(taskIDs)
	userIDs = unique(userIDs)

	tasks, err := s.db.ListTasks(ctx, ListTasksFilter{IDs: taskIDs, Limit: len(taskIDs)})
	if err != nil {
		return nil, err
	}
	users, err := s.db.ListUsers(ctx, ListUsersFilter{IDs: userIDs})
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]TaskSummary, len(tasks))
	for _, t := range tasks {
		summaries[t.ID] = t.Summary()
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	for _, e := range entries {
		v := HistoryView{HistoryEntry: e, Username: names[e.UserID]}
		if sum, ok := summaries[e.TaskID]; ok {
			v.Task = &sum
		}
		out = append(out, v)
	}
	return out, nil
}

func unique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func intersect(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, id := range a {
		if slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}
