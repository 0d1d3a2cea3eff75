package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"teamtask/tasks/core"
)

type DB struct {
	log  *slog.Logger
	conn *sqlx.DB
}

func New(log *slog.Logger, address string) (*DB, error) {
	db, err := sqlx.Connect("pgx", address)
	if err != nil {
		log.Error("connection problem", "error", err)
		return nil, err
	}
	return &DB{log: log, conn: db}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: generate id: %w", core.ErrStore, err)
	}
	return id.String(), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStore, op, err)
}

// Users

const userColumns = `id::text AS id, username, password_hash, role, created_at`

func (db *DB) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	id, err := newID()
	if err != nil {
		return core.User{}, err
	}

	const q = `
		INSERT INTO users(id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns + `;
	`

	var out core.User
	if err := db.conn.GetContext(ctx, &out, q, id, u.Username, u.PasswordHash, string(u.Role)); err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrUserAlreadyExists
		}
		if isCheckViolation(err) {
			return core.User{}, core.ErrUserInvalidArgs
		}
		return core.User{}, storeErr("insert user", err)
	}
	return out, nil
}

func (db *DB) GetUser(ctx context.Context, id string) (core.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.User{}, core.ErrUserNotFound
	}

	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u core.User
	if err := db.conn.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, storeErr("get user", err)
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	var u core.User
	if err := db.conn.GetContext(ctx, &u, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, storeErr("get user by username", err)
	}
	return u, nil
}

func (db *DB) ListUsers(ctx context.Context, f core.ListUsersFilter) ([]core.User, error) {
	var (
		q    = `SELECT ` + userColumns + ` FROM users`
		args []any
	)
	if len(f.IDs) > 0 {
		q += ` WHERE id::text = ANY($1)`
		args = append(args, f.IDs)
	}
	q += ` ORDER BY username ASC`

	var out []core.User
	if err := db.conn.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, storeErr("list users", err)
	}
	return out, nil
}

// Tasks

// idList is a jsonb array of ids.
type idList []string

func (l idList) Value() (driver.Value, error) {
	if l == nil {
		l = idList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *idList) Scan(src any) error {
	var b []byte
	switch x := src.(type) {
	case nil:
		*l = idList{}
		return nil
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return fmt.Errorf("cannot scan %T into id list", src)
	}
	return json.Unmarshal(b, (*[]string)(l))
}

type taskRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	Type        string    `db:"type"`
	AssignedTo  idList    `db:"assigned_to"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r taskRow) toCore() core.Task {
	return core.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      core.TaskStatus(r.Status),
		Type:        core.TaskType(r.Type),
		AssignedTo:  []string(r.AssignedTo),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const taskColumns = `id::text AS id, title, COALESCE(description, '') AS description, status, type,
	assigned_to, created_by::text AS created_by, created_at, updated_at`

func (db *DB) CreateTask(ctx context.Context, t core.Task) (core.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}
	if t.Status == "" {
		t.Status = core.StatusTODO
	}

	id, err := newID()
	if err != nil {
		return core.Task{}, err
	}

	const q = `
		INSERT INTO tasks(id, title, description, status, type, assigned_to, created_by)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::jsonb, $7)
		RETURNING ` + taskColumns + `;
	`

	var row taskRow
	err = db.conn.GetContext(ctx, &row, q,
		id, t.Title, strings.TrimSpace(t.Description), string(t.Status), string(t.Type), idList(t.AssignedTo), t.CreatedBy)
	if err != nil {
		if isCheckViolation(err) {
			return core.Task{}, core.ErrTaskInvalidArgs
		}
		if isForeignKeyViolation(err) {
			return core.Task{}, core.ErrUserNotFound
		}
		return core.Task{}, storeErr("insert task", err)
	}
	return row.toCore(), nil
}

func (db *DB) GetTask(ctx context.Context, id string) (core.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Task{}, core.ErrTaskNotFound
	}

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var row taskRow
	if err := db.conn.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Task{}, core.ErrTaskNotFound
		}
		return core.Task{}, storeErr("get task", err)
	}
	return row.toCore(), nil
}

func (db *DB) ListTasks(ctx context.Context, f core.ListTasksFilter) ([]core.Task, error) {
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		sb   strings.Builder
		args []any
		n    = 1
	)

	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)

	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		sb.WriteString(fmt.Sprintf(" AND id::text = ANY($%d)", n))
		n++
	}

	if f.Status != nil {
		args = append(args, string(*f.Status))
		sb.WriteString(fmt.Sprintf(" AND status = $%d", n))
		n++
	}

	if f.AssignedTo != nil {
		args = append(args, *f.AssignedTo)
		sb.WriteString(fmt.Sprintf(" AND assigned_to @> jsonb_build_array($%d::text)", n))
		n++
	}

	if f.VisibleTo != nil {
		args = append(args, *f.VisibleTo)
		sb.WriteString(fmt.Sprintf(" AND (type = 'general' OR assigned_to @> jsonb_build_array($%d::text))", n))
		n++
	}

	if f.Title != "" {
		args = append(args, "%"+escapeLike(f.Title)+"%")
		sb.WriteString(fmt.Sprintf(" AND title ILIKE $%d", n))
		n++
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", n))
		n++
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", n))
	}

	var rows []taskRow
	if err := db.conn.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, storeErr("list tasks", err)
	}

	out := make([]core.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (db *DB) UpdateTask(ctx context.Context, t core.Task) (core.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.ID == "" || t.Title == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}
	if _, err := uuid.Parse(t.ID); err != nil {
		return core.Task{}, core.ErrTaskNotFound
	}

	const q = `
		UPDATE tasks
		SET title = $2,
		    description = NULLIF($3, ''),
		    status = $4,
		    assigned_to = $5::jsonb,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + taskColumns + `;
	`

	var row taskRow
	err := db.conn.GetContext(ctx, &row, q,
		t.ID, t.Title, strings.TrimSpace(t.Description), string(t.Status), idList(t.AssignedTo))
	if err != nil {
		if isCheckViolation(err) {
			return core.Task{}, core.ErrTaskInvalidArgs
		}
		if errors.Is(err, sql.ErrNoRows) {
			return core.Task{}, core.ErrTaskNotFound
		}
		return core.Task{}, storeErr("update task", err)
	}
	return row.toCore(), nil
}

func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrTaskNotFound
	}

	const q = `DELETE FROM tasks WHERE id = $1`

	res, err := db.conn.ExecContext(ctx, q, id)
	if err != nil {
		return storeErr("delete task", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// History

type entryRow struct {
	ID          string         `db:"id"`
	TaskID      string         `db:"task_id"`
	Action      string         `db:"action"`
	Field       sql.NullString `db:"field"`
	OldValue    core.Value     `db:"old_value"`
	NewValue    core.Value     `db:"new_value"`
	Description string         `db:"description"`
	UserID      string         `db:"user_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r entryRow) toCore() core.HistoryEntry {
	return core.HistoryEntry{
		ID:          r.ID,
		TaskID:      r.TaskID,
		Action:      core.Action(r.Action),
		Field:       r.Field.String,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Description: r.Description,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
	}
}

const entryColumns = `id::text AS id, task_id::text AS task_id, action, field, old_value, new_value,
	description, user_id::text AS user_id, created_at`

func (db *DB) CreateEntry(ctx context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	id, err := newID()
	if err != nil {
		return core.HistoryEntry{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO task_history(id, task_id, action, field, old_value, new_value, description, user_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb, $6::jsonb, $7, $8, $9)
		RETURNING ` + entryColumns + `;
	`

	var row entryRow
	err = db.conn.GetContext(ctx, &row, q,
		id, e.TaskID, string(e.Action), e.Field, e.OldValue, e.NewValue, e.Description, e.UserID, e.CreatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return core.HistoryEntry{}, core.ErrEntryInvalidArgs
		}
		return core.HistoryEntry{}, storeErr("insert history entry", err)
	}
	return row.toCore(), nil
}

func (db *DB) GetEntry(ctx context.Context, id string) (core.HistoryEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.HistoryEntry{}, core.ErrEntryNotFound
	}

	q := `SELECT ` + entryColumns + ` FROM task_history WHERE id = $1`

	var row entryRow
	if err := db.conn.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.HistoryEntry{}, core.ErrEntryNotFound
		}
		return core.HistoryEntry{}, storeErr("get history entry", err)
	}
	return row.toCore(), nil
}

func (db *DB) ListEntries(ctx context.Context, f core.HistoryFilter) ([]core.HistoryEntry, error) {
	if f.TaskIDs != nil && len(f.TaskIDs) == 0 {
		return []core.HistoryEntry{}, nil
	}

	var (
		sb   strings.Builder
		args []any
		n    = 1
	)

	sb.WriteString(`SELECT ` + entryColumns + ` FROM task_history WHERE 1=1`)

	if f.TaskIDs != nil {
		args = append(args, f.TaskIDs)
		sb.WriteString(fmt.Sprintf(" AND task_id::text = ANY($%d)", n))
		n++
	}

	if f.Action != nil {
		args = append(args, string(*f.Action))
		sb.WriteString(fmt.Sprintf(" AND action = $%d", n))
		n++
	}

	if f.Start != nil {
		args = append(args, *f.Start)
		sb.WriteString(fmt.Sprintf(" AND created_at >= $%d", n))
		n++
	}

	if f.End != nil {
		args = append(args, *f.End)
		sb.WriteString(fmt.Sprintf(" AND created_at <= $%d", n))
		n++
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", n))
		n++
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", n))
	}

	var rows []entryRow
	if err := db.conn.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, storeErr("list history", err)
	}

	out := make([]core.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (db *DB) DeleteEntry(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrEntryNotFound
	}

	const q = `DELETE FROM task_history WHERE id = $1`

	res, err := db.conn.ExecContext(ctx, q, id)
	if err != nil {
		return storeErr("delete history entry", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}

func (db *DB) CountEntriesByAction(ctx context.Context) ([]core.ActionCount, error) {
	const q = `
		SELECT action, COUNT(*) AS count
		FROM task_history
		GROUP BY action
		ORDER BY count DESC, action ASC;
	`

	var out []core.ActionCount
	if err := db.conn.SelectContext(ctx, &out, q); err != nil {
		return nil, storeErr("count history", err)
	}
	return out, nil
}

// pg helpers

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
