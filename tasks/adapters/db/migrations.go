package db

import (
	_ "embed"
	"fmt"
)

//go:embed migrations/01_create_users.up.sql
var createUsersUp string

//go:embed migrations/02_create_tasks.up.sql
var createTasksUp string

//go:embed migrations/03_create_task_history.up.sql
var createTaskHistoryUp string

// Migrate applies the users, tasks and task_history schema.
func (db *DB) Migrate() error {
	db.log.Debug("running tasksDB migrations")

	steps := []struct {
		name string
		sql  string
	}{
		{"users", createUsersUp},
		{"tasks", createTasksUp},
		{"task_history", createTaskHistoryUp},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("apply %s migration: %w", step.name, err)
		}
	}

	db.log.Debug("tasksDB migrations finished")
	return nil
}
