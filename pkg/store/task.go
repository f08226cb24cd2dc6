package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	if t.ID == "" {
		t.ID = id.New()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, channel, sender_id, reply_target, description, due_at, repeat, task_type, project, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Channel, t.SenderID, t.ReplyTarget, t.Description, t.DueAt, t.Repeat, t.TaskType, t.Project, t.Status, t.CreatedAt)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "create task")
	}
	return t, nil
}

// DueTasks returns all pending tasks whose due_at has arrived, ordered by
// due time and then id (the scheduler's tie-break, §5).
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, sender_id, reply_target, description, due_at, repeat, task_type, project, status, created_at
		FROM tasks WHERE status = ? AND due_at <= ? ORDER BY due_at ASC, id ASC`, TaskPending, now)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query due tasks")
	}
	defer rows.Close()
	return scanTasks(rows)
}

// PendingTasksFor returns a sender's still-open tasks, for context assembly
// and for CANCEL_TASK:/UPDATE_TASK: prefix resolution.
func (s *Store) PendingTasksFor(ctx context.Context, senderID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, sender_id, reply_target, description, due_at, repeat, task_type, project, status, created_at
		FROM tasks WHERE sender_id = ? AND status = ? ORDER BY due_at ASC`, senderID, TaskPending)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query pending tasks")
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Channel, &t.SenderID, &t.ReplyTarget, &t.Description, &t.DueAt, &t.Repeat, &t.TaskType, &t.Project, &t.Status, &t.CreatedAt); err != nil {
			return nil, omegaerr.Memoryf(err, "scan task")
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// FindTaskByIDPrefix resolves a CANCEL_TASK:/UPDATE_TASK: payload (an id
// prefix) to exactly one task belonging to senderID. Ambiguous or absent
// prefixes return (nil, nil) so callers can render a "not found" marker result.
func (s *Store) FindTaskByIDPrefix(ctx context.Context, senderID, prefix string) (*Task, error) {
	tasks, err := s.PendingTasksFor(ctx, senderID)
	if err != nil {
		return nil, err
	}
	var match *Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, prefix) {
			if match != nil {
				return nil, nil // ambiguous
			}
			match = t
		}
	}
	return match, nil
}

// CompleteTask marks a task done, or — for repeating tasks — advances
// due_at by exactly one period from its previous due_at (never from
// "now", so drift is bounded per the testable property in §8).
func (s *Store) CompleteTask(ctx context.Context, taskID string, repeat Repeat) error {
	if repeat == RepeatOnce || repeat == "" {
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, TaskDone, taskID)
		if err != nil {
			return omegaerr.Memoryf(err, "complete task %s", taskID)
		}
		return nil
	}

	var due time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT due_at FROM tasks WHERE id = ?`, taskID).Scan(&due); err != nil {
		return omegaerr.Memoryf(err, "read task %s due date", taskID)
	}
	next := AdvanceByPeriod(due, repeat)
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET due_at = ?, status = ? WHERE id = ?`, next, TaskPending, taskID)
	if err != nil {
		return omegaerr.Memoryf(err, "advance repeating task %s", taskID)
	}
	return nil
}

// AdvanceByPeriod returns the instant exactly one repeat period after due,
// using calendar-day/week/month arithmetic. Monthly advancement clamps to
// the target month's last day when due's day-of-month overflows it (e.g.
// Jan 31 + monthly → Feb 28/29), per the DST/month-end design note in §9.
func AdvanceByPeriod(due time.Time, repeat Repeat) time.Time {
	switch repeat {
	case RepeatDaily:
		return due.AddDate(0, 0, 1)
	case RepeatWeekly:
		return due.AddDate(0, 0, 7)
	case RepeatMonthly:
		return addCalendarMonth(due)
	default:
		return due
	}
}

func addCalendarMonth(due time.Time) time.Time {
	y, m, d := due.Date()
	firstOfTarget := time.Date(y, m+1, 1, due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), due.Location())
	lastDayOfTarget := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDayOfTarget {
		d = lastDayOfTarget
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), due.Location())
}

// DeferTask moves due_at forward without advancing repeat — used to push
// a task past a quiet-hours window.
func (s *Store) DeferTask(ctx context.Context, taskID string, newDue time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET due_at = ? WHERE id = ?`, newDue, taskID)
	if err != nil {
		return omegaerr.Memoryf(err, "defer task %s", taskID)
	}
	return nil
}

// CancelTask marks a task done without advancing its repeat, used by
// CANCEL_TASK:.
func (s *Store) CancelTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, TaskDone, taskID)
	if err != nil {
		return omegaerr.Memoryf(err, "cancel task %s", taskID)
	}
	return nil
}

// UpdateTaskFields patches non-empty fields of a task; empty strings mean
// "unchanged", matching UPDATE_TASK:'s payload semantics.
func (s *Store) UpdateTaskFields(ctx context.Context, taskID, description string, due *time.Time, repeat Repeat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return omegaerr.Memoryf(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if description != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET description = ? WHERE id = ?`, description, taskID); err != nil {
			return omegaerr.Memoryf(err, "update task %s description", taskID)
		}
	}
	if due != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET due_at = ? WHERE id = ?`, *due, taskID); err != nil {
			return omegaerr.Memoryf(err, "update task %s due date", taskID)
		}
	}
	if repeat != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET repeat = ? WHERE id = ?`, repeat, taskID); err != nil {
			return omegaerr.Memoryf(err, "update task %s repeat", taskID)
		}
	}
	if err := tx.Commit(); err != nil {
		return omegaerr.Memoryf(err, "commit transaction")
	}
	return nil
}
