package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flariki/internal/models"
)

// ErrNoAssignees is returned when a PERSONAL task would be published to nobody.
var ErrNoAssignees = errors.New("personal task has no assignees")

const taskColumns = `t.id, t.title, t.description, t.requirements, t.type, t.status, t.reward_flariki, t.deadline,
	t.created_by_id, t.published_at, t.published_by_id, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM reports r WHERE r.task_id = t.id)`

// visibleTo: общие задания видны всем, персональные только назначенным.
// Единственный параметр: id пользователя.
const visibleTo = `(t.type = 'GENERAL' OR (t.type = 'PERSONAL' AND EXISTS (
	SELECT 1 FROM task_assignments a WHERE a.task_id = t.id AND a.user_id = ?)))`

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Requirements, &t.Type, &t.Status, &t.RewardFlariki,
		&t.Deadline, &t.CreatedByID, &t.PublishedAt, &t.PublishedByID, &t.CreatedAt, &t.UpdatedAt, &t.ReportCount)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateTask(ctx context.Context, task *models.Task, assigneeIDs []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ts := now()
	task.ID = newID()
	task.CreatedAt = ts
	task.UpdatedAt = ts
	if task.Status == "" {
		task.Status = models.TaskDraft
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (id, title, description, requirements, type, status, reward_flariki,
		deadline, created_by_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Requirements, task.Type, task.Status, task.RewardFlariki,
		task.Deadline, task.CreatedByID, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	assignments, err := replaceAssignments(ctx, tx, task.ID, assigneeIDs, ts)
	if err != nil {
		return err
	}
	task.Assignments = assignments

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	return nil
}

func replaceAssignments(ctx context.Context, tx *sql.Tx, taskID string, userIDs []string, ts time.Time) ([]models.Assignment, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignments WHERE task_id = ?`, taskID); err != nil {
		return nil, fmt.Errorf("failed to clear assignments: %w", err)
	}

	seen := make(map[string]bool, len(userIDs))
	assignments := make([]models.Assignment, 0, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		a := models.Assignment{ID: newID(), TaskID: taskID, UserID: userID, AssignedAt: ts}
		_, err := tx.ExecContext(ctx, `INSERT INTO task_assignments (id, task_id, user_id, assigned_at) VALUES (?, ?, ?, ?)`,
			a.ID, a.TaskID, a.UserID, a.AssignedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("assignee %s: %w", userID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to insert assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return db.getTask(ctx, db, id)
}

func (db *DB) getTask(ctx context.Context, q querier, id string) (*models.Task, error) {
	task, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	task.Assignments, err = listAssignments(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func listAssignments(ctx context.Context, q querier, taskID string) ([]models.Assignment, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, task_id, user_id, assigned_at FROM task_assignments
		WHERE task_id = ? ORDER BY assigned_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UserID, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := db.getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil && !models.CanTransitionTask(current.Status, *upd.Status) {
		return nil, &TransitionError{Entity: "task", From: string(current.Status), To: string(*upd.Status)}
	}

	sets := []string{}
	args := []interface{}{}
	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Requirements != nil {
		set("requirements", models.StringPtr(*upd.Requirements))
	}
	if upd.Type != nil {
		set("type", *upd.Type)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	switch {
	case upd.ClearReward:
		set("reward_flariki", nil)
	case upd.RewardFlariki != nil:
		set("reward_flariki", *upd.RewardFlariki)
	}
	switch {
	case upd.ClearDeadline:
		set("deadline", nil)
	case upd.Deadline != nil:
		set("deadline", *upd.Deadline)
	}

	ts := now()
	set("updated_at", ts)
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if upd.ReplaceAssignments {
		if _, err := replaceAssignments(ctx, tx, id, upd.AssignedUserIDs, ts); err != nil {
			return nil, err
		}
	}

	task, err := db.getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task that has no reports.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var reports int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE task_id = ?`, id).Scan(&reports); err != nil {
		return fmt.Errorf("failed to count task reports: %w", err)
	}
	if reports > 0 {
		return ErrInUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// PublishTask moves a DRAFT task to ACTIVE.
func (db *DB) PublishTask(ctx context.Context, id, publisherID string) (*models.Task, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	task, err := db.getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskDraft {
		return nil, &TransitionError{Entity: "task", From: string(task.Status), To: string(models.TaskActive)}
	}
	if task.Type == models.TaskPersonal && len(task.Assignments) == 0 {
		return nil, ErrNoAssignees
	}

	ts := now()
	_, err = tx.ExecContext(ctx, `UPDATE tasks SET status = ?, published_at = ?, published_by_id = ?, updated_at = ? WHERE id = ?`,
		models.TaskActive, ts, publisherID, ts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to publish task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish: %w", err)
	}

	task.Status = models.TaskActive
	task.PublishedAt = &ts
	task.PublishedByID = &publisherID
	task.UpdatedAt = ts
	return task, nil
}

// ListTasks is the admin listing.
func (db *DB) ListTasks(ctx context.Context, f models.TaskFilter) ([]*models.Task, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.Status != nil {
		where = append(where, "t.status = ?")
		args = append(args, *f.Status)
	}
	if f.Type != nil {
		where = append(where, "t.type = ?")
		args = append(args, *f.Type)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE `+cond+
		` ORDER BY t.created_at DESC LIMIT ? OFFSET ?`, append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks, err := db.collectTasks(ctx, rows, "")
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListVisibleTasks returns tasks the user may see, filtered by status and optional type.
// PERSONAL tasks carry only the user's own assignment.
func (db *DB) ListVisibleTasks(ctx context.Context, userID string, status models.TaskStatus, taskType *models.TaskType) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.status = ? AND ` + visibleTo
	args := []interface{}{status, userID}
	if taskType != nil {
		query += ` AND t.type = ?`
		args = append(args, *taskType)
	}
	rows, err := db.QueryContext(ctx, query+` ORDER BY t.deadline IS NULL, t.deadline, t.created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible tasks: %w", err)
	}
	return db.collectTasks(ctx, rows, userID)
}

// GetVisibleTask returns the task only if it is ACTIVE and visible to the user.
func (db *DB) GetVisibleTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	return getVisibleActiveTask(ctx, db, userID, taskID)
}

func getVisibleActiveTask(ctx context.Context, q querier, userID, taskID string) (*models.Task, error) {
	task, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t
		WHERE t.id = ? AND t.status = ? AND `+visibleTo, taskID, models.TaskActive, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visible task: %w", err)
	}
	return task, nil
}

// collectTasks сканирует задачи и подгружает назначения PERSONAL задач.
// Непустой viewerID оставляет только назначение этого пользователя.
func (db *DB) collectTasks(ctx context.Context, rows *sql.Rows, viewerID string) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	err := rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if t.Type != models.TaskPersonal {
			continue
		}
		if t.Assignments, err = listAssignments(ctx, db, t.ID); err != nil {
			return nil, err
		}
		if viewerID != "" {
			t.Assignments = ownAssignments(t.Assignments, viewerID)
		}
	}
	return tasks, nil
}

func ownAssignments(all []models.Assignment, userID string) []models.Assignment {
	var own []models.Assignment
	for _, a := range all {
		if a.UserID == userID {
			own = append(own, a)
		}
	}
	return own
}
