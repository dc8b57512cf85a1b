package database

import (
	"context"
	"fmt"

	"flariki/internal/models"
)

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	query := `INSERT INTO sync_queue (task_type, entity_id, payload, status, last_error, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	ts := now()
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.EntityID,
		task.Payload,
		task.Status,
		task.LastError,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = ts

	return nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return db.listSyncTasks(ctx, `WHERE status = ? ORDER BY created_at ASC LIMIT ?`, models.SyncStatusPending, limit)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	return db.listSyncTasks(ctx, `WHERE status = ? ORDER BY created_at DESC`, models.SyncStatusFailed)
}

func (db *DB) listSyncTasks(ctx context.Context, tail string, args ...interface{}) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, task_type, entity_id, payload, status, last_error, created_at, processed_at
              FROM sync_queue `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(&t.ID, &t.TaskType, &t.EntityID, &t.Payload, &t.Status, &t.LastError, &t.CreatedAt, &t.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateSyncTaskStatus records the single delivery attempt of a task.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error {
	var lastError interface{}
	if errMsg != "" {
		lastError = errMsg
	}

	var processedAt interface{}
	if status == models.SyncStatusCompleted || status == models.SyncStatusFailed {
		processedAt = now()
	}

	_, err := db.ExecContext(ctx, `UPDATE sync_queue SET status = ?, last_error = ?, processed_at = COALESCE(?, processed_at)
		WHERE id = ?`, status, lastError, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}
