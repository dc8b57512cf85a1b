package database

import (
	"context"
	"encoding/json"
	"fmt"

	"flariki/internal/models"
)

// CreateBroadcast persists the broadcast with the recipient count resolved at send time.
func (db *DB) CreateBroadcast(ctx context.Context, b *models.Broadcast) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if b.TagIDs == nil {
		b.TagIDs = []string{}
	}
	if b.TaskIDs == nil {
		b.TaskIDs = []string{}
	}
	tagIDs, err := json.Marshal(b.TagIDs)
	if err != nil {
		return fmt.Errorf("failed to encode tag ids: %w", err)
	}

	b.ID = newID()
	b.SentAt = now()
	_, err = tx.ExecContext(ctx, `INSERT INTO broadcasts (id, title, message, tag_ids, recipients_count, created_by_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, b.ID, b.Title, b.Message, string(tagIDs), b.RecipientsCount, b.CreatedByID, b.SentAt)
	if err != nil {
		return fmt.Errorf("failed to insert broadcast: %w", err)
	}

	for _, taskID := range uniqueStrings(b.TaskIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO broadcast_tasks (broadcast_id, task_id) VALUES (?, ?)`, b.ID, taskID); err != nil {
			return fmt.Errorf("failed to link broadcast task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit broadcast: %w", err)
	}
	return nil
}

func (db *DB) ListBroadcasts(ctx context.Context, page models.Page) ([]*models.Broadcast, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM broadcasts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}

	p := page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT id, title, message, tag_ids, recipients_count, created_by_id, sent_at
		FROM broadcasts ORDER BY sent_at DESC LIMIT ? OFFSET ?`, p.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list broadcasts: %w", err)
	}

	var out []*models.Broadcast
	for rows.Next() {
		var (
			b      models.Broadcast
			tagIDs string
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Message, &tagIDs, &b.RecipientsCount, &b.CreatedByID, &b.SentAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan broadcast: %w", err)
		}
		if err := json.Unmarshal([]byte(tagIDs), &b.TagIDs); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to decode tag ids: %w", err)
		}
		out = append(out, &b)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	for _, b := range out {
		if b.TaskIDs, err = db.broadcastTaskIDs(ctx, b.ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (db *DB) broadcastTaskIDs(ctx context.Context, broadcastID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT task_id FROM broadcast_tasks WHERE broadcast_id = ? ORDER BY task_id`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcast tasks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan broadcast task: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
