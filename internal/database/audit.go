package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flariki/internal/models"
)

// CreateAuditLog appends an audit row. Rows are never updated.
func (db *DB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = newID()
	entry.CreatedAt = now()
	var details interface{}
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.UserID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (db *DB) ListAuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.Action != nil {
		where = append(where, "action = ?")
		args = append(args, *f.Action)
	}
	if f.EntityType != nil {
		where = append(where, "entity_type = ?")
		args = append(args, *f.EntityType)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT id, action, entity_type, entity_id, user_id, details, created_at
		FROM audit_logs WHERE `+cond+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLog
	for rows.Next() {
		var (
			l       models.AuditLog
			details *string
		)
		if err := rows.Scan(&l.ID, &l.Action, &l.EntityType, &l.EntityID, &l.UserID, &details, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if details != nil {
			l.Details = json.RawMessage(*details)
		}
		out = append(out, &l)
	}
	return out, total, rows.Err()
}
