package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flariki/internal/models"
)

// ApprovedReportStats returns one aggregated row per approved report.
func (db *DB) ApprovedReportStats(ctx context.Context, f models.StatsFilter) ([]models.ReportStat, error) {
	where := []string{"r.status = ?"}
	args := []interface{}{models.ReportApproved}
	if f.From != nil {
		where = append(where, "r.submitted_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "r.submitted_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.UserID != nil {
		where = append(where, "r.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.TaskID != nil {
		where = append(where, "r.task_id = ?")
		args = append(args, *f.TaskID)
	}

	query := `SELECT r.id, r.user_id,
			TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), COALESCE(u.username, ''),
			r.task_id, t.title, r.type, r.submitted_at,
			(SELECT COUNT(*) FROM video_links v WHERE v.report_id = r.id),
			(SELECT COALESCE(SUM(v.views), 0) FROM video_links v WHERE v.report_id = r.id),
			(SELECT COALESCE(SUM(v.likes), 0) FROM video_links v WHERE v.report_id = r.id),
			(SELECT COALESCE(SUM(v.comments), 0) FROM video_links v WHERE v.report_id = r.id),
			(SELECT COUNT(*) FROM stories s WHERE s.report_id = r.id),
			(SELECT COALESCE(SUM(s.reach), 0) FROM stories s WHERE s.report_id = r.id)
		FROM reports r
		JOIN users u ON u.id = r.user_id
		JOIN tasks t ON t.id = r.task_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.submitted_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get report stats: %w", err)
	}
	defer rows.Close()

	out := []models.ReportStat{}
	for rows.Next() {
		var (
			s        models.ReportStat
			username string
		)
		err := rows.Scan(&s.ID, &s.UserID, &s.UserName, &username, &s.TaskID, &s.TaskTitle, &s.Type, &s.SubmittedAt,
			&s.Videos, &s.Views, &s.Likes, &s.Comments, &s.Stories, &s.StoryReach)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report stats: %w", err)
		}
		if s.UserName == "" {
			s.UserName = username
		}
		if s.UserName == "" {
			s.UserName = "Неизвестно"
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReportedUsersSince returns ids of users who submitted a report for the task since the given time.
func (db *DB) ReportedUsersSince(ctx context.Context, taskID string, since time.Time) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT user_id FROM reports WHERE task_id = ? AND submitted_at >= ?`,
		taskID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get reporters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reporter: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
