package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/models"
)

// ErrInvalidProducts: один из товаров отчета не найден или неактивен.
var ErrInvalidProducts = errors.New("some products are missing or inactive")

const reportColumns = `id, user_id, task_id, type, status, notes, rejection_reason, submitted_at,
	reviewed_at, reviewed_by_id, created_at, updated_at`

func scanReport(row scanner) (*models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.UserID, &r.TaskID, &r.Type, &r.Status, &r.Notes, &r.RejectionReason, &r.SubmittedAt,
		&r.ReviewedAt, &r.ReviewedByID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReport checks task visibility and products, then inserts the report with
// its ordered children and product links in one transaction.
func (db *DB) CreateReport(ctx context.Context, in models.NewReport) (*models.Report, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getVisibleActiveTask(ctx, tx, in.UserID, in.TaskID); err != nil {
		return nil, err
	}

	productIDs := uniqueStrings(in.ProductIDs)
	if len(productIDs) > 0 {
		var active int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE is_active = 1 AND id IN (`+
			placeholders(len(productIDs))+`)`, stringArgs(productIDs)...).Scan(&active)
		if err != nil {
			return nil, fmt.Errorf("failed to check products: %w", err)
		}
		if active != len(productIDs) {
			return nil, ErrInvalidProducts
		}
	}

	ts := now()
	report := &models.Report{
		ID:          newID(),
		UserID:      in.UserID,
		TaskID:      in.TaskID,
		Type:        in.Type,
		Status:      models.ReportPending,
		Notes:       in.Notes,
		SubmittedAt: ts,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports (id, user_id, task_id, type, status, notes, submitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.UserID, report.TaskID, report.Type, report.Status, report.Notes, ts, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	for i, link := range in.VideoLinks {
		_, err := tx.ExecContext(ctx, `INSERT INTO video_links (id, report_id, url, platform, views, likes, comments, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(), report.ID, link.URL, link.Platform, link.Views, link.Likes, link.Comments, i)
		if err != nil {
			return nil, fmt.Errorf("failed to insert video link: %w", err)
		}
	}

	for i, story := range in.Stories {
		_, err := tx.ExecContext(ctx, `INSERT INTO stories (id, report_id, story_url, screenshot_file, screenshot_url, reach, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID(), report.ID, story.StoryURL, story.ScreenshotFile, story.ScreenshotURL, story.Reach, i)
		if err != nil {
			return nil, fmt.Errorf("failed to insert story: %w", err)
		}
	}

	for _, productID := range productIDs {
		_, err := tx.ExecContext(ctx, `INSERT INTO report_products (report_id, product_id) VALUES (?, ?)`, report.ID, productID)
		if err != nil {
			return nil, fmt.Errorf("failed to link product: %w", err)
		}
	}

	full, err := db.loadReport(ctx, tx, report.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}
	return full, nil
}

func (db *DB) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return db.loadReport(ctx, db, id)
}

// loadReport reads the report with children, products and task/user summaries.
func (db *DB) loadReport(ctx context.Context, q querier, id string) (*models.Report, error) {
	report, err := scanReport(q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if err := db.attachReportDetails(ctx, q, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (db *DB) attachReportDetails(ctx context.Context, q querier, r *models.Report) error {
	var err error
	if r.VideoLinks, err = listVideoLinks(ctx, q, r.ID); err != nil {
		return err
	}
	if r.Stories, err = listStories(ctx, q, r.ID); err != nil {
		return err
	}
	if r.Products, err = listReportProducts(ctx, q, r.ID); err != nil {
		return err
	}
	if r.Task, err = db.getTask(ctx, q, r.TaskID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if r.User, err = db.queryUser(ctx, q, "id = ?", r.UserID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func listVideoLinks(ctx context.Context, q querier, reportID string) ([]models.VideoLink, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, url, platform, views, likes, comments, position
		FROM video_links WHERE report_id = ? ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list video links: %w", err)
	}
	defer rows.Close()

	links := []models.VideoLink{}
	for rows.Next() {
		var l models.VideoLink
		if err := rows.Scan(&l.ID, &l.URL, &l.Platform, &l.Views, &l.Likes, &l.Comments, &l.Position); err != nil {
			return nil, fmt.Errorf("failed to scan video link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func listStories(ctx context.Context, q querier, reportID string) ([]models.Story, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, story_url, screenshot_file, screenshot_url, reach, position
		FROM stories WHERE report_id = ? ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := []models.Story{}
	for rows.Next() {
		var s models.Story
		if err := rows.Scan(&s.ID, &s.StoryURL, &s.ScreenshotFile, &s.ScreenshotURL, &s.Reach, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

func listReportProducts(ctx context.Context, q querier, reportID string) ([]models.Product, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+prefixed("p", productColumns)+` FROM products p
		JOIN report_products rp ON rp.product_id = p.id WHERE rp.report_id = ? ORDER BY p.name`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list report products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (db *DB) ListReports(ctx context.Context, f models.ReportFilter) ([]*models.Report, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.TaskID != nil {
		where = append(where, "task_id = ?")
		args = append(args, *f.TaskID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *f.Type)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE `+cond+
		` ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`, append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	for _, r := range reports {
		if err := db.attachReportDetails(ctx, db, r); err != nil {
			return nil, 0, err
		}
	}
	return reports, total, nil
}

// ModerateReport applies a moderation decision. The previous status is read inside
// the transaction: the reward is credited only on the first move into APPROVED and
// terminal reports accept notes only.
func (db *DB) ModerateReport(ctx context.Context, m models.Moderation) (*models.ModerationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, m.ReportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	result := &models.ModerationResult{PreviousStatus: current.Status}
	target := m.Status
	if target == "" {
		target = current.Status
	}

	ts := now()
	switch {
	case current.Status.Terminal() && target != current.Status:
		return nil, &TransitionError{Entity: "report", From: string(current.Status), To: string(target)}

	case target == current.Status:
		// Только заметки
		if m.Notes != nil {
			_, err = tx.ExecContext(ctx, `UPDATE reports SET notes = ?, updated_at = ? WHERE id = ?`, *m.Notes, ts, m.ReportID)
			if err != nil {
				return nil, fmt.Errorf("failed to update notes: %w", err)
			}
		}

	case target == models.ReportApproved:
		_, err = tx.ExecContext(ctx, `UPDATE reports SET status = ?, rejection_reason = NULL, reviewed_at = ?, reviewed_by_id = ?,
			notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`,
			target, ts, m.ModeratorID, m.Notes, ts, m.ReportID)
		if err != nil {
			return nil, fmt.Errorf("failed to approve report: %w", err)
		}
		result.StatusChanged = true

		var (
			title  string
			reward sql.NullInt64
		)
		err = tx.QueryRowContext(ctx, `SELECT title, reward_flariki FROM tasks WHERE id = ?`, current.TaskID).Scan(&title, &reward)
		if err != nil {
			return nil, fmt.Errorf("failed to read task reward: %w", err)
		}
		if reward.Valid && reward.Int64 > 0 {
			taskID, reportID, moderatorID := current.TaskID, current.ID, m.ModeratorID
			row, _, err := applyLedgerEntry(ctx, tx, models.LedgerEntry{
				UserID:      current.UserID,
				Type:        models.TxEarned,
				Amount:      reward.Int64,
				Reason:      fmt.Sprintf("Награда за выполнение задания: %s", title),
				TaskID:      &taskID,
				ReportID:    &reportID,
				CreatedByID: &moderatorID,
			})
			if err != nil {
				return nil, err
			}
			result.Reward = row
		}

	case target == models.ReportRejected:
		if m.RejectionReason == nil || strings.TrimSpace(*m.RejectionReason) == "" {
			return nil, ErrReasonRequired
		}
		_, err = tx.ExecContext(ctx, `UPDATE reports SET status = ?, rejection_reason = ?, reviewed_at = ?, reviewed_by_id = ?,
			notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`,
			target, *m.RejectionReason, ts, m.ModeratorID, m.Notes, ts, m.ReportID)
		if err != nil {
			return nil, fmt.Errorf("failed to reject report: %w", err)
		}
		result.StatusChanged = true

	default:
		return nil, &TransitionError{Entity: "report", From: string(current.Status), To: string(target)}
	}

	report, err := db.loadReport(ctx, tx, m.ReportID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit moderation: %w", err)
	}
	result.Report = report
	return result, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
