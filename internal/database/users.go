package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/models"
)

const userColumns = `id, telegram_id, username, first_name, last_name, phone, email, cdek_pvz, address,
	instagram_link, youtube_link, tiktok_link, vk_link, role, status, flariki_balance,
	password_hash, moderated_at, moderated_by_id, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u          models.User
		telegramID sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &telegramID, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.Email, &u.CdekPvz, &u.Address,
		&u.InstagramLink, &u.YoutubeLink, &u.TiktokLink, &u.VkLink, &u.Role, &u.Status, &u.FlarikiBalance,
		&u.PasswordHash, &u.ModeratedAt, &u.ModeratedByID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.TelegramID = telegramID.Int64
	return &u, nil
}

func (db *DB) queryUser(ctx context.Context, q querier, where string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.queryUser(ctx, db, "id = ?", id)
}

func (db *DB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return db.queryUser(ctx, db, "telegram_id = ?", telegramID)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, db, "lower(email) = lower(?)", email)
}

// UpsertTelegramUser creates a PENDING ambassador on first contact or refreshes
// username and names when the verified payload differs.
func (db *DB) UpsertTelegramUser(ctx context.Context, p models.TelegramProfile) (*models.User, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	user, err := db.queryUser(ctx, tx, "telegram_id = ?", p.TelegramID)
	created := false
	switch {
	case errors.Is(err, ErrNotFound):
		ts := now()
		user = &models.User{
			ID:         newID(),
			TelegramID: p.TelegramID,
			Username:   models.StringPtr(p.Username),
			FirstName:  models.StringPtr(p.FirstName),
			LastName:   models.StringPtr(p.LastName),
			Role:       models.RoleAmbassador,
			Status:     models.UserPending,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO users (id, telegram_id, username, first_name, last_name, role, status,
			flariki_balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			user.ID, user.TelegramID, user.Username, user.FirstName, user.LastName, user.Role, user.Status, ts, ts)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
		created = true
	case err != nil:
		return nil, false, err
	default:
		changed := false
		refresh := func(dst **string, v string) {
			if v != "" && models.Deref(*dst) != v {
				*dst = &v
				changed = true
			}
		}
		refresh(&user.Username, p.Username)
		refresh(&user.FirstName, p.FirstName)
		refresh(&user.LastName, p.LastName)
		if !changed {
			return user, false, nil
		}
		user.UpdatedAt = now()
		_, err = tx.ExecContext(ctx, `UPDATE users SET username = ?, first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`,
			user.Username, user.FirstName, user.LastName, user.UpdatedAt, user.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to refresh user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit user upsert: %w", err)
	}
	return user, created, nil
}

// CreateStaffUser inserts an ACTIVE manager or admin with a password hash.
func (db *DB) CreateStaffUser(ctx context.Context, email, passwordHash string, role models.Role, telegramID int64) (*models.User, error) {
	ts := now()
	user := &models.User{
		ID:           newID(),
		TelegramID:   telegramID,
		Email:        &email,
		PasswordHash: &passwordHash,
		Role:         role,
		Status:       models.UserActive,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	_, err := db.ExecContext(ctx, `INSERT INTO users (id, telegram_id, email, password_hash, role, status,
		flariki_balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		user.ID, nullInt64(telegramID), email, passwordHash, role, user.Status, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create staff user: %w", err)
	}
	return user, nil
}

func (db *DB) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now(), userID)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return expectAffected(res)
}

// SetUserStatus records a moderation decision.
func (db *DB) SetUserStatus(ctx context.Context, userID string, status models.UserStatus, moderatorID *string) (*models.User, error) {
	ts := now()
	res, err := db.ExecContext(ctx, `UPDATE users SET status = ?, moderated_at = ?, moderated_by_id = ?, updated_at = ? WHERE id = ?`,
		status, ts, moderatorID, ts, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, userID)
}

func (db *DB) UpdateUserProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	sets := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, col+" = ?")
		if *v == "" {
			args = append(args, nil)
		} else {
			args = append(args, *v)
		}
	}
	add("phone", upd.Phone)
	add("email", upd.Email)
	add("cdek_pvz", upd.CdekPvz)
	add("address", upd.Address)
	add("instagram_link", upd.InstagramLink)
	add("youtube_link", upd.YoutubeLink)
	add("tiktok_link", upd.TiktokLink)
	add("vk_link", upd.VkLink)

	if len(sets) == 0 {
		return db.GetUserByID(ctx, userID)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), userID)

	res, err := db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, userID)
}

// UpdateUserPhone is used by the bot when a contact is shared.
func (db *DB) UpdateUserPhone(ctx context.Context, telegramID int64, phone string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET phone = ?, updated_at = ? WHERE telegram_id = ?`, phone, now(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to update phone: %w", err)
	}
	return expectAffected(res)
}

func (db *DB) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Role != nil {
		where = append(where, "role = ?")
		args = append(args, *f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, `(lower(coalesce(username, '')) LIKE ? OR lower(coalesce(first_name, '')) LIKE ?
			OR lower(coalesce(last_name, '')) LIKE ? OR lower(coalesce(email, '')) LIKE ? OR coalesce(phone, '') LIKE ?)`)
		args = append(args, like, like, like, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond+
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`, append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListActiveUsers returns ACTIVE users, optionally restricted to a role.
func (db *DB) ListActiveUsers(ctx context.Context, role *models.Role) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = ?`
	args := []interface{}{models.UserActive}
	if role != nil {
		query += ` AND role = ?`
		args = append(args, *role)
	}
	rows, err := db.QueryContext(ctx, query+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return collectUsers(rows)
}

// ListActiveUsersByTags returns ACTIVE users having any of the tags.
func (db *DB) ListActiveUsersByTags(ctx context.Context, tagIDs []string) ([]*models.User, error) {
	if len(tagIDs) == 0 {
		return db.ListActiveUsers(ctx, nil)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE status = ? AND id IN (
		SELECT DISTINCT user_id FROM user_tags WHERE tag_id IN (` + placeholders(len(tagIDs)) + `)) ORDER BY created_at`
	args := append([]interface{}{models.UserActive}, stringArgs(tagIDs)...)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by tags: %w", err)
	}
	return collectUsers(rows)
}

// GetUsersByIDs returns the users that exist among ids.
func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*models.User, error) {
	defer rows.Close()
	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
