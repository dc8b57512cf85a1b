package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/models"
)

const productColumns = `id, name, description, image_url, is_active, created_at, updated_at`

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	p.ID = newID()
	p.CreatedAt = ts
	p.UpdatedAt = ts
	_, err := db.ExecContext(ctx, `INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.ImageURL, p.IsActive, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (db *DB) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = now()
	res, err := db.ExecContext(ctx, `UPDATE products SET name = ?, description = ?, image_url = ?, is_active = ?, updated_at = ?
		WHERE id = ?`, p.Name, p.Description, p.ImageURL, p.IsActive, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectAffected(res)
}

func (db *DB) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (db *DB) ListProducts(ctx context.Context, activeOnly bool) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := db.QueryContext(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProduct refuses to remove products referenced by reports.
func (db *DB) DeleteProduct(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var refs int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_products WHERE product_id = ?`, id).Scan(&refs); err != nil {
		return fmt.Errorf("failed to count product references: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) CreateTag(ctx context.Context, t *models.Tag) error {
	t.ID = newID()
	t.CreatedAt = now()
	_, err := db.ExecContext(ctx, `INSERT INTO tags (id, name, color, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Color, t.Description, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

func (db *DB) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := db.QueryContext(ctx, `SELECT t.id, t.name, t.color, t.description, t.created_at,
		(SELECT COUNT(*) FROM user_tags ut WHERE ut.tag_id = t.id) FROM tags t ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var out []*models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Description, &t.CreatedAt, &t.UsersCount); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (db *DB) DeleteTag(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return expectAffected(res)
}

// SetUserTags replaces the user's tag set.
func (db *DB) SetUserTags(ctx context.Context, userID string, tagIDs []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_tags WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear user tags: %w", err)
	}
	for _, tagID := range uniqueStrings(tagIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_tags (user_id, tag_id) VALUES (?, ?)`, userID, tagID); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to assign tag: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) GetUserTags(ctx context.Context, userID string) ([]models.Tag, error) {
	rows, err := db.QueryContext(ctx, `SELECT t.id, t.name, t.color, t.description, t.created_at FROM tags t
		JOIN user_tags ut ON ut.tag_id = t.id WHERE ut.user_id = ? ORDER BY t.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
