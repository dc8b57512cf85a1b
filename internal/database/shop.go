package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/models"
)

const shopItemColumns = `id, name, description, image_url, price, stock, category, is_active, created_at, updated_at`

const purchaseColumns = `id, user_id, shop_item_id, quantity, total_price, status, notes, created_at, updated_at`

func scanShopItem(row scanner) (*models.ShopItem, error) {
	var it models.ShopItem
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.Price, &it.Stock, &it.Category,
		&it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanPurchase(row scanner) (*models.Purchase, error) {
	var p models.Purchase
	err := row.Scan(&p.ID, &p.UserID, &p.ShopItemID, &p.Quantity, &p.TotalPrice, &p.Status, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreateShopItem(ctx context.Context, it *models.ShopItem) error {
	ts := now()
	it.ID = newID()
	it.CreatedAt = ts
	it.UpdatedAt = ts
	_, err := db.ExecContext(ctx, `INSERT INTO shop_items (`+shopItemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Name, it.Description, it.ImageURL, it.Price, it.Stock, it.Category, it.IsActive, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create shop item: %w", err)
	}
	return nil
}

func (db *DB) UpdateShopItem(ctx context.Context, it *models.ShopItem) error {
	it.UpdatedAt = now()
	res, err := db.ExecContext(ctx, `UPDATE shop_items SET name = ?, description = ?, image_url = ?, price = ?, stock = ?,
		category = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		it.Name, it.Description, it.ImageURL, it.Price, it.Stock, it.Category, it.IsActive, it.UpdatedAt, it.ID)
	if err != nil {
		return fmt.Errorf("failed to update shop item: %w", err)
	}
	return expectAffected(res)
}

func (db *DB) GetShopItem(ctx context.Context, id string) (*models.ShopItem, error) {
	return getShopItem(ctx, db, id)
}

func getShopItem(ctx context.Context, q querier, id string) (*models.ShopItem, error) {
	it, err := scanShopItem(q.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop item: %w", err)
	}
	return it, nil
}

func (db *DB) ListShopItems(ctx context.Context, activeOnly bool) ([]*models.ShopItem, error) {
	query := `SELECT ` + shopItemColumns + ` FROM shop_items`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := db.QueryContext(ctx, query+` ORDER BY category, price`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop items: %w", err)
	}
	defer rows.Close()

	var out []*models.ShopItem
	for rows.Next() {
		it, err := scanShopItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shop item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteShopItem refuses to remove items that were already purchased.
func (db *DB) DeleteShopItem(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var purchases int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases WHERE shop_item_id = ?`, id).Scan(&purchases); err != nil {
		return fmt.Errorf("failed to count purchases: %w", err)
	}
	if purchases > 0 {
		return ErrInUse
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM shop_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shop item: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// Purchase checks availability, stock and balance and records the purchase,
// the SPENT ledger row and both decrements in one transaction.
func (db *DB) Purchase(ctx context.Context, userID, itemID string, quantity int) (*models.PurchaseResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	item, err := getShopItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, ErrItemUnavailable
	}
	if item.Stock != nil && *item.Stock < int64(quantity) {
		return nil, ErrInsufficientStock
	}

	total := item.Price * int64(quantity)

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT flariki_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < total {
		return nil, &BalanceError{Required: total, Available: balance}
	}

	ts := now()
	purchase := &models.Purchase{
		ID:         newID(),
		UserID:     userID,
		ShopItemID: itemID,
		Quantity:   quantity,
		TotalPrice: total,
		Status:     models.PurchasePending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO purchases (`+purchaseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		purchase.ID, purchase.UserID, purchase.ShopItemID, purchase.Quantity, purchase.TotalPrice, purchase.Status,
		nil, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	purchaseID := purchase.ID
	row, newBalance, err := applyLedgerEntry(ctx, tx, models.LedgerEntry{
		UserID:      userID,
		Type:        models.TxSpent,
		Amount:      -total,
		Reason:      fmt.Sprintf("Покупка: %s x%d", item.Name, quantity),
		PurchaseID:  &purchaseID,
		CreatedByID: &userID,
	})
	if err != nil {
		return nil, err
	}

	if item.Stock != nil {
		_, err = tx.ExecContext(ctx, `UPDATE shop_items SET stock = stock - ?, updated_at = ? WHERE id = ?`, quantity, ts, itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
		left := *item.Stock - int64(quantity)
		item.Stock = &left
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	purchase.ShopItem = item
	return &models.PurchaseResult{Purchase: purchase, Transaction: row, NewBalance: newBalance}, nil
}

func (db *DB) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	return db.loadPurchase(ctx, db, id)
}

func (db *DB) loadPurchase(ctx context.Context, q querier, id string) (*models.Purchase, error) {
	p, err := scanPurchase(q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if err := db.attachPurchaseDetails(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) attachPurchaseDetails(ctx context.Context, q querier, p *models.Purchase) error {
	var err error
	if p.ShopItem, err = getShopItem(ctx, q, p.ShopItemID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if p.User, err = db.queryUser(ctx, q, "id = ?", p.UserID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// UpdatePurchaseStatus moves a purchase forward; backward moves and changes of
// terminal purchases fail with a TransitionError.
func (db *DB) UpdatePurchaseStatus(ctx context.Context, id string, status models.PurchaseStatus, notes *string) (*models.Purchase, models.PurchaseStatus, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current models.PurchaseStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM purchases WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read purchase status: %w", err)
	}

	if !models.CanTransitionPurchase(current, status) {
		return nil, current, &TransitionError{Entity: "purchase", From: string(current), To: string(status)}
	}

	_, err = tx.ExecContext(ctx, `UPDATE purchases SET status = ?, notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`,
		status, notes, now(), id)
	if err != nil {
		return nil, current, fmt.Errorf("failed to update purchase status: %w", err)
	}

	p, err := db.loadPurchase(ctx, tx, id)
	if err != nil {
		return nil, current, err
	}
	if err := tx.Commit(); err != nil {
		return nil, current, fmt.Errorf("failed to commit purchase status: %w", err)
	}
	return p, current, nil
}

func (db *DB) ListPurchases(ctx context.Context, f models.PurchaseFilter) ([]*models.Purchase, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE `+cond+
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchases: %w", err)
	}

	var out []*models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	for _, p := range out {
		if err := db.attachPurchaseDetails(ctx, db, p); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// CountPurchases is used by tests and stats.
func (db *DB) CountPurchases(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return n, nil
}
