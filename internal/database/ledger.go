package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/models"
)

const txColumns = `id, user_id, type, amount, reason, task_id, report_id, purchase_id, created_by_id, created_at`

// ErrInvalidAmount is returned when the sign of an entry contradicts its type.
var ErrInvalidAmount = errors.New("invalid ledger amount")

func validEntryAmount(t models.TransactionType, amount int64) bool {
	switch t {
	case models.TxEarned, models.TxBonus:
		return amount > 0
	case models.TxSpent, models.TxPenalty:
		return amount < 0
	}
	return false
}

// applyLedgerEntry меняет баланс и пишет строку леджера в одной транзакции.
// Баланс не может стать отрицательным.
func applyLedgerEntry(ctx context.Context, tx *sql.Tx, e models.LedgerEntry) (*models.FlarikiTransaction, int64, error) {
	if !validEntryAmount(e.Type, e.Amount) {
		return nil, 0, fmt.Errorf("%w: %s %d", ErrInvalidAmount, e.Type, e.Amount)
	}

	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT flariki_balance FROM users WHERE id = ?`, e.UserID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read balance: %w", err)
	}

	if balance+e.Amount < 0 {
		return nil, 0, &BalanceError{Required: -e.Amount, Available: balance}
	}

	ts := now()
	_, err = tx.ExecContext(ctx, `UPDATE users SET flariki_balance = flariki_balance + ?, updated_at = ? WHERE id = ?`,
		e.Amount, ts, e.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to update balance: %w", err)
	}

	row := &models.FlarikiTransaction{
		ID:          newID(),
		UserID:      e.UserID,
		Type:        e.Type,
		Amount:      e.Amount,
		Reason:      e.Reason,
		TaskID:      e.TaskID,
		ReportID:    e.ReportID,
		PurchaseID:  e.PurchaseID,
		CreatedByID: e.CreatedByID,
		CreatedAt:   ts,
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO flariki_transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.Type, row.Amount, row.Reason, row.TaskID, row.ReportID, row.PurchaseID, row.CreatedByID, row.CreatedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to insert ledger row: %w", err)
	}

	return row, balance + e.Amount, nil
}

// ApplyLedgerEntry commits a single manual grant or penalty.
func (db *DB) ApplyLedgerEntry(ctx context.Context, e models.LedgerEntry) (*models.FlarikiTransaction, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row, balance, err := applyLedgerEntry(ctx, tx, e)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return row, balance, nil
}

func (db *DB) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx, `SELECT flariki_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// LedgerSum returns the sum of all ledger rows of the user.
func (db *DB) LedgerSum(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM flariki_transactions WHERE user_id = ?`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return sum, nil
}

func scanTransaction(row scanner) (*models.FlarikiTransaction, error) {
	var t models.FlarikiTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Reason, &t.TaskID, &t.ReportID, &t.PurchaseID,
		&t.CreatedByID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.FlarikiTransaction, int, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *f.Type)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flariki_transactions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := db.QueryContext(ctx, `SELECT `+txColumns+` FROM flariki_transactions WHERE `+cond+
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(args, page.Limit, f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.FlarikiTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (db *DB) LedgerStats(ctx context.Context) (*models.LedgerStats, error) {
	rows, err := db.QueryContext(ctx, `SELECT type, COALESCE(SUM(amount), 0), COUNT(*) FROM flariki_transactions GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger stats: %w", err)
	}
	defer rows.Close()

	stats := &models.LedgerStats{ByType: []models.LedgerTypeStat{}}
	for rows.Next() {
		var s models.LedgerTypeStat
		if err := rows.Scan(&s.Type, &s.Sum, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan ledger stats: %w", err)
		}
		stats.ByType = append(stats.ByType, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = db.QueryRowContext(ctx, `SELECT COALESCE(SUM(flariki_balance), 0), COUNT(*) FROM users`).
		Scan(&stats.TotalBalance, &stats.UsersCount)
	if err != nil {
		return nil, fmt.Errorf("failed to sum balances: %w", err)
	}
	return stats, nil
}

// FindBalanceMismatches lists users whose stored balance differs from the ledger sum.
func (db *DB) FindBalanceMismatches(ctx context.Context) ([]models.BalanceMismatch, error) {
	rows, err := db.QueryContext(ctx, `SELECT u.id, u.flariki_balance, COALESCE(SUM(t.amount), 0) AS ledger_sum
		FROM users u LEFT JOIN flariki_transactions t ON t.user_id = u.id
		GROUP BY u.id, u.flariki_balance
		HAVING u.flariki_balance != ledger_sum`)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	defer rows.Close()

	out := []models.BalanceMismatch{}
	for rows.Next() {
		var m models.BalanceMismatch
		if err := rows.Scan(&m.UserID, &m.Balance, &m.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan mismatch: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
