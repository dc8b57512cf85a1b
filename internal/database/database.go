package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite handle. Every multi-statement mutation runs in a
// BEGIN IMMEDIATE transaction, so writers are serialized per database file.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// dsnOptions: _txlock=immediate берет блокировку записи на BEGIN.
const dsnOptions = "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + dsnOptions
	}
	return "file:" + path + "?" + dsnOptions
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			telegram_id INTEGER UNIQUE,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			phone TEXT,
			email TEXT UNIQUE,
			cdek_pvz TEXT,
			address TEXT,
			instagram_link TEXT,
			youtube_link TEXT,
			tiktok_link TEXT,
			vk_link TEXT,
			role TEXT NOT NULL DEFAULT 'AMBASSADOR',
			status TEXT NOT NULL DEFAULT 'PENDING',
			flariki_balance INTEGER NOT NULL DEFAULT 0 CHECK (flariki_balance >= 0),
			password_hash TEXT,
			moderated_at DATETIME,
			moderated_by_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			requirements TEXT,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			reward_flariki INTEGER CHECK (reward_flariki IS NULL OR reward_flariki > 0),
			deadline DATETIME,
			created_by_id TEXT NOT NULL,
			published_at DATETIME,
			published_by_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_assignments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			assigned_at DATETIME NOT NULL,
			UNIQUE (task_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			task_id TEXT NOT NULL REFERENCES tasks(id),
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			notes TEXT,
			rejection_reason TEXT,
			submitted_at DATETIME NOT NULL,
			reviewed_at DATETIME,
			reviewed_by_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS video_links (
			id TEXT PRIMARY KEY,
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			platform TEXT,
			views INTEGER,
			likes INTEGER,
			comments INTEGER,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stories (
			id TEXT PRIMARY KEY,
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			story_url TEXT NOT NULL,
			screenshot_file TEXT,
			screenshot_url TEXT,
			reach INTEGER NOT NULL CHECK (reach > 0),
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS report_products (
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL REFERENCES products(id),
			PRIMARY KEY (report_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS shop_items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			price INTEGER NOT NULL CHECK (price > 0),
			stock INTEGER CHECK (stock IS NULL OR stock >= 0),
			category TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			shop_item_id TEXT NOT NULL REFERENCES shop_items(id),
			quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 10),
			total_price INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flariki_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			task_id TEXT,
			report_id TEXT,
			purchase_id TEXT,
			created_by_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			color TEXT,
			description TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_tags (
			user_id TEXT NOT NULL REFERENCES users(id),
			tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			tag_ids TEXT NOT NULL DEFAULT '[]',
			recipients_count INTEGER NOT NULL,
			created_by_id TEXT NOT NULL,
			sent_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS broadcast_tasks (
			broadcast_id TEXT NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
			task_id TEXT NOT NULL,
			PRIMARY KEY (broadcast_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT,
			created_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,

		// Леджер и аудит только на добавление
		`CREATE TRIGGER IF NOT EXISTS flariki_transactions_immutable_update
			BEFORE UPDATE ON flariki_transactions
			BEGIN SELECT RAISE(ABORT, 'ledger rows are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS flariki_transactions_immutable_delete
			BEFORE DELETE ON flariki_transactions
			BEGIN SELECT RAISE(ABORT, 'ledger rows are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS audit_logs_immutable_update
			BEFORE UPDATE ON audit_logs
			BEGIN SELECT RAISE(ABORT, 'audit rows are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS audit_logs_immutable_delete
			BEFORE DELETE ON audit_logs
			BEGIN SELECT RAISE(ABORT, 'audit rows are immutable'); END`,

		`CREATE INDEX IF NOT EXISTS idx_users_status_role ON users(status, role)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_type ON tasks(status, type)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_user ON task_assignments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_task ON reports(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`,
		`CREATE INDEX IF NOT EXISTS idx_video_links_report ON video_links(report_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_stories_report ON stories(report_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_user ON flariki_transactions(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_item ON purchases(shop_item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_logs(action, entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Ping checks the connection for health endpoints.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
