package domain

import (
	"context"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flariki/internal/models"
)

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertTelegramUser(ctx context.Context, p models.TelegramProfile) (*models.User, bool, error)
	CreateStaffUser(ctx context.Context, email, passwordHash string, role models.Role, telegramID int64) (*models.User, error)
	SetPasswordHash(ctx context.Context, userID, hash string) error
	SetUserStatus(ctx context.Context, userID string, status models.UserStatus, moderatorID *string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)
	UpdateUserPhone(ctx context.Context, telegramID int64, phone string) error
	ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int, error)
	ListActiveUsers(ctx context.Context, role *models.Role) ([]*models.User, error)
	ListActiveUsersByTags(ctx context.Context, tagIDs []string) ([]*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	SetUserTags(ctx context.Context, userID string, tagIDs []string) error
	GetUserTags(ctx context.Context, userID string) ([]models.Tag, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task, assigneeIDs []string) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	PublishTask(ctx context.Context, id, publisherID string) (*models.Task, error)
	ListTasks(ctx context.Context, f models.TaskFilter) ([]*models.Task, int, error)
	ListVisibleTasks(ctx context.Context, userID string, status models.TaskStatus, taskType *models.TaskType) ([]*models.Task, error)
	GetVisibleTask(ctx context.Context, userID, taskID string) (*models.Task, error)
}

type ReportStore interface {
	CreateReport(ctx context.Context, in models.NewReport) (*models.Report, error)
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, f models.ReportFilter) ([]*models.Report, int, error)
	ModerateReport(ctx context.Context, m models.Moderation) (*models.ModerationResult, error)
	ReportedUsersSince(ctx context.Context, taskID string, since time.Time) (map[string]bool, error)
}

type LedgerStore interface {
	ApplyLedgerEntry(ctx context.Context, e models.LedgerEntry) (*models.FlarikiTransaction, int64, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.FlarikiTransaction, int, error)
	LedgerStats(ctx context.Context) (*models.LedgerStats, error)
	FindBalanceMismatches(ctx context.Context) ([]models.BalanceMismatch, error)
}

type ShopStore interface {
	CreateShopItem(ctx context.Context, it *models.ShopItem) error
	UpdateShopItem(ctx context.Context, it *models.ShopItem) error
	GetShopItem(ctx context.Context, id string) (*models.ShopItem, error)
	ListShopItems(ctx context.Context, activeOnly bool) ([]*models.ShopItem, error)
	DeleteShopItem(ctx context.Context, id string) error
	Purchase(ctx context.Context, userID, itemID string, quantity int) (*models.PurchaseResult, error)
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id string, status models.PurchaseStatus, notes *string) (*models.Purchase, models.PurchaseStatus, error)
	ListPurchases(ctx context.Context, f models.PurchaseFilter) ([]*models.Purchase, int, error)
}

type CatalogStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CreateTag(ctx context.Context, t *models.Tag) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

type BroadcastStore interface {
	CreateBroadcast(ctx context.Context, b *models.Broadcast) error
	ListBroadcasts(ctx context.Context, page models.Page) ([]*models.Broadcast, int, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error)
}

type StatsStore interface {
	ApprovedReportStats(ctx context.Context, f models.StatsFilter) ([]models.ReportStat, error)
	ListActiveUsers(ctx context.Context, role *models.Role) ([]*models.User, error)
}

type SyncQueueStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// WebAppButton opens the Mini App at URL.
type WebAppButton struct {
	Text string
	URL  string
}

// Notification is a single Telegram message to a user.
type Notification struct {
	TelegramID int64
	Text       string
	Button     *WebAppButton
}

// Notifier delivers notifications. Callers treat failures as best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Batch is a fan-out unit. OnDone receives the delivery summary.
type Batch struct {
	Name          string
	Notifications []Notification
	OnDone        func(delivered, failed int)
}

// Dispatcher sends batches asynchronously with bounded concurrency.
type Dispatcher interface {
	Dispatch(batch Batch)
}

type SheetsWriter interface {
	UpsertReport(ctx context.Context, report *models.Report) error
	UpsertPurchase(ctx context.Context, purchase *models.Purchase) error
}

// SyncEnqueuer queues Sheets updates after commit.
type SyncEnqueuer interface {
	EnqueueReport(ctx context.Context, report *models.Report) error
	EnqueuePurchase(ctx context.Context, purchase *models.Purchase) error
}

// StoredFile is a blob saved by a BlobStore.
type StoredFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type BlobStore interface {
	Save(ctx context.Context, ext string, r io.Reader) (*StoredFile, error)
}
