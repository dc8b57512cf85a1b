package models

const (
	ParseModeHTML = "HTML"
)

// Шаги диалога бота
const (
	StateIdle         = "idle"
	StateEnterAddress = "enter_address"
	StateEnterCdek    = "enter_cdek"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60

	// WorkerQueueSize размер очереди воркера синхронизации
	WorkerQueueSize = 1000

	// DefaultPageSize размер страницы по умолчанию
	DefaultPageSize = 20
	MaxPageSize     = 100

	// RecentTransactionsLimit сколько операций показывать в профиле
	RecentTransactionsLimit = 50

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60
)

// Page is an offset pagination request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps page and limit to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(p Page, total int) Pagination {
	n := p.Normalize()
	pages := total / n.Limit
	if total%n.Limit != 0 {
		pages++
	}
	return Pagination{Page: n.Page, Limit: n.Limit, Total: total, TotalPages: pages}
}
