package service

import (
	"context"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/metrics"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// Grant is a manual ledger adjustment by staff.
type Grant struct {
	UserID   string
	Amount   int64
	Reason   string
	TaskID   *string
	ReportID *string
}

func (g Grant) validate() error {
	var fields []domain.FieldError
	if g.UserID == "" {
		fields = append(fields, domain.FieldError{Field: "userId", Message: "required"})
	}
	if g.Amount <= 0 {
		fields = append(fields, domain.FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if strings.TrimSpace(g.Reason) == "" {
		fields = append(fields, domain.FieldError{Field: "reason", Message: "required"})
	}
	if len(fields) > 0 {
		return domain.Validation("invalid ledger operation", fields...)
	}
	return nil
}

// GrantResult is the committed ledger row and the resulting balance.
type GrantResult struct {
	Transaction *models.FlarikiTransaction `json:"transaction"`
	NewBalance  int64                      `json:"newBalance"`
}

type LedgerService struct {
	ledger     domain.LedgerStore
	users      domain.UserStore
	dispatcher domain.Dispatcher
	audit      *Auditor
	eventBus   domain.EventPublisher
	logger     *zerolog.Logger
}

func NewLedgerService(
	ledger domain.LedgerStore,
	users domain.UserStore,
	dispatcher domain.Dispatcher,
	audit *Auditor,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger:     ledger,
		users:      users,
		dispatcher: dispatcher,
		audit:      audit,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Award credits a BONUS and notifies the recipient.
func (s *LedgerService) Award(ctx context.Context, actorID string, g Grant) (*GrantResult, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(g.Reason)

	row, balance, err := s.ledger.ApplyLedgerEntry(ctx, models.LedgerEntry{
		UserID:      g.UserID,
		Type:        models.TxBonus,
		Amount:      g.Amount,
		Reason:      reason,
		TaskID:      g.TaskID,
		ReportID:    g.ReportID,
		CreatedByID: &actorID,
	})
	if err != nil {
		return nil, translate(err, "user")
	}
	metrics.IncLedger(string(row.Type))

	s.audit.Record(ctx, actorID, AuditFlarikiAwarded, "user", g.UserID, map[string]interface{}{
		"amount": g.Amount,
		"reason": reason,
	})
	publishEvent(s.eventBus, s.logger, events.EventFlarikiAwarded, events.LedgerEventPayload{
		TransactionID: row.ID,
		UserID:        g.UserID,
		Type:          string(row.Type),
		Amount:        row.Amount,
		Balance:       balance,
		ActorID:       actorID,
	})

	if user, err := s.users.GetUserByID(ctx, g.UserID); err == nil {
		single(s.dispatcher, "flariki_awarded", domain.Notification{
			TelegramID: user.TelegramID,
			Text:       awardText(g.Amount, reason, balance),
		})
	} else {
		s.logger.Warn().Err(err).Str("user_id", g.UserID).Msg("award recipient lookup failed")
	}

	return &GrantResult{Transaction: row, NewBalance: balance}, nil
}

// Penalize debits a PENALTY. A penalty larger than the balance is refused.
func (s *LedgerService) Penalize(ctx context.Context, actorID string, g Grant) (*GrantResult, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(g.Reason)

	row, balance, err := s.ledger.ApplyLedgerEntry(ctx, models.LedgerEntry{
		UserID:      g.UserID,
		Type:        models.TxPenalty,
		Amount:      -g.Amount,
		Reason:      reason,
		CreatedByID: &actorID,
	})
	if err != nil {
		return nil, translate(err, "user")
	}
	metrics.IncLedger(string(row.Type))

	s.audit.Record(ctx, actorID, AuditFlarikiPenalized, "user", g.UserID, map[string]interface{}{
		"amount": g.Amount,
		"reason": reason,
	})
	publishEvent(s.eventBus, s.logger, events.EventFlarikiPenalized, events.LedgerEventPayload{
		TransactionID: row.ID,
		UserID:        g.UserID,
		Type:          string(row.Type),
		Amount:        row.Amount,
		Balance:       balance,
		ActorID:       actorID,
	})
	return &GrantResult{Transaction: row, NewBalance: balance}, nil
}

func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	return balance, translate(err, "user")
}

func (s *LedgerService) Transactions(ctx context.Context, f models.TransactionFilter) ([]*models.FlarikiTransaction, models.Pagination, error) {
	if f.Type != nil && !f.Type.Valid() {
		return nil, models.Pagination{}, domain.Validation("invalid type",
			domain.FieldError{Field: "type", Message: "must be EARNED, SPENT, BONUS or PENALTY"})
	}
	rows, total, err := s.ledger.ListTransactions(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "transaction")
	}
	return rows, models.NewPagination(f.Page, total), nil
}

// Recent returns the latest ledger rows of a user.
func (s *LedgerService) Recent(ctx context.Context, userID string) ([]*models.FlarikiTransaction, error) {
	rows, _, err := s.ledger.ListTransactions(ctx, models.TransactionFilter{
		UserID: &userID,
		Page:   models.Page{Page: 1, Limit: models.RecentTransactionsLimit},
	})
	return rows, translate(err, "transaction")
}

func (s *LedgerService) Stats(ctx context.Context) (*models.LedgerStats, error) {
	stats, err := s.ledger.LedgerStats(ctx)
	return stats, translate(err, "ledger")
}

// Reconcile reports users whose balance differs from their ledger sum.
func (s *LedgerService) Reconcile(ctx context.Context) ([]models.BalanceMismatch, error) {
	mismatches, err := s.ledger.FindBalanceMismatches(ctx)
	if err != nil {
		return nil, translate(err, "ledger")
	}
	metrics.SetBalanceMismatches(len(mismatches))
	for _, m := range mismatches {
		s.logger.Error().
			Str("user_id", m.UserID).
			Int64("balance", m.Balance).
			Int64("ledger_sum", m.LedgerSum).
			Msg("balance does not match ledger")
	}
	return mismatches, nil
}
