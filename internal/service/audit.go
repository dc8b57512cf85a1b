package service

import (
	"context"
	"encoding/json"

	"flariki/internal/domain"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// Audit actions.
const (
	AuditTaskCreated           = "TASK_CREATED"
	AuditTaskUpdated           = "TASK_UPDATED"
	AuditTaskDeleted           = "TASK_DELETED"
	AuditTaskPublished         = "TASK_PUBLISHED"
	AuditReportApproved        = "REPORT_APPROVED"
	AuditReportRejected        = "REPORT_REJECTED"
	AuditReportModerated       = "REPORT_MODERATED"
	AuditFlarikiAwarded        = "FLARIKI_AWARDED"
	AuditFlarikiPenalized      = "FLARIKI_PENALIZED"
	AuditShopPurchase          = "SHOP_PURCHASE"
	AuditPurchaseStatusUpdated = "PURCHASE_STATUS_UPDATED"
	AuditShopItemCreated       = "SHOP_ITEM_CREATED"
	AuditShopItemUpdated       = "SHOP_ITEM_UPDATED"
	AuditShopItemDeleted       = "SHOP_ITEM_DELETED"
	AuditBroadcastCreated      = "BROADCAST_CREATED"
	AuditUserModerated         = "USER_MODERATED"
	AuditTagsAssigned          = "TAGS_ASSIGNED"
	AuditTagCreated            = "TAG_CREATED"
	AuditTagDeleted            = "TAG_DELETED"
	AuditProductCreated        = "PRODUCT_CREATED"
	AuditProductUpdated        = "PRODUCT_UPDATED"
	AuditProductDeleted        = "PRODUCT_DELETED"
)

// Auditor writes audit rows. A failed write is logged and never fails the
// caller's operation.
type Auditor struct {
	store  domain.AuditStore
	logger *zerolog.Logger
}

func NewAuditor(store domain.AuditStore, logger *zerolog.Logger) *Auditor {
	return &Auditor{store: store, logger: logger}
}

func (a *Auditor) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) {
	if a == nil || a.store == nil {
		return
	}

	entry := &models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   models.StringPtr(entityID),
		UserID:     models.StringPtr(actorID),
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			a.logger.Error().Err(err).Str("action", action).Msg("audit details encode error")
		} else {
			entry.Details = raw
		}
	}

	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Error().Err(err).Str("action", action).Str("entity_id", entityID).Msg("audit log write error")
	}
}

func (a *Auditor) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, models.Pagination, error) {
	logs, total, err := a.store.ListAuditLogs(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "audit log")
	}
	return logs, models.NewPagination(f.Page, total), nil
}
