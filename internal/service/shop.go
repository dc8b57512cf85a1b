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

type ShopService struct {
	shop       domain.ShopStore
	gates      *GateService
	dispatcher domain.Dispatcher
	sync       domain.SyncEnqueuer
	audit      *Auditor
	eventBus   domain.EventPublisher
	logger     *zerolog.Logger
}

func NewShopService(
	shop domain.ShopStore,
	gates *GateService,
	dispatcher domain.Dispatcher,
	sync domain.SyncEnqueuer,
	audit *Auditor,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *ShopService {
	return &ShopService{
		shop:       shop,
		gates:      gates,
		dispatcher: dispatcher,
		sync:       sync,
		audit:      audit,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Items lists active items for an ACTIVE user.
func (s *ShopService) Items(ctx context.Context, userID string) ([]*models.ShopItem, error) {
	if _, err := s.gates.RequireActive(ctx, userID); err != nil {
		return nil, err
	}
	items, err := s.shop.ListShopItems(ctx, true)
	return items, translate(err, "shop item")
}

// AllItems is the admin listing including inactive items.
func (s *ShopService) AllItems(ctx context.Context) ([]*models.ShopItem, error) {
	items, err := s.shop.ListShopItems(ctx, false)
	return items, translate(err, "shop item")
}

// Purchase buys quantity units of an item. Every check and write happens in
// one store transaction.
func (s *ShopService) Purchase(ctx context.Context, userID, itemID string, quantity int) (*models.PurchaseResult, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, domain.Validation("invalid purchase", domain.FieldError{Field: "shopItemId", Message: "required"})
	}
	if quantity < models.MinPurchaseQuantity || quantity > models.MaxPurchaseQuantity {
		return nil, domain.Validation("invalid purchase",
			domain.FieldError{Field: "quantity", Message: "must be between 1 and 10"})
	}

	res, err := s.shop.Purchase(ctx, userID, itemID, quantity)
	if err != nil {
		return nil, translate(err, "shop item")
	}
	metrics.IncLedger(string(res.Transaction.Type))

	p := res.Purchase
	s.audit.Record(ctx, userID, AuditShopPurchase, "purchase", p.ID, map[string]interface{}{
		"shopItemId": p.ShopItemID,
		"quantity":   p.Quantity,
		"totalPrice": p.TotalPrice,
	})
	publishEvent(s.eventBus, s.logger, events.EventPurchaseCreated, purchasePayload(p))
	s.enqueueSync(ctx, p)
	return res, nil
}

func (s *ShopService) MyPurchases(ctx context.Context, userID string, page models.Page) ([]*models.Purchase, models.Pagination, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, models.Pagination{}, err
	}
	return s.Purchases(ctx, models.PurchaseFilter{UserID: &userID, Page: page})
}

func (s *ShopService) Purchases(ctx context.Context, f models.PurchaseFilter) ([]*models.Purchase, models.Pagination, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, models.Pagination{}, domain.Validation("invalid status",
			domain.FieldError{Field: "status", Message: "unknown purchase status"})
	}
	rows, total, err := s.shop.ListPurchases(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "purchase")
	}
	return rows, models.NewPagination(f.Page, total), nil
}

// UpdatePurchaseStatus moves a purchase forward. Cancellation does not refund.
func (s *ShopService) UpdatePurchaseStatus(ctx context.Context, actorID, purchaseID string, status models.PurchaseStatus, notes *string) (*models.Purchase, error) {
	if !status.Valid() {
		return nil, domain.Validation("invalid status",
			domain.FieldError{Field: "status", Message: "unknown purchase status"})
	}

	p, previous, err := s.shop.UpdatePurchaseStatus(ctx, purchaseID, status, notes)
	if err != nil {
		return nil, translate(err, "purchase")
	}

	s.audit.Record(ctx, actorID, AuditPurchaseStatusUpdated, "purchase", p.ID, map[string]interface{}{
		"previousStatus": previous,
		"status":         p.Status,
	})
	publishEvent(s.eventBus, s.logger, events.EventPurchaseUpdated, purchasePayload(p))
	s.enqueueSync(ctx, p)

	if p.User != nil && p.ShopItem != nil {
		single(s.dispatcher, "purchase_status", domain.Notification{
			TelegramID: p.User.TelegramID,
			Text:       purchaseStatusText(p.ShopItem.Name, p.Status),
		})
	}
	return p, nil
}

// ShopItemInput is the admin body for items.
type ShopItemInput struct {
	Name        string
	Description *string
	ImageURL    *string
	Price       int64
	Stock       *int64
	Category    *string
	IsActive    *bool
}

func (in ShopItemInput) validate() error {
	var fields []domain.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, domain.FieldError{Field: "name", Message: "required"})
	}
	if in.Price <= 0 {
		fields = append(fields, domain.FieldError{Field: "price", Message: "must be greater than 0"})
	}
	if in.Stock != nil && *in.Stock < 0 {
		fields = append(fields, domain.FieldError{Field: "stock", Message: "must be non-negative"})
	}
	if in.ImageURL != nil && *in.ImageURL != "" && !validURL(*in.ImageURL) && !strings.HasPrefix(*in.ImageURL, "/") {
		fields = append(fields, domain.FieldError{Field: "imageUrl", Message: "must be a valid URL"})
	}
	if len(fields) > 0 {
		return domain.Validation("invalid shop item", fields...)
	}
	return nil
}

func (in ShopItemInput) apply(it *models.ShopItem) {
	it.Name = strings.TrimSpace(in.Name)
	it.Description = in.Description
	it.ImageURL = in.ImageURL
	it.Price = in.Price
	it.Stock = in.Stock
	it.Category = in.Category
	if in.IsActive != nil {
		it.IsActive = *in.IsActive
	}
}

func (s *ShopService) CreateItem(ctx context.Context, actorID string, in ShopItemInput) (*models.ShopItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	it := &models.ShopItem{IsActive: true}
	in.apply(it)
	if err := s.shop.CreateShopItem(ctx, it); err != nil {
		return nil, translate(err, "shop item")
	}
	s.audit.Record(ctx, actorID, AuditShopItemCreated, "shop_item", it.ID, map[string]interface{}{"name": it.Name, "price": it.Price})
	return it, nil
}

func (s *ShopService) UpdateItem(ctx context.Context, actorID, itemID string, in ShopItemInput) (*models.ShopItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	it, err := s.shop.GetShopItem(ctx, itemID)
	if err != nil {
		return nil, translate(err, "shop item")
	}
	in.apply(it)
	if err := s.shop.UpdateShopItem(ctx, it); err != nil {
		return nil, translate(err, "shop item")
	}
	s.audit.Record(ctx, actorID, AuditShopItemUpdated, "shop_item", it.ID, map[string]interface{}{"name": it.Name, "price": it.Price})
	return it, nil
}

func (s *ShopService) DeleteItem(ctx context.Context, actorID, itemID string) error {
	if err := s.shop.DeleteShopItem(ctx, itemID); err != nil {
		return translate(err, "shop item")
	}
	s.audit.Record(ctx, actorID, AuditShopItemDeleted, "shop_item", itemID, nil)
	return nil
}

func purchasePayload(p *models.Purchase) events.PurchaseEventPayload {
	return events.PurchaseEventPayload{
		PurchaseID: p.ID,
		UserID:     p.UserID,
		ItemID:     p.ShopItemID,
		Quantity:   p.Quantity,
		TotalPrice: p.TotalPrice,
		Status:     string(p.Status),
	}
}

func (s *ShopService) enqueueSync(ctx context.Context, p *models.Purchase) {
	if s.sync == nil {
		return
	}
	if err := s.sync.EnqueuePurchase(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("purchase_id", p.ID).Msg("sheets enqueue error")
	}
}
