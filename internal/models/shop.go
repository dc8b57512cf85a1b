package models

import "time"

const (
	MinPurchaseQuantity = 1
	MaxPurchaseQuantity = 10
)

type ShopItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	Price       int64     `json:"price"`
	Stock       *int64    `json:"stock"`
	Category    *string   `json:"category"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type PurchaseStatus string

const (
	PurchasePending    PurchaseStatus = "PENDING"
	PurchaseProcessing PurchaseStatus = "PROCESSING"
	PurchaseShipped    PurchaseStatus = "SHIPPED"
	PurchaseDelivered  PurchaseStatus = "DELIVERED"
	PurchaseCancelled  PurchaseStatus = "CANCELLED"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchaseProcessing, PurchaseShipped, PurchaseDelivered, PurchaseCancelled:
		return true
	}
	return false
}

func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseDelivered || s == PurchaseCancelled
}

// purchaseNext: только вперед, отмена из любого нетерминального статуса.
var purchaseNext = map[PurchaseStatus]PurchaseStatus{
	PurchasePending:    PurchaseProcessing,
	PurchaseProcessing: PurchaseShipped,
	PurchaseShipped:    PurchaseDelivered,
}

func CanTransitionPurchase(from, to PurchaseStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == PurchaseCancelled {
		return true
	}
	return purchaseNext[from] == to
}

type Purchase struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	ShopItemID string         `json:"shopItemId"`
	Quantity   int            `json:"quantity"`
	TotalPrice int64          `json:"totalPrice"`
	Status     PurchaseStatus `json:"status"`
	Notes      *string        `json:"notes"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`

	ShopItem *ShopItem `json:"shopItem,omitempty"`
	User     *User     `json:"user,omitempty"`
}

type PurchaseFilter struct {
	UserID *string
	Status *PurchaseStatus
	Page
}

// PurchaseResult is a committed purchase with its ledger row.
type PurchaseResult struct {
	Purchase    *Purchase           `json:"purchase"`
	Transaction *FlarikiTransaction `json:"transaction"`
	NewBalance  int64               `json:"newBalance"`
}
