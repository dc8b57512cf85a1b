package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"flariki/internal/models"
	"flariki/internal/service"
)

func (s *Server) balance(c *gin.Context) {
	balance, err := s.svc.Ledger.Balance(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) transactions(c *gin.Context) {
	userID := identity(c).UserID
	rows, page, err := s.svc.Ledger.Transactions(c.Request.Context(), models.TransactionFilter{
		UserID: &userID,
		Type:   queryEnum[models.TransactionType](c, "type"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "transactions", rows, page)
}

type grantRequest struct {
	UserID   string  `json:"userId" binding:"required"`
	Amount   int64   `json:"amount" binding:"required,gt=0"`
	Reason   string  `json:"reason" binding:"required"`
	TaskID   *string `json:"taskId"`
	ReportID *string `json:"reportId"`
}

func (r grantRequest) toGrant() service.Grant {
	return service.Grant{
		UserID:   r.UserID,
		Amount:   r.Amount,
		Reason:   r.Reason,
		TaskID:   r.TaskID,
		ReportID: r.ReportID,
	}
}

func (s *Server) award(c *gin.Context) {
	var req grantRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.svc.Ledger.Award(c.Request.Context(), identity(c).UserID, req.toGrant())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": res.Transaction, "newBalance": res.NewBalance})
}

func (s *Server) penalty(c *gin.Context) {
	var req grantRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.svc.Ledger.Penalize(c.Request.Context(), identity(c).UserID, req.toGrant())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": res.Transaction, "newBalance": res.NewBalance})
}

func (s *Server) ledgerStats(c *gin.Context) {
	stats, err := s.svc.Ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) reconcile(c *gin.Context) {
	mismatches, err := s.svc.Ledger.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}

func (s *Server) shopItems(c *gin.Context) {
	items, err := s.svc.Shop.Items(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type purchaseRequest struct {
	ShopItemID string `json:"shopItemId" binding:"required"`
	Quantity   *int   `json:"quantity"`
}

func (s *Server) purchase(c *gin.Context) {
	var req purchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	res, err := s.svc.Shop.Purchase(c.Request.Context(), identity(c).UserID, req.ShopItemID, qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) myPurchases(c *gin.Context) {
	rows, page, err := s.svc.Shop.MyPurchases(c.Request.Context(), identity(c).UserID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "purchases", rows, page)
}

func (s *Server) adminShopItems(c *gin.Context) {
	items, err := s.svc.Shop.AllItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type shopItemRequest struct {
	Name        string  `json:"name" binding:"required,max=255"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	Price       int64   `json:"price" binding:"required,gt=0"`
	Stock       *int64  `json:"stock" binding:"omitempty,gte=0"`
	Category    *string `json:"category"`
	IsActive    *bool   `json:"isActive"`
}

func (r shopItemRequest) toInput() service.ShopItemInput {
	return service.ShopItemInput{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Price:       r.Price,
		Stock:       r.Stock,
		Category:    r.Category,
		IsActive:    r.IsActive,
	}
}

func (s *Server) createShopItem(c *gin.Context) {
	var req shopItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.svc.Shop.CreateItem(c.Request.Context(), identity(c).UserID, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (s *Server) updateShopItem(c *gin.Context) {
	var req shopItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.svc.Shop.UpdateItem(c.Request.Context(), identity(c).UserID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) deleteShopItem(c *gin.Context) {
	if err := s.svc.Shop.DeleteItem(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Товар удален"})
}

func (s *Server) listPurchases(c *gin.Context) {
	rows, page, err := s.svc.Shop.Purchases(c.Request.Context(), models.PurchaseFilter{
		UserID: optionalQuery(c, "userId"),
		Status: queryEnum[models.PurchaseStatus](c, "status"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "purchases", rows, page)
}

type purchaseStatusRequest struct {
	Status models.PurchaseStatus `json:"status" binding:"required"`
	Notes  *string               `json:"notes"`
}

func (s *Server) updatePurchaseStatus(c *gin.Context) {
	var req purchaseStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	status := models.PurchaseStatus(strings.ToUpper(string(req.Status)))
	p, err := s.svc.Shop.UpdatePurchaseStatus(c.Request.Context(), identity(c).UserID, c.Param("id"), status, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase": p})
}
