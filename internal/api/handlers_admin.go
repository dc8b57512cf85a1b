package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"flariki/internal/export"
	"flariki/internal/models"
	"flariki/internal/service"
)

func (s *Server) listProducts(c *gin.Context) {
	products, err := s.svc.Catalog.Products(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) adminListProducts(c *gin.Context) {
	products, err := s.svc.Catalog.Products(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type productRequest struct {
	Name        string  `json:"name" binding:"max=255"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	IsActive    *bool   `json:"isActive"`
}

func (r productRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		IsActive:    r.IsActive,
	}
}

func (s *Server) createProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := s.svc.Catalog.CreateProduct(c.Request.Context(), identity(c).UserID, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": p})
}

func (s *Server) updateProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := s.svc.Catalog.UpdateProduct(c.Request.Context(), identity(c).UserID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.svc.Catalog.DeleteProduct(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Продукт удален"})
}

func (s *Server) listTags(c *gin.Context) {
	tags, err := s.svc.Catalog.Tags(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

type tagRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Color       *string `json:"color" binding:"omitempty,max=32"`
	Description *string `json:"description"`
}

func (s *Server) createTag(c *gin.Context) {
	var req tagRequest
	if !bindJSON(c, &req) {
		return
	}
	tag, err := s.svc.Catalog.CreateTag(c.Request.Context(), identity(c).UserID, service.TagInput{
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tag": tag})
}

func (s *Server) deleteTag(c *gin.Context) {
	if err := s.svc.Catalog.DeleteTag(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Тег удален"})
}

func (s *Server) listBroadcasts(c *gin.Context) {
	rows, page, err := s.svc.Broadcasts.List(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "broadcasts", rows, page)
}

type broadcastRequest struct {
	Title   string   `json:"title" binding:"required,max=255"`
	Message string   `json:"message" binding:"required"`
	TagIDs  []string `json:"tagIds" binding:"omitempty,dive,required"`
	TaskIDs []string `json:"taskIds" binding:"omitempty,dive,required"`
}

func (s *Server) sendBroadcast(c *gin.Context) {
	var req broadcastRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := s.svc.Broadcasts.Send(c.Request.Context(), identity(c).UserID, service.BroadcastInput{
		Title:   req.Title,
		Message: req.Message,
		TagIDs:  req.TagIDs,
		TaskIDs: req.TaskIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"broadcast": b})
}

func (s *Server) auditLogs(c *gin.Context) {
	logs, page, err := s.svc.Audit.List(c.Request.Context(), models.AuditFilter{
		Action:     optionalQuery(c, "action"),
		EntityType: optionalQuery(c, "entityType"),
		Page:       pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "logs", logs, page)
}

func statsFilter(c *gin.Context) (models.StatsFilter, error) {
	from, err := queryDate(c, "startDate")
	if err != nil {
		return models.StatsFilter{}, err
	}
	to, err := queryDate(c, "endDate")
	if err != nil {
		return models.StatsFilter{}, err
	}
	return models.StatsFilter{
		From:   from,
		To:     to,
		UserID: optionalQuery(c, "userId"),
		TaskID: optionalQuery(c, "taskId"),
	}, nil
}

func (s *Server) statsOverview(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	overview, err := s.svc.Stats.Overview(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) leaderboard(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	board, err := s.svc.Stats.Leaderboard(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// sendXLSX пишет книгу прямо в ответ. После начала записи статус уже не поменять.
func (s *Server) sendXLSX(c *gin.Context, filename string, write func(w http.ResponseWriter) error) {
	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := write(c.Writer); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("file", filename).Msg("export failed")
		_ = c.Error(err)
	}
}

func exportName(prefix string) string {
	return fmt.Sprintf("%s-%s.xlsx", prefix, time.Now().Format("2006-01-02"))
}

func (s *Server) exportReports(c *gin.Context) {
	f := models.ReportFilter{
		UserID: optionalQuery(c, "userId"),
		TaskID: optionalQuery(c, "taskId"),
		Status: queryEnum[models.ReportStatus](c, "status"),
		Type:   queryEnum[models.ReportType](c, "type"),
	}
	var all []*models.Report
	for page := 1; ; page++ {
		f.Page = models.Page{Page: page, Limit: models.MaxPageSize}
		rows, p, err := s.svc.Reports.List(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		all = append(all, rows...)
		if page >= p.TotalPages || len(rows) == 0 {
			break
		}
	}
	s.sendXLSX(c, exportName("reports"), func(w http.ResponseWriter) error {
		return export.Reports(w, all, time.Now())
	})
}

func (s *Server) exportPurchases(c *gin.Context) {
	f := models.PurchaseFilter{
		UserID: optionalQuery(c, "userId"),
		Status: queryEnum[models.PurchaseStatus](c, "status"),
	}
	var all []*models.Purchase
	for page := 1; ; page++ {
		f.Page = models.Page{Page: page, Limit: models.MaxPageSize}
		rows, p, err := s.svc.Shop.Purchases(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		all = append(all, rows...)
		if page >= p.TotalPages || len(rows) == 0 {
			break
		}
	}
	s.sendXLSX(c, exportName("purchases"), func(w http.ResponseWriter) error {
		return export.Purchases(w, all, time.Now())
	})
}

func (s *Server) exportLeaderboard(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	board, err := s.svc.Stats.Leaderboard(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	s.sendXLSX(c, exportName("leaderboard"), func(w http.ResponseWriter) error {
		return export.Leaderboard(w, board, time.Now())
	})
}
