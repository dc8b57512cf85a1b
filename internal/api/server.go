package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"flariki/internal/config"
	"flariki/internal/database"
	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/service"
)

// Services собирает зависимости HTTP слоя.
type Services struct {
	DB         *database.DB
	Gate       *service.AccessGate
	Gates      *service.GateService
	AdminAuth  *service.AdminAuthService
	Users      *service.UserService
	Tasks      *service.TaskService
	Reports    *service.ReportService
	Ledger     *service.LedgerService
	Shop       *service.ShopService
	Catalog    *service.CatalogService
	Broadcasts *service.BroadcastService
	Audit      *service.Auditor
	Stats      *service.StatsService
	Blobs      domain.BlobStore
	RateLimits domain.StateRepository
	Events     *events.EventBus
}

// Server is the HTTP API of the Mini App and the admin panel.
type Server struct {
	cfg    *config.Config
	svc    Services
	engine *gin.Engine
	server *http.Server
	hub    *Hub
	logger *zerolog.Logger
}

func NewServer(cfg *config.Config, svc Services, logger *zerolog.Logger) *Server {
	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidator()

	l := logger.With().Str("component", "http").Logger()
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		engine: gin.New(),
		hub:    NewHub(&l),
		logger: &l,
	}
	if svc.Events != nil {
		svc.Events.Subscribe(events.AllEvents, s.hub.Publish)
	}

	s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:      s.engine,
		ReadTimeout:  cfg.API.HTTP.ReadTimeout,
		WriteTimeout: cfg.API.HTTP.WriteTimeout,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.engine
	r.Use(requestLogger(s.logger), recovery(s.cfg.App.IsDevelopment()), metricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.API.CORS.AllowedOrigins,
		AllowAllOrigins:  len(s.cfg.API.CORS.AllowedOrigins) == 0,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", headerInitData},
		AllowCredentials: len(s.cfg.API.CORS.AllowedOrigins) > 0,
	}))
	r.MaxMultipartMemory = s.cfg.Uploads.MaxBytes

	health := newHealthHandler(s.svc.DB, s.cfg.App.Version)
	r.GET("/health", health.Health)
	r.GET("/health/db", health.Database)

	if s.cfg.Uploads.Dir != "" {
		r.Static(s.cfg.Uploads.URLPrefix, s.cfg.Uploads.Dir)
	}

	api := r.Group("/api")
	api.POST("/auth/admin/login", s.adminLogin)

	authed := api.Group("")
	authed.Use(s.authenticate(), s.rateLimit())

	authed.GET("/auth/admin/me", requireStaff(), s.adminMe)

	users := authed.Group("/users")
	users.GET("/me", s.getMe)
	users.PATCH("/me", s.updateMe)
	users.GET("/me/flariki", s.myTransactions)

	tasks := authed.Group("/tasks")
	tasks.GET("", s.listTasks)
	tasks.GET("/:id", s.getTask)

	reports := authed.Group("/reports")
	reports.POST("", s.createReport)
	reports.GET("/my", s.myReports)
	reports.POST("/upload-screenshot", s.uploadScreenshot)
	reports.GET("/:id", s.getReport)

	flariki := authed.Group("/flariki")
	flariki.GET("/balance", s.balance)
	flariki.GET("/transactions", s.transactions)

	shop := authed.Group("/shop")
	shop.GET("/items", s.shopItems)
	shop.POST("/purchase", s.purchase)
	shop.GET("/purchases/my", s.myPurchases)

	authed.GET("/products", s.listProducts)

	staff := authed.Group("")
	staff.Use(requireStaff())
	{
		staff.GET("/admin/tasks", s.adminListTasks)
		staff.POST("/admin/tasks", s.createTask)
		staff.GET("/admin/tasks/:id", s.adminGetTask)
		staff.PATCH("/admin/tasks/:id", s.updateTask)
		staff.DELETE("/admin/tasks/:id", s.deleteTask)
		staff.POST("/admin/tasks/:id/publish", s.publishTask)
		staff.POST("/tasks/:id/publish", s.publishTask)

		staff.GET("/admin/reports", s.adminListReports)
		staff.PATCH("/admin/reports/:id", s.moderateReport)
		staff.PATCH("/reports/:id", s.moderateReport)

		staff.POST("/flariki/award", s.award)
		staff.POST("/flariki/penalty", s.penalty)
		staff.GET("/flariki/stats", s.ledgerStats)
		staff.GET("/flariki/reconcile", s.reconcile)
		staff.GET("/admin/users/:id/transactions", s.userTransactions)

		staff.GET("/shop/admin/items", s.adminShopItems)
		staff.POST("/shop/admin/items", s.createShopItem)
		staff.PUT("/shop/admin/items/:id", s.updateShopItem)
		staff.DELETE("/shop/admin/items/:id", s.deleteShopItem)
		staff.GET("/shop/purchases", s.listPurchases)
		staff.PATCH("/shop/purchases/:id/status", s.updatePurchaseStatus)

		staff.GET("/admin/products", s.adminListProducts)
		staff.POST("/admin/products", s.createProduct)
		staff.PUT("/admin/products/:id", s.updateProduct)
		staff.DELETE("/admin/products/:id", s.deleteProduct)

		staff.GET("/admin/users", s.listUsers)
		staff.PATCH("/admin/users/:id/moderate", s.moderateUser)
		staff.PUT("/admin/users/:id/tags", s.assignTags)

		staff.GET("/admin/tags", s.listTags)
		staff.POST("/admin/tags", s.createTag)
		staff.DELETE("/admin/tags/:id", s.deleteTag)

		staff.GET("/admin/broadcasts", s.listBroadcasts)
		staff.POST("/admin/broadcasts", s.sendBroadcast)

		staff.GET("/admin/audit-logs", s.auditLogs)

		staff.GET("/statistics/overview", s.statsOverview)
		staff.GET("/statistics/leaderboard", s.leaderboard)

		staff.GET("/admin/exports/reports.xlsx", s.exportReports)
		staff.GET("/admin/exports/purchases.xlsx", s.exportPurchases)
		staff.GET("/admin/exports/leaderboard.xlsx", s.exportLeaderboard)
	}

	// websocket аутентифицируется сам: браузер не шлет заголовки при upgrade
	api.GET("/admin/events/ws", s.liveFeed)

	if s.cfg.API.Integration.Enabled {
		integration := api.Group("/integration/v1")
		integration.Use(NewIntegrationAuth(s.cfg.API.Integration).Middleware())
		integration.GET("/leaderboard", s.integrationLeaderboard)
		integration.GET("/reports", s.integrationReports)
	}
}
