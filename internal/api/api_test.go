package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flariki/internal/config"
	"flariki/internal/database"
	"flariki/internal/events"
	"flariki/internal/export"
	"flariki/internal/models"
	"flariki/internal/repository"
	"flariki/internal/service"
	"flariki/internal/storage"
)

const (
	testBotToken  = "123456:test-bot-token"
	testJWTSecret = "0123456789abcdef0123"
)

var telegramSeq int64 = 9000

type testAPI struct {
	db     *database.DB
	bus    *events.EventBus
	server *Server
	ts     *httptest.Server
	issuer *service.TokenIssuer
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "flariki", Environment: "test", Version: "test", FrontendURL: "https://app.example"},
		API: config.APIConfig{
			HTTP:      config.APIHTTPConfig{Port: 0},
			RateLimit: config.APIRateLimitConfig{Requests: 1000, Window: time.Minute},
			Integration: config.APIIntegrationConfig{
				Enabled:      true,
				HeaderAPIKey: "X-API-Key",
				HeaderExtra:  "X-API-Extra",
				APIKeys: []config.APIClientKey{
					{Key: "stats-key", Extra: "stats-extra", Name: "bi", Permissions: []string{PermReadStats}},
					{Key: "all-key", Extra: "all-extra", Name: "crm"},
				},
				RPS:   100,
				Burst: 100,
			},
		},
		Uploads: config.UploadsConfig{Dir: t.TempDir(), URLPrefix: "/uploads", MaxBytes: 1 << 20},
	}
}

func newTestAPI(t *testing.T, opts ...func(*config.Config)) *testAPI {
	t.Helper()
	logger := zerolog.Nop()
	cfg := testConfig(t)
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := storage.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, &logger)
	require.NoError(t, err)

	bus := events.NewEventBus()
	links := service.Links{FrontendURL: cfg.App.FrontendURL}
	issuer := service.NewTokenIssuer(testJWTSecret, time.Hour)
	audit := service.NewAuditor(db, &logger)
	gates := service.NewGateService(db)

	svc := Services{
		DB: db,
		Gate: service.NewAccessGate(
			service.NewTelegramResolver(db, testBotToken, time.Hour, &logger),
			service.NewBearerResolver(db, issuer),
		),
		Gates:      gates,
		AdminAuth:  service.NewAdminAuthService(db, issuer, false, &logger),
		Users:      service.NewUserService(db, nil, audit, bus, links, &logger),
		Tasks:      service.NewTaskService(db, db, gates, nil, audit, bus, links, &logger),
		Reports:    service.NewReportService(db, gates, nil, nil, audit, bus, &logger),
		Ledger:     service.NewLedgerService(db, db, nil, audit, bus, &logger),
		Shop:       service.NewShopService(db, gates, nil, nil, audit, bus, &logger),
		Catalog:    service.NewCatalogService(db, audit),
		Broadcasts: service.NewBroadcastService(db, db, db, nil, audit, bus, links, &logger),
		Audit:      audit,
		Stats:      service.NewStatsService(db),
		Blobs:      blobs,
		RateLimits: repository.NewMemoryStateRepository(time.Hour),
		Events:     bus,
	}

	server := NewServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(server.hub.Close)

	return &testAPI{db: db, bus: bus, server: server, ts: ts, issuer: issuer}
}

// request sends body as JSON; auth is either "tma <initData>" or a bearer token.
func (a *testAPI) request(t *testing.T, method, path, auth string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, auth)
	return a.do(t, req)
}

func (a *testAPI) do(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func setAuth(req *http.Request, auth string) {
	switch {
	case auth == "":
	case strings.HasPrefix(auth, "tma "):
		req.Header.Set(headerInitData, strings.TrimPrefix(auth, "tma "))
	default:
		req.Header.Set("Authorization", "Bearer "+auth)
	}
}

// staffToken creates a staff user and logs in through the API.
func (a *testAPI) staffToken(t *testing.T, role models.Role) (*models.User, string) {
	t.Helper()
	hash, err := service.HashPassword("s3cret!")
	require.NoError(t, err)
	email := "staff" + strconv.FormatInt(atomic.AddInt64(&telegramSeq, 1), 10) + "@example.com"
	user, err := a.db.CreateStaffUser(context.Background(), email, hash, role, 0)
	require.NoError(t, err)

	resp, body := a.request(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{
		"email": email, "password": "s3cret!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return user, body["token"].(string)
}

// ambassador signs init data for a fresh Telegram user; activate=true makes it ACTIVE with a full profile.
func (a *testAPI) ambassador(t *testing.T, activate bool) (*models.User, string) {
	t.Helper()
	tgID := atomic.AddInt64(&telegramSeq, 1)
	auth := "tma " + signInitData(t, map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":` + strconv.FormatInt(tgID, 10) + `,"first_name":"Анна","username":"anna` + strconv.FormatInt(tgID, 10) + `"}`,
	})

	resp, body := a.request(t, http.MethodGet, "/api/users/me", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	ctx := context.Background()
	user, err := a.db.GetUserByTelegramID(ctx, tgID)
	require.NoError(t, err)
	if activate {
		phone, pvz := "+79990001122", "MSK-1"
		_, err = a.db.UpdateUserProfile(ctx, user.ID, models.ProfileUpdate{Phone: &phone, CdekPvz: &pvz})
		require.NoError(t, err)
		user, err = a.db.SetUserStatus(ctx, user.ID, models.UserActive, nil)
		require.NoError(t, err)
	}
	return user, auth
}

func signInitData(t *testing.T, fields map[string]string) string {
	t.Helper()
	parts := make([]string, 0, len(fields))
	vals := url.Values{}
	for k, v := range fields {
		parts = append(parts, k+"="+v)
		vals.Set(k, v)
	}
	sort.Strings(parts)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(testBotToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(parts, "\n")))
	vals.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return vals.Encode()
}

func (a *testAPI) publishedTask(t *testing.T, token string, reward int64) string {
	t.Helper()
	resp, body := a.request(t, http.MethodPost, "/api/admin/tasks", token, map[string]interface{}{
		"title":         "Сторис с кремом",
		"description":   "Покажите продукт в сторис",
		"type":          "GENERAL",
		"rewardFlariki": reward,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	taskID := body["task"].(map[string]interface{})["id"].(string)

	resp, body = a.request(t, http.MethodPost, "/api/tasks/"+taskID+"/publish", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return taskID
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = api.request(t, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", body["database"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	t.Run("NoCredentials", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/users/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "unauthorized", body["error"])
	})

	t.Run("BadSignature", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodGet, "/api/users/me", "tma auth_date=1&user=%7B%7D&hash=00", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{
			"email": "nobody@example.com", "password": "x",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("LoginValidation", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{"email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_error", body["error"])
		assert.Len(t, body["details"], 2)
	})

	t.Run("AdminMe", func(t *testing.T) {
		manager, token := api.staffToken(t, models.RoleManager)
		resp, body := api.request(t, http.MethodGet, "/api/auth/admin/me", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, manager.ID, body["user"].(map[string]interface{})["id"])
	})
}

func TestGates(t *testing.T) {
	api := newTestAPI(t)

	t.Run("PendingUser", func(t *testing.T) {
		_, auth := api.ambassador(t, false)
		resp, body := api.request(t, http.MethodGet, "/api/tasks", auth, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "pending_moderation", body["reason"])
		assert.Equal(t, "PENDING", body["status"])
	})

	t.Run("IncompleteProfile", func(t *testing.T) {
		user, auth := api.ambassador(t, false)
		_, err := api.db.SetUserStatus(context.Background(), user.ID, models.UserActive, nil)
		require.NoError(t, err)

		resp, body := api.request(t, http.MethodGet, "/api/tasks", auth, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "profile_incomplete", body["reason"])
		assert.Equal(t, map[string]interface{}{"contact": true, "address": true}, body["required"])

		// магазин требует только активный статус
		resp, _ = api.request(t, http.MethodGet, "/api/shop/items", auth, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("AmbassadorOnAdminRoute", func(t *testing.T) {
		_, auth := api.ambassador(t, true)
		resp, body := api.request(t, http.MethodGet, "/api/admin/tasks", auth, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "insufficient_role", body["reason"])
	})

	t.Run("ProfileUpdateClearsFields", func(t *testing.T) {
		_, auth := api.ambassador(t, true)
		resp, body := api.request(t, http.MethodPatch, "/api/users/me", auth, map[string]string{
			"email":   "anna@example.com",
			"address": "",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		user := body["user"].(map[string]interface{})
		assert.Equal(t, "anna@example.com", user["email"])
		assert.Nil(t, user["address"])

		resp, body = api.request(t, http.MethodPatch, "/api/users/me", auth, map[string]string{"vkLink": "vk"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_error", body["error"])
	})
}

func TestReportLifecycle(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleManager)
	taskID := api.publishedTask(t, token, 100)
	user, auth := api.ambassador(t, true)

	resp, body := api.request(t, http.MethodGet, "/api/tasks", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["tasks"], 1)

	// старый формат: одна сторис полями верхнего уровня
	resp, body = api.request(t, http.MethodPost, "/api/reports", auth, map[string]interface{}{
		"taskId":     taskID,
		"type":       "STORY_SCREENSHOT",
		"storyUrl":   "https://instagram.com/stories/1",
		"storyReach": 250,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	report := body["report"].(map[string]interface{})
	reportID := report["id"].(string)
	assert.Equal(t, "PENDING", report["status"])
	require.Len(t, report["stories"], 1)

	resp, body = api.request(t, http.MethodGet, "/api/reports/my", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total"])

	resp, body = api.request(t, http.MethodPatch, "/api/reports/"+reportID, auth, map[string]string{"status": "APPROVED"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, body)

	resp, body = api.request(t, http.MethodPatch, "/api/reports/"+reportID, token, map[string]string{"status": "REJECTED"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	resp, body = api.request(t, http.MethodPatch, "/api/reports/"+reportID, token, map[string]string{"status": "APPROVED"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(100), body["transaction"].(map[string]interface{})["amount"])

	// только заметки, без статуса
	resp, body = api.request(t, http.MethodPatch, "/api/admin/reports/"+reportID, token, map[string]string{"notes": "проверено"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "проверено", body["report"].(map[string]interface{})["notes"])
	assert.Nil(t, body["transaction"])

	resp, body = api.request(t, http.MethodPatch, "/api/reports/"+reportID, token, map[string]interface{}{
		"status": "REJECTED", "rejectionReason": "поздно",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["error"])

	resp, body = api.request(t, http.MethodGet, "/api/flariki/balance", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(100), body["balance"])

	resp, body = api.request(t, http.MethodGet, "/api/admin/users/"+user.ID+"/transactions?type=earned", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["transactions"], 1)

	resp, body = api.request(t, http.MethodGet, "/api/flariki/reconcile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["consistent"])
}

func TestReportValidationDetails(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleManager)
	taskID := api.publishedTask(t, token, 10)
	_, auth := api.ambassador(t, true)

	resp, body := api.request(t, http.MethodPost, "/api/reports", auth, map[string]interface{}{
		"taskId":     taskID,
		"type":       "VIDEO_LINK",
		"videoLinks": []map[string]interface{}{{"url": "not a url", "views": -5}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	var fields []string
	for _, d := range body["details"].([]interface{}) {
		fields = append(fields, d.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"videoLinks[0].url", "videoLinks[0].views"}, fields)

	resp, body = api.request(t, http.MethodPost, "/api/reports", auth, map[string]interface{}{
		"taskId": "missing", "type": "VIDEO_LINK",
		"videoLinks": []map[string]string{{"url": "https://youtube.com/watch?v=1"}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestShopPurchase(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	_, token := api.staffToken(t, models.RoleManager)
	user, auth := api.ambassador(t, true)

	stock := int64(3)
	item := &models.ShopItem{Name: "Худи", Price: 40, Stock: &stock, IsActive: true}
	require.NoError(t, api.db.CreateShopItem(ctx, item))

	resp, body := api.request(t, http.MethodPost, "/api/shop/purchase", auth, map[string]interface{}{"shopItemId": item.ID, "quantity": 2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["error"])
	assert.Equal(t, "Недостаточно флариков. Требуется: 80, доступно: 0", body["message"])

	resp, body = api.request(t, http.MethodPost, "/api/flariki/award", token, map[string]interface{}{
		"userId": user.ID, "amount": 100, "reason": "Бонус",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(100), body["newBalance"])

	resp, body = api.request(t, http.MethodPost, "/api/shop/purchase", auth, map[string]interface{}{"shopItemId": item.ID, "quantity": 11})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	resp, body = api.request(t, http.MethodPost, "/api/shop/purchase", auth, map[string]interface{}{"shopItemId": item.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(20), body["newBalance"])
	purchaseID := body["purchase"].(map[string]interface{})["id"].(string)

	resp, body = api.request(t, http.MethodPost, "/api/shop/purchase", auth, map[string]interface{}{"shopItemId": item.ID, "quantity": 2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", body["error"])

	resp, body = api.request(t, http.MethodPatch, "/api/shop/purchases/"+purchaseID+"/status", token, map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = api.request(t, http.MethodPatch, "/api/shop/purchases/"+purchaseID+"/status", token, map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "PROCESSING", body["purchase"].(map[string]interface{})["status"])

	resp, body = api.request(t, http.MethodGet, "/api/shop/purchases/my", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["purchases"], 1)

	resp, body = api.request(t, http.MethodGet, "/api/admin/audit-logs?action=SHOP_PURCHASE", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["logs"], 1)
	resp, body = api.request(t, http.MethodPost, "/api/flariki/penalty", token, map[string]interface{}{
		"userId": user.ID, "amount": 5, "reason": "Просрочка",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(15), body["newBalance"])
	assert.Equal(t, "PENALTY", body["transaction"].(map[string]interface{})["type"])
}

func TestTaskAdmin(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleAdmin)

	resp, body := api.request(t, http.MethodPost, "/api/admin/tasks", token, map[string]interface{}{
		"title": "Личное", "description": "d", "type": "PERSONAL",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = api.request(t, http.MethodPost, "/api/admin/tasks", token, map[string]interface{}{
		"title": "Общее", "description": "d", "type": "GENERAL", "rewardFlariki": 30,
		"deadline": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	taskID := body["task"].(map[string]interface{})["id"].(string)

	resp, body = api.request(t, http.MethodPatch, "/api/admin/tasks/"+taskID, token, map[string]interface{}{
		"status": "ACTIVE",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = api.request(t, http.MethodPatch, "/api/admin/tasks/"+taskID, token, map[string]interface{}{
		"rewardFlariki": nil, "deadline": nil, "title": "Общее 2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	task := body["task"].(map[string]interface{})
	assert.Nil(t, task["rewardFlariki"])
	assert.Nil(t, task["deadline"])
	assert.Equal(t, "Общее 2", task["title"])

	resp, body = api.request(t, http.MethodGet, "/api/admin/tasks?status=draft", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tasks"], 1)

	resp, _ = api.request(t, http.MethodDelete, "/api/admin/tasks/"+taskID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.request(t, http.MethodGet, "/api/admin/tasks/"+taskID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTaskRequest(t *testing.T) {
	var req updateTaskRequest
	require.NoError(t, json.Unmarshal([]byte(`{"rewardFlariki":null,"assignedUserIds":[]}`), &req))
	upd := req.toUpdate()
	assert.True(t, upd.ClearReward)
	assert.Nil(t, upd.RewardFlariki)
	assert.False(t, upd.ClearDeadline)
	assert.True(t, upd.ReplaceAssignments)
	assert.Empty(t, upd.AssignedUserIDs)

	req = updateTaskRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"rewardFlariki":25}`), &req))
	upd = req.toUpdate()
	assert.False(t, upd.ClearReward)
	require.NotNil(t, upd.RewardFlariki)
	assert.Equal(t, int64(25), *upd.RewardFlariki)
	assert.False(t, upd.ReplaceAssignments)
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadScreenshot(t *testing.T) {
	api := newTestAPI(t)
	_, auth := api.ambassador(t, true)

	upload := func(field string, content []byte) (*http.Response, map[string]interface{}) {
		buf, contentType := multipartBody(t, field, "shot.png", content)
		req, err := http.NewRequest(http.MethodPost, api.ts.URL+"/api/reports/upload-screenshot", buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		setAuth(req, auth)
		return api.do(t, req)
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	resp, body := upload("screenshot", png)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	fileURL := body["url"].(string)
	assert.True(t, strings.HasPrefix(fileURL, "/uploads/"))
	assert.True(t, strings.HasSuffix(body["filename"].(string), ".png"))

	served, err := http.Get(api.ts.URL + fileURL)
	require.NoError(t, err)
	served.Body.Close()
	assert.Equal(t, http.StatusOK, served.StatusCode)

	resp, body = upload("screenshot", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	resp, _ = upload("file", png)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = upload("screenshot", bytes.Repeat(png, (1<<20)/len(png)+1))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntegrationAPI(t *testing.T) {
	api := newTestAPI(t)

	get := func(path, key, extra string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, api.ts.URL+path, http.NoBody)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
			req.Header.Set("X-API-Extra", extra)
		}
		resp, _ := api.do(t, req)
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/integration/v1/leaderboard", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("/api/integration/v1/leaderboard", "stats-key", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/integration/v1/leaderboard", "stats-key", "stats-extra").StatusCode)
	assert.Equal(t, http.StatusForbidden, get("/api/integration/v1/reports", "stats-key", "stats-extra").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/integration/v1/reports", "all-key", "all-extra").StatusCode)

	resp := get("/api/integration/v1/leaderboard?format=xlsx", "all-key", "all-extra")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
}

func TestExports(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleManager)

	for _, path := range []string{
		"/api/admin/exports/reports.xlsx?status=approved",
		"/api/admin/exports/purchases.xlsx",
		"/api/admin/exports/leaderboard.xlsx?startDate=2026-01-01",
	} {
		req, err := http.NewRequest(http.MethodGet, api.ts.URL+path, http.NoBody)
		require.NoError(t, err)
		setAuth(req, token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"), path)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment", path)
		// xlsx это zip
		assert.True(t, bytes.HasPrefix(raw, []byte("PK")), path)
	}

	resp, body := api.request(t, http.MethodGet, "/api/statistics/leaderboard?startDate=bad", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestCatalogAndBroadcast(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleAdmin)
	user, auth := api.ambassador(t, true)

	resp, body := api.request(t, http.MethodPost, "/api/admin/tags", token, map[string]string{"name": "Москва"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	tagID := body["tag"].(map[string]interface{})["id"].(string)

	resp, body = api.request(t, http.MethodPut, "/api/admin/users/"+user.ID+"/tags", token, map[string][]string{"tagIds": {tagID}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["tags"], 1)

	resp, body = api.request(t, http.MethodPost, "/api/admin/products", token, map[string]interface{}{"name": "Крем", "isActive": false})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = api.request(t, http.MethodGet, "/api/products", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["products"])

	resp, body = api.request(t, http.MethodGet, "/api/admin/products", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["products"], 1)

	resp, body = api.request(t, http.MethodPost, "/api/admin/broadcasts", token, map[string]interface{}{
		"title": "Новости", "message": "Привет", "tagIds": []string{tagID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["broadcast"].(map[string]interface{})["recipientsCount"])

	resp, body = api.request(t, http.MethodGet, "/api/admin/users?search=anna&status=active", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["users"])
}

func TestLiveFeed(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.staffToken(t, models.RoleManager)
	wsURL := "ws" + strings.TrimPrefix(api.ts.URL, "http") + "/api/admin/events/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+url.QueryEscape(token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return api.server.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, api.bus.PublishJSON(events.EventUserModerated, events.UserEventPayload{UserID: "u-1", Status: "ACTIVE"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, events.EventUserModerated, e.Type)
	assert.JSONEq(t, `{"user_id":"u-1","status":"ACTIVE"}`, string(e.Payload))
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, func(cfg *config.Config) {
		cfg.API.RateLimit = config.APIRateLimitConfig{Requests: 2, Window: time.Minute}
	})
	_, auth := api.ambassador(t, true) // первый запрос уже потрачен

	resp, _ := api.request(t, http.MethodGet, "/api/flariki/balance", auth, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.request(t, http.MethodGet, "/api/flariki/balance", auth, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"])
}
