package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"flariki/internal/database"
	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:test-bot-token"

var telegramSeq int64 = 5000

// recordingDispatcher keeps batches instead of sending them.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches []domain.Batch
}

func (d *recordingDispatcher) Dispatch(b domain.Batch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, b)
}

func (d *recordingDispatcher) notifications(name string) []domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Notification
	for _, b := range d.batches {
		if b.Name == name {
			out = append(out, b.Notifications...)
		}
	}
	return out
}

type recordingSync struct {
	mu        sync.Mutex
	reports   []string
	purchases []string
}

func (s *recordingSync) EnqueueReport(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r.ID)
	return nil
}

func (s *recordingSync) EnqueuePurchase(_ context.Context, p *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, p.ID)
	return nil
}

type testEnv struct {
	db         *database.DB
	dispatcher *recordingDispatcher
	sync       *recordingSync
	bus        *events.EventBus
	events     []string
	eventsMu   sync.Mutex
	logger     *zerolog.Logger
	audit      *Auditor
	gates      *GateService
	links      Links
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:         db,
		dispatcher: &recordingDispatcher{},
		sync:       &recordingSync{},
		bus:        events.NewEventBus(),
		logger:     &logger,
		audit:      NewAuditor(db, &logger),
		gates:      NewGateService(db),
		links:      Links{FrontendURL: "https://app.example"},
	}
	env.bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		env.eventsMu.Lock()
		defer env.eventsMu.Unlock()
		env.events = append(env.events, e.Type)
		return nil
	})
	return env
}

func (e *testEnv) published() []string {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	logs, _, err := e.db.ListAuditLogs(context.Background(), models.AuditFilter{Page: models.Page{Limit: 100}})
	require.NoError(t, err)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func (e *testEnv) newUser(t *testing.T, status models.UserStatus, complete bool) *models.User {
	t.Helper()
	ctx := context.Background()
	user, _, err := e.db.UpsertTelegramUser(ctx, models.TelegramProfile{
		TelegramID: atomic.AddInt64(&telegramSeq, 1),
		FirstName:  "Ivan",
		LastName:   "Petrov",
	})
	require.NoError(t, err)

	if complete {
		phone, cdek := "+79991112233", "SPB-7"
		_, err = e.db.UpdateUserProfile(ctx, user.ID, models.ProfileUpdate{Phone: &phone, CdekPvz: &cdek})
		require.NoError(t, err)
	}
	user, err = e.db.SetUserStatus(ctx, user.ID, status, nil)
	require.NoError(t, err)
	return user
}

func (e *testEnv) ambassador(t *testing.T) *models.User {
	return e.newUser(t, models.UserActive, true)
}

func (e *testEnv) staff(t *testing.T, role models.Role, password string) *models.User {
	t.Helper()
	hash := ""
	if password != "" {
		var err error
		hash, err = HashPassword(password)
		require.NoError(t, err)
	}
	email := fmt.Sprintf("staff%d@example.com", atomic.AddInt64(&telegramSeq, 1))
	user, err := e.db.CreateStaffUser(context.Background(), email, hash, role, 0)
	require.NoError(t, err)
	return user
}

func (e *testEnv) activeTask(t *testing.T, creator *models.User, taskType models.TaskType, reward int64, assignees ...string) *models.Task {
	t.Helper()
	ctx := context.Background()
	task := &models.Task{
		Title:       "Сторис с продуктом",
		Description: "Опубликуйте сторис",
		Type:        taskType,
		CreatedByID: creator.ID,
	}
	if reward > 0 {
		task.RewardFlariki = &reward
	}
	require.NoError(t, e.db.CreateTask(ctx, task, assignees))
	published, err := e.db.PublishTask(ctx, task.ID, creator.ID)
	require.NoError(t, err)
	return published
}

func (e *testEnv) requireLedgerInvariant(t *testing.T) {
	t.Helper()
	mismatches, err := e.db.FindBalanceMismatches(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

// buildInitData signs fields the way Telegram does, independently of ValidateInitData.
func buildInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()
	parts := make([]string, 0, len(fields))
	vals := url.Values{}
	for k, v := range fields {
		parts = append(parts, k+"="+v)
		vals.Set(k, v)
	}
	sort.Strings(parts)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(parts, "\n")))

	vals.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return vals.Encode()
}

func assertKind(t *testing.T, err error, kind domain.Kind) *domain.Error {
	t.Helper()
	require.Error(t, err)
	de, ok := domain.As(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, kind, de.Kind, de.Error())
	return de
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(b bool) *bool { return &b }
