package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"flariki/internal/models"
)

var telegramSeq int64 = 1000

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// createActiveUser registers an ACTIVE ambassador with a complete profile.
func createActiveUser(t *testing.T, db *DB) *models.User {
	t.Helper()
	ctx := context.Background()
	user, created, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{
		TelegramID: atomic.AddInt64(&telegramSeq, 1),
		FirstName:  "Anna",
	})
	require.NoError(t, err)
	require.True(t, created)

	phone, cdek := "+79990000000", "MSK-1"
	_, err = db.UpdateUserProfile(ctx, user.ID, models.ProfileUpdate{Phone: &phone, CdekPvz: &cdek})
	require.NoError(t, err)

	user, err = db.SetUserStatus(ctx, user.ID, models.UserActive, nil)
	require.NoError(t, err)
	return user
}

func createStaff(t *testing.T, db *DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("manager%d@example.com", atomic.AddInt64(&telegramSeq, 1))
	staff, err := db.CreateStaffUser(context.Background(), email, "hash", models.RoleManager, 0)
	require.NoError(t, err)
	return staff
}

func createActiveTask(t *testing.T, db *DB, creator *models.User, taskType models.TaskType, reward int64, assignees ...string) *models.Task {
	t.Helper()
	ctx := context.Background()
	task := &models.Task{
		Title:       "Снять обзор",
		Description: "Обзор продукта",
		Type:        taskType,
		CreatedByID: creator.ID,
	}
	if reward > 0 {
		task.RewardFlariki = &reward
	}
	require.NoError(t, db.CreateTask(ctx, task, assignees))
	published, err := db.PublishTask(ctx, task.ID, creator.ID)
	require.NoError(t, err)
	return published
}

func videoReport(userID, taskID string, urls ...string) models.NewReport {
	links := make([]models.VideoLink, len(urls))
	for i, u := range urls {
		links[i] = models.VideoLink{URL: u}
	}
	return models.NewReport{UserID: userID, TaskID: taskID, Type: models.ReportVideoLink, VideoLinks: links}
}

// requireLedgerInvariant asserts balance == sum(ledger) for every user.
func requireLedgerInvariant(t *testing.T, db *DB) {
	t.Helper()
	mismatches, err := db.FindBalanceMismatches(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func int64Ptr(v int64) *int64 { return &v }
