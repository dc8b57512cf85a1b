package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flariki/internal/models"
)

func TestSyncQueue_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType: models.SyncUpsertReport,
		EntityID: "report-1",
		Payload:  `{"id":"report-1"}`,
	}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.SyncStatusPending, task.Status)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "report-1", pending[0].EntityID)
	assert.Nil(t, pending[0].ProcessedAt)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, "sheets unavailable"))

	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "sheets unavailable", *failed[0].LastError)
	assert.NotNil(t, failed[0].ProcessedAt)

	second := &models.SyncTask{TaskType: models.SyncUpsertPurchase, EntityID: "purchase-1", Payload: "{}"}
	require.NoError(t, db.CreateSyncTask(ctx, second))
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, second.ID, models.SyncStatusCompleted, ""))

	failed, err = db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
