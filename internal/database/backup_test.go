package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flariki/internal/config"
)

func TestBackupService(t *testing.T) {
	logger := zerolog.Nop()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "source.db")
	backupDir := filepath.Join(dir, "backups")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	user := createActiveUser(t, db)

	cfg := config.BackupConfig{Enabled: true, RetentionDays: 7, StoragePath: backupDir}
	svc := NewBackupService(db, dbPath, cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := svc.PerformBackup(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)

		restored, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer restored.Close()

		got, err := restored.GetUserByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.TelegramID, got.TelegramID)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldBackup := filepath.Join(backupDir, "backup_20000101_000000.db")
		unrelated := filepath.Join(backupDir, "notes.txt")
		require.NoError(t, os.WriteFile(oldBackup, []byte("old"), 0o644))
		require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -30)
		require.NoError(t, os.Chtimes(oldBackup, oldTime, oldTime))
		require.NoError(t, os.Chtimes(unrelated, oldTime, oldTime))

		svc.CleanupOldBackups()

		assert.NoFileExists(t, oldBackup)
		assert.FileExists(t, unrelated)
	})

	t.Run("DisabledRunIsNoop", func(t *testing.T) {
		emptyDir := filepath.Join(dir, "disabled")
		disabled := NewBackupService(db, dbPath, config.BackupConfig{StoragePath: emptyDir}, &logger)
		require.NoError(t, disabled.Run(context.Background()))
		assert.NoDirExists(t, emptyDir)
	})
}
