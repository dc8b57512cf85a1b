package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"flariki/internal/database"
	"flariki/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "manage.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exec(t *testing.T, db *database.DB, args ...string) (string, error) {
	t.Helper()
	logger := zerolog.Nop()
	var out bytes.Buffer
	err := execute(context.Background(), db, args, &out, &logger)
	return out.String(), err
}

func TestCreateAdminAndSetPassword(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	out, err := exec(t, db, "create-admin", "-email", "boss@example.com", "-password", "secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "created ADMIN boss@example.com")

	user, err := db.GetUserByEmail(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, models.UserActive, user.Status)
	require.NotNil(t, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("secret123")))

	_, err = exec(t, db, "create-admin", "-email", "boss@example.com", "-password", "secret123")
	assert.ErrorContains(t, err, "already exists")

	_, err = exec(t, db, "set-password", "-email", "boss@example.com", "-password", "another-secret")
	require.NoError(t, err)
	user, err = db.GetUserByEmail(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("another-secret")))
}

func TestCreateAdminValidation(t *testing.T) {
	db := setupDB(t)

	_, err := exec(t, db, "create-admin", "-email", "m@example.com", "-password", "secret123", "-role", "AMBASSADOR")
	assert.ErrorIs(t, err, errUsage)

	_, err = exec(t, db, "create-admin", "-password", "secret123")
	assert.ErrorIs(t, err, errUsage)

	_, err = exec(t, db, "create-admin", "-email", "m@example.com", "-password", "123")
	assert.Error(t, err)

	out, err := exec(t, db, "create-admin", "-email", "m@example.com", "-password", "secret123", "-role", "manager")
	require.NoError(t, err)
	assert.Contains(t, out, "created MANAGER")
}

func TestActivate(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	user, _, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 555, FirstName: "Ira"})
	require.NoError(t, err)
	require.Equal(t, models.UserPending, user.Status)

	_, err = exec(t, db, "activate")
	assert.ErrorIs(t, err, errUsage)

	_, err = exec(t, db, "activate", "-telegram-id", "999")
	assert.ErrorContains(t, err, "not found")

	out, err := exec(t, db, "activate", "-telegram-id", "555")
	require.NoError(t, err)
	assert.Contains(t, out, user.ID)

	user, err = db.GetUserByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, models.UserActive, user.Status)
}

func TestReconcile(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	user, _, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 777})
	require.NoError(t, err)

	out, err := exec(t, db, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "consistent")

	_, err = db.ExecContext(ctx, `UPDATE users SET flariki_balance = 42 WHERE id = ?`, user.ID)
	require.NoError(t, err)

	out, err = exec(t, db, "reconcile")
	assert.Error(t, err)
	assert.Contains(t, out, user.ID+" balance=42 ledger=0")
}

func TestUnknownCommand(t *testing.T) {
	db := setupDB(t)
	_, err := exec(t, db, "drop-everything")
	assert.ErrorIs(t, err, errUsage)
}

func TestSeedProducts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
products:
  - name: Крем
    description: 50 мл
  - name: Тоник
    is_active: false
  - name: ""
`), 0o600))

	out, err := exec(t, db, "seed-products", "-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created=2 updated=0")

	out, err = exec(t, db, "seed-products", "-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created=0 updated=2")

	all, err := db.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := db.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Крем", active[0].Name)
}
