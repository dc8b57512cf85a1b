package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flariki/internal/models"
)

func TestUpsertTelegramUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user, created, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 42, Username: "anna", FirstName: "Anna"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.UserPending, user.Status)
	assert.Equal(t, models.RoleAmbassador, user.Role)
	assert.Zero(t, user.FlarikiBalance)

	// Пустые значения не затирают сохраненные
	again, created, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 42, Username: "", FirstName: "Анна"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "anna", models.Deref(again.Username))
	assert.Equal(t, "Анна", models.Deref(again.FirstName))

	stored, err := db.GetUserByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Анна", models.Deref(stored.FirstName))
}

func TestStaffUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	admin, err := db.CreateStaffUser(ctx, "Admin@Example.com", "hash", models.RoleAdmin, 0)
	require.NoError(t, err)
	assert.Equal(t, models.UserActive, admin.Status)

	found, err := db.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, found.ID)
	assert.Zero(t, found.TelegramID)

	_, err = db.CreateStaffUser(ctx, "Admin@Example.com", "hash", models.RoleManager, 0)
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, db.SetPasswordHash(ctx, admin.ID, "new-hash"))
	found, err = db.GetUserByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", models.Deref(found.PasswordHash))

	assert.ErrorIs(t, db.SetPasswordHash(ctx, "missing", "x"), ErrNotFound)
}

func TestUpdateUserProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createActiveUser(t, db)

	addr, empty := "Москва, ул. Ленина 1", ""
	updated, err := db.UpdateUserProfile(ctx, user.ID, models.ProfileUpdate{Address: &addr, CdekPvz: &empty})
	require.NoError(t, err)
	assert.Equal(t, addr, models.Deref(updated.Address))
	assert.Nil(t, updated.CdekPvz)
	assert.Equal(t, "+79990000000", models.Deref(updated.Phone))
	assert.True(t, updated.HasAddress())

	require.NoError(t, db.UpdateUserPhone(ctx, user.TelegramID, "+70000000000"))
	updated, err = db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "+70000000000", models.Deref(updated.Phone))
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	active := createActiveUser(t, db)
	_, _, err := db.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 7, Username: "pending_one"})
	require.NoError(t, err)
	staff := createStaff(t, db)

	pending := models.UserPending
	users, total, err := db.ListUsers(ctx, models.UserFilter{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "pending_one", models.Deref(users[0].Username))

	_, total, err = db.ListUsers(ctx, models.UserFilter{Search: "PENDING"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	ambassador := models.RoleAmbassador
	ambassadors, err := db.ListActiveUsers(ctx, &ambassador)
	require.NoError(t, err)
	require.Len(t, ambassadors, 1)
	assert.Equal(t, active.ID, ambassadors[0].ID)

	byIDs, err := db.GetUsersByIDs(ctx, []string{active.ID, staff.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)
}

func TestTags(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tagged := createActiveUser(t, db)
	untagged := createActiveUser(t, db)

	vip := &models.Tag{Name: "VIP"}
	require.NoError(t, db.CreateTag(ctx, vip))
	assert.ErrorIs(t, db.CreateTag(ctx, &models.Tag{Name: "VIP"}), ErrDuplicate)

	require.NoError(t, db.SetUserTags(ctx, tagged.ID, []string{vip.ID}))
	assert.ErrorIs(t, db.SetUserTags(ctx, tagged.ID, []string{"missing"}), ErrNotFound)

	tags, err := db.GetUserTags(ctx, tagged.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "VIP", tags[0].Name)

	all, err := db.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].UsersCount)

	recipients, err := db.ListActiveUsersByTags(ctx, []string{vip.ID})
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, tagged.ID, recipients[0].ID)

	everyone, err := db.ListActiveUsersByTags(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, everyone, 2)
	_ = untagged

	require.NoError(t, db.DeleteTag(ctx, vip.ID))
	tags, err = db.GetUserTags(ctx, tagged.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestProducts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	staff := createStaff(t, db)
	user := createActiveUser(t, db)

	product := &models.Product{Name: "Сыворотка", IsActive: true}
	require.NoError(t, db.CreateProduct(ctx, product))
	unused := &models.Product{Name: "Маска", IsActive: true}
	require.NoError(t, db.CreateProduct(ctx, unused))

	task := createActiveTask(t, db, staff, models.TaskGeneral, 0)
	in := videoReport(user.ID, task.ID, "https://youtu.be/p")
	in.ProductIDs = []string{product.ID}
	_, err := db.CreateReport(ctx, in)
	require.NoError(t, err)

	assert.ErrorIs(t, db.DeleteProduct(ctx, product.ID), ErrInUse)
	require.NoError(t, db.DeleteProduct(ctx, unused.ID))

	product.IsActive = false
	require.NoError(t, db.UpdateProduct(ctx, product))
	active, err := db.ListProducts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAuditLog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	staff := createStaff(t, db)

	details, err := json.Marshal(map[string]interface{}{"amount": 50})
	require.NoError(t, err)
	entry := &models.AuditLog{Action: "AWARD_FLARIKI", EntityType: "user", EntityID: &staff.ID, UserID: &staff.ID, Details: details}
	require.NoError(t, db.CreateAuditLog(ctx, entry))
	require.NoError(t, db.CreateAuditLog(ctx, &models.AuditLog{Action: "DELETE_TASK", EntityType: "task"}))

	action := "AWARD_FLARIKI"
	logs, total, err := db.ListAuditLogs(ctx, models.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"amount":50}`, string(logs[0].Details))

	_, err = db.ExecContext(ctx, `UPDATE audit_logs SET action = 'X' WHERE id = ?`, entry.ID)
	assert.Error(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM audit_logs WHERE id = ?`, entry.ID)
	assert.Error(t, err)

	_, total, err = db.ListAuditLogs(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestBroadcasts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	staff := createStaff(t, db)
	task := createActiveTask(t, db, staff, models.TaskGeneral, 0)

	b := &models.Broadcast{
		Title:           "Новости",
		Message:         "Привет",
		TagIDs:          []string{"t1"},
		TaskIDs:         []string{task.ID},
		RecipientsCount: 3,
		CreatedByID:     staff.ID,
	}
	require.NoError(t, db.CreateBroadcast(ctx, b))
	assert.NotEmpty(t, b.ID)

	list, total, err := db.ListBroadcasts(ctx, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"t1"}, list[0].TagIDs)
	assert.Equal(t, []string{task.ID}, list[0].TaskIDs)
	assert.Equal(t, 3, list[0].RecipientsCount)
}
