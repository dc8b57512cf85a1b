package service

import (
	"context"
	"testing"

	"flariki/internal/domain"
	"flariki/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_Products(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewCatalogService(env.db, env.audit)
	admin := env.staff(t, models.RoleAdmin, "secret1")

	cream, err := svc.CreateProduct(ctx, admin.ID, ProductInput{Name: "Крем"})
	require.NoError(t, err)
	assert.True(t, cream.IsActive)

	_, err = svc.CreateProduct(ctx, admin.ID, ProductInput{Name: "Маска", IsActive: boolPtr(false)})
	require.NoError(t, err)

	active, err := svc.Products(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.Products(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated, err := svc.UpdateProduct(ctx, admin.ID, cream.ID, ProductInput{IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Крем", updated.Name)
	assert.False(t, updated.IsActive)

	_, err = svc.CreateProduct(ctx, admin.ID, ProductInput{Name: " "})
	assertKind(t, err, domain.KindValidation)

	require.NoError(t, svc.DeleteProduct(ctx, admin.ID, cream.ID))
	assertKind(t, svc.DeleteProduct(ctx, admin.ID, cream.ID), domain.KindNotFound)

	actions := env.auditActions(t)
	assert.Contains(t, actions, AuditProductCreated)
	assert.Contains(t, actions, AuditProductUpdated)
	assert.Contains(t, actions, AuditProductDeleted)
}

func TestCatalogService_Tags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewCatalogService(env.db, env.audit)
	admin := env.staff(t, models.RoleAdmin, "secret1")

	tag, err := svc.CreateTag(ctx, admin.ID, TagInput{Name: "Блогеры", Color: strPtr("#ff0000")})
	require.NoError(t, err)

	_, err = svc.CreateTag(ctx, admin.ID, TagInput{Name: "Блогеры"})
	de := assertKind(t, err, domain.KindConflict)
	assert.Equal(t, domain.CodeDuplicate, de.Code)

	_, err = svc.CreateTag(ctx, admin.ID, TagInput{})
	assertKind(t, err, domain.KindValidation)

	tags, err := svc.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "#ff0000", models.Deref(tags[0].Color))

	require.NoError(t, svc.DeleteTag(ctx, admin.ID, tag.ID))
	assertKind(t, svc.DeleteTag(ctx, admin.ID, tag.ID), domain.KindNotFound)
}
