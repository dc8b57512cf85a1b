package service

import (
	"context"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/models"
)

// ProductInput is the admin body for products.
type ProductInput struct {
	Name        string
	Description *string
	ImageURL    *string
	IsActive    *bool
}

// TagInput is the admin body for tags.
type TagInput struct {
	Name        string
	Color       *string
	Description *string
}

// CatalogService manages products featured in reports and segmentation tags.
type CatalogService struct {
	catalog domain.CatalogStore
	audit   *Auditor
}

func NewCatalogService(catalog domain.CatalogStore, audit *Auditor) *CatalogService {
	return &CatalogService{catalog: catalog, audit: audit}
}

func (s *CatalogService) Products(ctx context.Context, activeOnly bool) ([]*models.Product, error) {
	products, err := s.catalog.ListProducts(ctx, activeOnly)
	return products, translate(err, "product")
}

func (s *CatalogService) CreateProduct(ctx context.Context, actorID string, in ProductInput) (*models.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.Validation("invalid product", domain.FieldError{Field: "name", Message: "required"})
	}
	p := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ImageURL:    in.ImageURL,
		IsActive:    true,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return nil, translate(err, "product")
	}
	s.audit.Record(ctx, actorID, AuditProductCreated, "product", p.ID, map[string]interface{}{"name": p.Name})
	return p, nil
}

// UpdateProduct changes only the provided fields.
func (s *CatalogService) UpdateProduct(ctx context.Context, actorID, productID string, in ProductInput) (*models.Product, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, translate(err, "product")
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		p.Name = name
	}
	if in.Description != nil {
		p.Description = models.StringPtr(*in.Description)
	}
	if in.ImageURL != nil {
		p.ImageURL = models.StringPtr(*in.ImageURL)
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		return nil, translate(err, "product")
	}
	s.audit.Record(ctx, actorID, AuditProductUpdated, "product", p.ID, map[string]interface{}{"name": p.Name, "isActive": p.IsActive})
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, actorID, productID string) error {
	if err := s.catalog.DeleteProduct(ctx, productID); err != nil {
		return translate(err, "product")
	}
	s.audit.Record(ctx, actorID, AuditProductDeleted, "product", productID, nil)
	return nil
}

func (s *CatalogService) Tags(ctx context.Context) ([]*models.Tag, error) {
	tags, err := s.catalog.ListTags(ctx)
	return tags, translate(err, "tag")
}

func (s *CatalogService) CreateTag(ctx context.Context, actorID string, in TagInput) (*models.Tag, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.Validation("invalid tag", domain.FieldError{Field: "name", Message: "required"})
	}
	t := &models.Tag{
		Name:        strings.TrimSpace(in.Name),
		Color:       in.Color,
		Description: in.Description,
	}
	if err := s.catalog.CreateTag(ctx, t); err != nil {
		return nil, translate(err, "tag")
	}
	s.audit.Record(ctx, actorID, AuditTagCreated, "tag", t.ID, map[string]interface{}{"name": t.Name})
	return t, nil
}

func (s *CatalogService) DeleteTag(ctx context.Context, actorID, tagID string) error {
	if err := s.catalog.DeleteTag(ctx, tagID); err != nil {
		return translate(err, "tag")
	}
	s.audit.Record(ctx, actorID, AuditTagDeleted, "tag", tagID, nil)
	return nil
}
