package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"flariki/internal/database"
	"flariki/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type productsFile struct {
	Products []struct {
		Name        string  `yaml:"name"`
		Description *string `yaml:"description"`
		ImageURL    *string `yaml:"image_url"`
		IsActive    *bool   `yaml:"is_active"`
	} `yaml:"products"`
}

// seedProducts синхронизирует справочник продуктов с YAML: новые создаются, существующие (по имени) обновляются.
func seedProducts(ctx context.Context, db *database.DB, args []string, out io.Writer, logger *zerolog.Logger) error {
	fs := newFlagSet("seed-products", out)
	path := fs.String("file", "configs/products.yaml", "path to products.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read products: %w", err)
	}
	var file productsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse products: %w", err)
	}
	if len(file.Products) == 0 {
		return fmt.Errorf("no products in %s", *path)
	}

	catalog := service.NewCatalogService(db, service.NewAuditor(db, logger))
	existing, err := catalog.Products(ctx, false)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(existing))
	for _, p := range existing {
		byName[strings.ToLower(p.Name)] = p.ID
	}

	created, updated := 0, 0
	for _, p := range file.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		in := service.ProductInput{Name: name, Description: p.Description, ImageURL: p.ImageURL, IsActive: p.IsActive}
		if id, ok := byName[strings.ToLower(name)]; ok {
			if _, err := catalog.UpdateProduct(ctx, "", id, in); err != nil {
				return fmt.Errorf("update %s: %w", name, err)
			}
			updated++
			continue
		}
		np, err := catalog.CreateProduct(ctx, "", in)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		byName[strings.ToLower(name)] = np.ID
		created++
	}

	logger.Info().Int("created", created).Int("updated", updated).Msg("products seeded")
	fmt.Fprintf(out, "done: created=%d updated=%d\n", created, updated)
	return nil
}
