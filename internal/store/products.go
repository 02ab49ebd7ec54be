package store

import (
	"context"
	"sort"
	"strings"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const productColumns = `product_id, name, slug, description, category, price, month, image_urls, features, is_active, created_at, updated_at`

type Products struct {
	session *gocql.Session
}

func NewProducts(session *gocql.Session) *Products {
	return &Products{session: session}
}

func (s *Products) Create(ctx context.Context, p models.Product) error {
	return s.session.Query(`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Slug, p.Description, p.Category, p.Price, p.Month,
		p.ImageURLs, p.Features, p.IsActive, p.CreatedAt, p.UpdatedAt,
	).WithContext(ctx).Exec()
}

func (s *Products) Update(ctx context.Context, p models.Product) error {
	return s.session.Query(`UPDATE products SET name = ?, slug = ?, description = ?, category = ?, price = ?, month = ?,
		image_urls = ?, features = ?, is_active = ?, updated_at = ? WHERE product_id = ?`,
		p.Name, p.Slug, p.Description, p.Category, p.Price, p.Month,
		p.ImageURLs, p.Features, p.IsActive, p.UpdatedAt, p.ID,
	).WithContext(ctx).Exec()
}

func (s *Products) Delete(ctx context.Context, id gocql.UUID) error {
	return s.session.Query(`DELETE FROM products WHERE product_id = ?`, id).WithContext(ctx).Exec()
}

func (s *Products) Get(ctx context.Context, id gocql.UUID) (*models.Product, error) {
	var p models.Product
	err := s.session.Query(`SELECT `+productColumns+` FROM products WHERE product_id = ?`, id).
		WithContext(ctx).Scan(productFields(&p)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Products) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	err := s.session.Query(`SELECT `+productColumns+` FROM products WHERE slug = ? ALLOW FILTERING`, slug).
		WithContext(ctx).Scan(productFields(&p)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// List returns products ordered by category then name.
func (s *Products) List(ctx context.Context, category string, activeOnly bool) ([]models.Product, error) {
	iter := s.session.Query(`SELECT ` + productColumns + ` FROM products`).WithContext(ctx).Iter()

	var products []models.Product
	var p models.Product
	for iter.Scan(productFields(&p)...) {
		if activeOnly && !p.IsActive {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		products = append(products, p)
		p = models.Product{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func productFields(p *models.Product) []interface{} {
	return []interface{}{
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Category, &p.Price, &p.Month,
		&p.ImageURLs, &p.Features, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	}
}
