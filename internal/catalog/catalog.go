package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

var (
	ErrInvalidInput      = errors.New("invalid product")
	ErrSlugTaken         = errors.New("a product with this slug already exists")
	ErrImagesUnavailable = errors.New("image storage unavailable")
)

const listCacheTTL = 10 * time.Minute

// Store persists products.
type Store interface {
	Create(ctx context.Context, p models.Product) error
	Update(ctx context.Context, p models.Product) error
	Delete(ctx context.Context, id gocql.UUID) error
	Get(ctx context.Context, id gocql.UUID) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	List(ctx context.Context, category string, activeOnly bool) ([]models.Product, error)
}

// Cache holds serialized product lists.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Index is a full-text index over products.
type Index interface {
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	Search(ctx context.Context, q string, limit int) ([]string, error)
}

// Images stores uploaded product pictures.
type Images interface {
	Upload(ctx context.Context, productID, filename string, r io.Reader, size int64) (string, error)
}

type Service struct {
	store  Store
	cache  Cache
	index  Index
	images Images
	now    func() time.Time
}

// NewService wires the catalog. cache, index and images may be nil.
func NewService(store Store, cache Cache, index Index, images Images) *Service {
	return &Service{store: store, cache: cache, index: index, images: images, now: time.Now}
}

func listKey(category string) string {
	if category == "" {
		return "products:all"
	}
	return "products:" + category
}

// List returns active products, optionally filtered by category.
func (s *Service) List(ctx context.Context, category string) ([]models.Product, error) {
	category = strings.ToLower(strings.TrimSpace(category))

	if s.cache != nil {
		var cached []models.Product
		if err := s.cache.GetJSON(ctx, listKey(category), &cached); err == nil {
			return cached, nil
		}
	}

	products, err := s.store.List(ctx, category, true)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, listKey(category), products, listCacheTTL); err != nil {
			log.Printf("⚠️ Product list not cached: %v", err)
		}
	}
	return products, nil
}

// Get resolves a product by id or slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*models.Product, error) {
	if id, err := gocql.ParseUUID(idOrSlug); err == nil {
		return s.store.Get(ctx, id)
	}
	return s.store.GetBySlug(ctx, strings.ToLower(idOrSlug))
}

// Search queries the full-text index and falls back to filtering the catalog
// when the index is missing or failing.
func (s *Service) Search(ctx context.Context, q string) ([]models.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.List(ctx, "")
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, q, 20)
		if err == nil {
			return s.resolve(ctx, ids), nil
		}
		log.Printf("⚠️ Search index failed, filtering catalog instead: %v", err)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return Filter(all, q), nil
}

func (s *Service) resolve(ctx context.Context, ids []string) []models.Product {
	out := make([]models.Product, 0, len(ids))
	for _, raw := range ids {
		id, err := gocql.ParseUUID(raw)
		if err != nil {
			continue
		}
		p, err := s.store.Get(ctx, id)
		if err != nil || !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Filter keeps products whose name, category, description or features contain q,
// ignoring case.
func Filter(products []models.Product, q string) []models.Product {
	q = strings.ToLower(q)
	out := []models.Product{}
	for _, p := range products {
		haystack := strings.ToLower(strings.Join(append([]string{p.Name, p.Category, p.Description}, p.Features...), " "))
		if strings.Contains(haystack, q) {
			out = append(out, p)
		}
	}
	return out
}

type ProductInput struct {
	Name        string   `json:"name" binding:"required"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Category    string   `json:"category" binding:"required"`
	Price       float64  `json:"price" binding:"required"`
	Month       int      `json:"month"`
	ImageURLs   []string `json:"image_urls"`
	Features    []string `json:"features"`
	IsActive    *bool    `json:"is_active"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if in.Month < 1 {
		return fmt.Errorf("%w: month must be at least 1", ErrInvalidInput)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-kebab-cases a product name.
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if in.Month == 0 {
		in.Month = 1
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(in.Name)
	}
	if _, err := s.store.GetBySlug(ctx, slug); err == nil {
		return nil, ErrSlugTaken
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	p := models.Product{
		ID:          gocql.TimeUUID(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        slug,
		Description: in.Description,
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Price:       in.Price,
		Month:       in.Month,
		ImageURLs:   in.ImageURLs,
		Features:    in.Features,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.changed(ctx, p)

	log.Printf("✅ Product created: %s", p.Name)
	return &p, nil
}

// Update replaces the product's fields. A zero month keeps the current period.
func (s *Service) Update(ctx context.Context, id gocql.UUID, in ProductInput) (*models.Product, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Month == 0 {
		in.Month = p.Month
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Category = strings.ToLower(strings.TrimSpace(in.Category))
	p.Price = in.Price
	p.Month = in.Month
	p.Features = in.Features
	if in.ImageURLs != nil {
		p.ImageURLs = in.ImageURLs
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *p); err != nil {
		return nil, err
	}
	s.changed(ctx, *p)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id gocql.UUID) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteProduct(ctx, id.String()); err != nil {
			log.Printf("⚠️ Product %s not removed from index: %v", id, err)
		}
	}
	s.invalidate(ctx)
	return nil
}

// UploadImage stores a picture and appends its URL to the product.
func (s *Service) UploadImage(ctx context.Context, id gocql.UUID, filename string, r io.Reader, size int64) (*models.Product, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, ErrImagesUnavailable
	}

	url, err := s.images.Upload(ctx, id.String(), filename, r, size)
	if err != nil {
		return nil, err
	}
	p.ImageURLs = append(p.ImageURLs, url)
	p.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *p); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *Service) changed(ctx context.Context, p models.Product) {
	if s.index != nil {
		if err := s.index.IndexProduct(ctx, p); err != nil {
			log.Printf("⚠️ Product %s not indexed: %v", p.Name, err)
		}
	}
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, "products:*"); err != nil {
		log.Printf("⚠️ Product cache not invalidated: %v", err)
	}
}
