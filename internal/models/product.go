package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Product is a subscription plan sold in the storefront, e.g. "ChatGPT Plus, 1 month".
type Product struct {
	ID          gocql.UUID `json:"id" db:"product_id"`
	Name        string     `json:"name" db:"name"`
	Slug        string     `json:"slug" db:"slug"`
	Description string     `json:"description" db:"description"`
	Category    string     `json:"category" db:"category"`
	Price       float64    `json:"price" db:"price"`
	Month       int        `json:"month" db:"month"`
	ImageURLs   []string   `json:"image_urls" db:"image_urls"`
	Features    []string   `json:"features" db:"features"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Thumbnail returns the first image, or "" when the product has none.
func (p Product) Thumbnail() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}
