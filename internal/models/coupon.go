package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	CouponPercentage = "percentage"
	CouponFixed      = "fixed"
)

type Coupon struct {
	ID             gocql.UUID `json:"id"`
	Code           string     `json:"code"`
	Type           string     `json:"type"` // "percentage", "fixed"
	Value          float64    `json:"value"`
	MinAmount      float64    `json:"min_amount"`
	MaxDiscount    *float64   `json:"max_discount,omitempty"`
	MaxUses        int        `json:"max_uses"`
	UsedCount      int        `json:"used_count"`
	MaxUsesPerUser int        `json:"max_uses_per_user"`
	Categories     []string   `json:"categories,omitempty"`
	ProductIDs     []string   `json:"product_ids,omitempty"`
	StartsAt       time.Time  `json:"starts_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsActive       bool       `json:"is_active"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Restricted reports whether the coupon only applies to some categories or products.
func (c Coupon) Restricted() bool {
	return len(c.Categories) > 0 || len(c.ProductIDs) > 0
}

type CouponUsage struct {
	ID       gocql.UUID `json:"id"`
	CouponID gocql.UUID `json:"coupon_id"`
	UserID   string     `json:"user_id"`
	OrderID  gocql.UUID `json:"order_id"`
	UsedAt   time.Time  `json:"used_at"`
}

type CouponValidation struct {
	IsValid      bool    `json:"is_valid"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Discount     float64 `json:"discount"`
	Type         string  `json:"type,omitempty"`
	Code         string  `json:"code,omitempty"`
}
