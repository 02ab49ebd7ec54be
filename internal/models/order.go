package models

import (
	"strconv"
	"time"

	"github.com/gocql/gocql"
)

const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderFailed    = "failed"
	OrderCancelled = "cancelled"
	OrderRefunded  = "refunded"

	GrantGranted = "granted"
	GrantPending = "grant_pending"
	GrantRevoked = "revoked"
)

type Order struct {
	ID         gocql.UUID  `json:"id"`
	UserID     string      `json:"user_id"`
	Email      string      `json:"email"`
	Items      []OrderItem `json:"items"`
	Subtotal   float64     `json:"subtotal"`
	Discount   float64     `json:"discount"`
	Total      float64     `json:"total"`
	CouponCode string      `json:"coupon_code,omitempty"`
	Gateway    string      `json:"gateway"`
	PaymentID  string      `json:"payment_id,omitempty"`
	TrxID      string      `json:"trx_id,omitempty"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderItem is one purchased unit of a product. A cart line with quantity 3 becomes three
// items so every unit carries its own tool grant and expiry.
type OrderItem struct {
	ProductID   string     `json:"product_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	Month       int        `json:"month"`
	ToolID      *string    `json:"tool_id,omitempty"`
	GrantStatus string     `json:"grant_status,omitempty"`
	ExpireDate  *time.Time `json:"expire_date,omitempty"`
}

// HolderKey identifies the seat an order item occupies on a tool.
func (o Order) HolderKey(index int) string {
	return o.ID.String() + ":" + strconv.Itoa(index)
}

// PendingGrants returns the indexes of items whose tool grant has not been allocated yet.
func (o Order) PendingGrants() []int {
	var idx []int
	for i, item := range o.Items {
		if item.GrantStatus == GrantPending {
			idx = append(idx, i)
		}
	}
	return idx
}

// PaymentRecord tracks a gateway payment attached to an order.
type PaymentRecord struct {
	PaymentID string     `json:"payment_id"`
	Gateway   string     `json:"gateway"`
	OrderID   gocql.UUID `json:"order_id"`
	UserID    string     `json:"user_id"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	TrxID     string     `json:"trx_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
