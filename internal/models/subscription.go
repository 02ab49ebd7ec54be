package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID          gocql.UUID `json:"id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	OrderID     gocql.UUID `json:"order_id"`
	ItemIndex   int        `json:"item_index"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	Category    string     `json:"category"`
	ToolID      *string    `json:"tool_id,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	ExpireDate  time.Time  `json:"expire_date"`
	Status      string     `json:"status"`
	Reminded    bool       `json:"reminded"`
}

// ExpireAfter returns start shifted by the given number of calendar months.
func ExpireAfter(start time.Time, months int) time.Time {
	if months < 1 {
		months = 1
	}
	return start.AddDate(0, months, 0)
}

// Holder is the seat key the subscription occupies on its tool.
func (s Subscription) Holder() string {
	return Order{ID: s.OrderID}.HolderKey(s.ItemIndex)
}
