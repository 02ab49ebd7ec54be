package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Tool is a shared premium account whose seats are granted to paid orders.
type Tool struct {
	ID         gocql.UUID `json:"id"`
	Category   string     `json:"category"`
	Name       string     `json:"name"`
	LoginEmail string     `json:"login_email"`
	Secret     string     `json:"-"`
	MaxUsers   int        `json:"max_users"`
	Users      []string   `json:"users"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Capacity is MaxUsers when set on the tool, else the category default.
func (t Tool) Capacity(categoryLimit int) int {
	if t.MaxUsers > 0 {
		return t.MaxUsers
	}
	return categoryLimit
}

func (t Tool) HasUser(holder string) bool {
	for _, u := range t.Users {
		if u == holder {
			return true
		}
	}
	return false
}

// ToolCredentials is what a subscriber sees for an active seat.
type ToolCredentials struct {
	ToolID     gocql.UUID `json:"tool_id"`
	Name       string     `json:"name"`
	LoginEmail string     `json:"login_email"`
	Password   string     `json:"password"`
	ExpireDate time.Time  `json:"expire_date"`
}
