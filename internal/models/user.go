package models

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	ProviderLocal = "local"
)

type User struct {
	ID         string    `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Image      string    `json:"image,omitempty"`
	Password   string    `json:"-"`
	Role       string    `json:"role,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	ProviderID string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
