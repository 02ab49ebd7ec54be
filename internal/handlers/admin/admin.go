// Package admin holds the back-office handlers. Every route is mounted behind
// AuthRequired, RequireAdmin and an audit action.
package admin

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/audit"
	"subscription_live/internal/coupon"
	"subscription_live/internal/models"
	"subscription_live/internal/subscription"
	"subscription_live/internal/toolgrant"
)

type Coupons interface {
	Create(ctx context.Context, in coupon.CreateInput, createdBy string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Update(ctx context.Context, id gocql.UUID, in coupon.UpdateInput) (*models.Coupon, error)
	Delete(ctx context.Context, id gocql.UUID) error
}

type Tools interface {
	Create(ctx context.Context, in toolgrant.ToolInput) (*models.Tool, error)
	List(ctx context.Context, category string) ([]models.Tool, error)
	Update(ctx context.Context, id gocql.UUID, in toolgrant.ToolUpdate) (*models.Tool, error)
	Delete(ctx context.Context, id gocql.UUID) error
}

type Orders interface {
	List(ctx context.Context, status string, limit int) ([]models.Order, error)
	Get(ctx context.Context, id gocql.UUID) (*models.Order, error)
	Refund(ctx context.Context, id gocql.UUID, reason string) (*models.Order, error)
}

// Grants re-runs seat allocation for items that could not be granted at payment time.
type Grants interface {
	RetryGrants(ctx context.Context, orderID gocql.UUID) (*models.Order, error)
}

type Subscriptions interface {
	List(ctx context.Context, status string) ([]models.Subscription, error)
	Sweep(ctx context.Context, now time.Time) (subscription.SweepResult, error)
}

type Users interface {
	ListUsers(ctx context.Context, limit int) ([]models.User, error)
	SetRole(ctx context.Context, userID, role string) (*models.User, error)
}

type AuditLogs interface {
	List(ctx context.Context, f audit.Filter) ([]models.AuditLog, error)
}

type Deps struct {
	Coupons       Coupons
	Tools         Tools
	Orders        Orders
	Grants        Grants
	Subscriptions Subscriptions
	Users         Users
	Audit         AuditLogs
}

type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, now: time.Now}
}

// queryLimit reads ?limit=, falling back to def and capping at max.
func queryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
