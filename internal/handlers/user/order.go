package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

type Orders interface {
	ListMine(ctx context.Context, userID string) ([]models.Order, error)
	GetMine(ctx context.Context, userID string, id gocql.UUID) (*models.Order, error)
}

type Subscriptions interface {
	ListMine(ctx context.Context, userID string) ([]models.Subscription, error)
}

// Credentials reveals the login of the tool behind a subscription.
type Credentials interface {
	Credentials(ctx context.Context, userID string, subscriptionID gocql.UUID) (*models.ToolCredentials, error)
}

type OrderHandler struct {
	orders Orders
	subs   Subscriptions
	creds  Credentials
}

func NewOrderHandler(orders Orders, subs Subscriptions, creds Credentials) *OrderHandler {
	return &OrderHandler{orders: orders, subs: subs, creds: creds}
}

func (h *OrderHandler) GetOrders(c *gin.Context) {
	orders, err := h.orders.ListMine(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.GetMine(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) GetSubscriptions(c *gin.Context) {
	subs, err := h.subs.ListMine(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

func (h *OrderHandler) GetCredentials(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	creds, err := h.creds.Credentials(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, creds)
}
