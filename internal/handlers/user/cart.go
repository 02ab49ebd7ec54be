package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/cart"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

// Carts is the cart service behind the cart handlers.
type Carts interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*models.Cart, error)
	Remove(ctx context.Context, userID, productID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
	Merge(ctx context.Context, userID string, guest []cart.GuestItem) (*models.Cart, error)
}

// CartEvents streams cart change notifications for a user.
type CartEvents interface {
	Subscribe(ctx context.Context, userID string) <-chan string
}

type CartHandler struct {
	carts  Carts
	events CartEvents
}

func NewCartHandler(carts Carts, events CartEvents) *CartHandler {
	return &CartHandler{carts: carts, events: events}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var in struct {
		ProductID string `json:"product_id" binding:"required"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "product_id is required")
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	cart, err := h.carts.Add(c.Request.Context(), c.GetString("user_id"), in.ProductID, in.Quantity)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// UpdateItem sets the quantity of a cart line; 0 removes it.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var in struct {
		Quantity *int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "quantity is required")
		return
	}
	cart, err := h.carts.UpdateQuantity(c.Request.Context(), c.GetString("user_id"), c.Param("productId"), *in.Quantity)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	cart, err := h.carts.Remove(c.Request.Context(), c.GetString("user_id"), c.Param("productId"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), c.GetString("user_id")); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// MergeCart folds the cart a guest built in the browser into the account cart.
func (h *CartHandler) MergeCart(c *gin.Context) {
	var in struct {
		Items []cart.GuestItem `json:"items" binding:"dive"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid cart items")
		return
	}
	merged, err := h.carts.Merge(c.Request.Context(), c.GetString("user_id"), in.Items)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}
