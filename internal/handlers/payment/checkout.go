package payment

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/checkout"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
	"subscription_live/internal/payment/stripepay"
)

// Checkout is the order pipeline behind the payment handlers.
type Checkout interface {
	Start(ctx context.Context, customer checkout.Customer, req checkout.StartRequest) (*checkout.StartResult, error)
	Payment(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	Complete(ctx context.Context, paymentID, callbackStatus string) (*models.Order, error)
}

type Carts interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
}

type Coupons interface {
	Validate(ctx context.Context, code, userID string, items []models.CartItem) (*models.Coupon, models.CouponValidation, error)
}

// WebhookParser verifies and decodes Stripe webhook deliveries.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*stripepay.WebhookEvent, error)
}

type Handler struct {
	checkout    Checkout
	carts       Carts
	coupons     Coupons
	stripe      WebhookParser
	frontendURL string
}

// NewHandler builds the payment handlers. stripe may be nil when Stripe is not configured.
func NewHandler(co Checkout, carts Carts, coupons Coupons, stripe WebhookParser, frontendURL string) *Handler {
	return &Handler{
		checkout:    co,
		carts:       carts,
		coupons:     coupons,
		stripe:      stripe,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// ValidateCoupon previews the discount a code gives on the current cart.
func (h *Handler) ValidateCoupon(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		handlers.BadRequest(c, "code is required")
		return
	}
	userID := c.GetString("user_id")
	cart, err := h.carts.Get(c.Request.Context(), userID)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	_, validation, err := h.coupons.Validate(c.Request.Context(), code, userID, cart.Items)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, validation)
}

func (h *Handler) Checkout(c *gin.Context) {
	var req checkout.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Invalid checkout request")
		return
	}
	customer := checkout.Customer{ID: c.GetString("user_id"), Email: c.GetString("email")}
	res, err := h.checkout.Start(c.Request.Context(), customer, req)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Confirm settles a payment the client finished in the browser, such as a
// Stripe PaymentIntent confirmed with its client secret.
func (h *Handler) Confirm(c *gin.Context) {
	paymentID := c.Param("paymentId")
	rec, err := h.checkout.Payment(c.Request.Context(), paymentID)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if rec.UserID != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrNotFound.Error()})
		return
	}

	order, err := h.checkout.Complete(c.Request.Context(), paymentID, checkout.CallbackSuccess)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
