package payment

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/checkout"
	"subscription_live/internal/payment"
)

const maxWebhookBytes = int64(65536)

// BkashCallback is where bKash sends the customer back after the payment page.
// The payment is settled and the browser is redirected to the storefront.
func (h *Handler) BkashCallback(c *gin.Context) {
	paymentID := c.Query("paymentID")
	status := c.Query("status")
	orderID := c.Query("orderId")

	if paymentID == "" {
		h.redirectResult(c, orderID, "error")
		return
	}

	order, err := h.checkout.Complete(c.Request.Context(), paymentID, status)
	if err != nil {
		log.Printf("❌ bKash callback for payment %s failed: %v", paymentID, err)
		h.redirectResult(c, orderID, "error")
		return
	}
	h.redirectResult(c, order.ID.String(), order.Status)
}

func (h *Handler) redirectResult(c *gin.Context, orderID, status string) {
	q := url.Values{}
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	q.Set("status", status)
	c.Redirect(http.StatusFound, h.frontendURL+"/checkout/result?"+q.Encode())
}

// StripeWebhook settles PaymentIntents reported by Stripe. Deliveries that do
// not concern a known payment are acknowledged so Stripe stops retrying them.
func (h *Handler) StripeWebhook(c *gin.Context) {
	if h.stripe == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stripe is not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := c.GetRawData()
	if err != nil {
		log.Println("❌ Reading Stripe webhook failed:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	event, err := h.stripe.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Println("❌ Stripe webhook rejected:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
		return
	}
	log.Printf("💳 Stripe event received: %s", event.Type)

	callbackStatus := callbackFor(event.Status)
	if event.PaymentID == "" || callbackStatus == "" {
		c.Status(http.StatusOK)
		return
	}

	_, err = h.checkout.Complete(c.Request.Context(), event.PaymentID, callbackStatus)
	switch {
	case errors.Is(err, checkout.ErrUnknownPayment):
		log.Printf("⚠️ Stripe event for unknown payment %s ignored", event.PaymentID)
	case err != nil:
		log.Printf("❌ Settling Stripe payment %s failed: %v", event.PaymentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settlement failed"})
		return
	}
	c.Status(http.StatusOK)
}

// callbackFor maps a gateway payment status to a checkout callback status.
// Payments still in flight map to "".
func callbackFor(status string) string {
	switch status {
	case payment.StatusCompleted:
		return checkout.CallbackSuccess
	case payment.StatusFailed:
		return checkout.CallbackFailure
	case payment.StatusCancelled:
		return checkout.CallbackCancel
	}
	return ""
}
